package push

import (
	"context"

	"github.com/google/uuid"
)

// Transport is a realtime channel of status updates for one user.
type Transport interface {
	// Listen connects and passes every received payload to deliver. It blocks until the
	// connection drops or ctx is cancelled. deliver must not be retained after Listen returns.
	Listen(ctx context.Context, userID uuid.UUID, deliver func([]byte)) error
}
