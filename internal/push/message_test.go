package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

func TestParseMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		msg, err := ParseMessage([]byte(`{"backend_id":"srv-1","entity_type":"meal_log","status":"completed","result":{"kcal":640}}`))
		require.NoError(t, err)
		assert.Equal(t, "srv-1", msg.BackendID)
		assert.Equal(t, "meal_log", msg.EntityType)
		assert.JSONEq(t, `{"kcal":640}`, string(msg.Result))

		status, err := msg.RemoteStatus()
		require.NoError(t, err)
		assert.Equal(t, recordDomain.RemoteStatusCompleted, status)
	})

	invalid := map[string]string{
		"malformed":      `{"backend_id":`,
		"missing id":     `{"status":"completed"}`,
		"unknown status": `{"backend_id":"srv-1","status":"queued"}`,
		"empty status":   `{"backend_id":"srv-1","status":""}`,
	}
	for name, payload := range invalid {
		t.Run(name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(payload))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}
