// Package remote talks to the healthsync backend: record delivery, remote status lookups and
// the device bridge used for metric catch-up.
package remote

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/push"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// Config holds backend client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RateLimit      float64
	RateLimitBurst int
}

// Ack is the backend acknowledgement of a created or updated record.
type Ack struct {
	BackendID       string
	ServerTimestamp time.Time
	Status          string
}

var recordPaths = map[recordDomain.RecordType]string{
	recordDomain.RecordTypeProgressEntry:     "/api/v1/progress",
	recordDomain.RecordTypeMealLog:           "/api/v1/meal-logs",
	recordDomain.RecordTypePhysicalAttribute: "/api/v1/physical-attributes",
	recordDomain.RecordTypeMoodEntry:         "/api/v1/mood",
	recordDomain.RecordTypeSleepSession:      "/api/v1/sleep",
}

// recordPath returns the collection endpoint for a record type.
func recordPath(recordType recordDomain.RecordType) (string, error) {
	path, ok := recordPaths[recordType]
	if !ok {
		return "", apperrors.Wrapf(ErrUnsupportedRecordType, "%q", recordType)
	}
	return path, nil
}

type recordRequest struct {
	ClientID   string          `json:"client_id"`
	Metric     string          `json:"metric,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
	Data       json.RawMessage `json:"data"`
}

type envelope[T any] struct {
	Data *T `json:"data"`
}

type ackResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type statusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client is the backend record API client. Every call waits on a shared rate limiter.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient creates a Client. A zero RateLimit disables client side throttling.
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		httpClient.SetHeader("X-API-Key", config.APIKey)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx), nil
}

// Create posts a new record. The record id is sent as the idempotency key so a retried
// create after a lost response does not duplicate the record on the backend.
func (c *Client) Create(ctx context.Context, record *recordDomain.Record) (*Ack, error) {
	path, err := recordPath(record.Type)
	if err != nil {
		return nil, err
	}

	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var result envelope[ackResponse]
	resp, err := req.
		SetHeader("Idempotency-Key", record.ID.String()).
		SetBody(newRecordRequest(record)).
		SetResult(&result).
		Post(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create backend record")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	return newAck(result.Data, "")
}

// Update replaces the backend copy of a record already acknowledged under its backend id.
func (c *Client) Update(ctx context.Context, record *recordDomain.Record) (*Ack, error) {
	path, err := recordPath(record.Type)
	if err != nil {
		return nil, err
	}
	if !record.HasBackendID() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "record has no backend id")
	}

	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var result envelope[ackResponse]
	resp, err := req.
		SetHeader("Idempotency-Key", record.ID.String()).
		SetBody(newRecordRequest(record)).
		SetResult(&result).
		SetPathParam("backendID", *record.BackendID).
		Put(path + "/{backendID}")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to update backend record")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	return newAck(result.Data, *record.BackendID)
}

// FetchStatus asks the backend for the processing state of a delivered record.
func (c *Client) FetchStatus(
	ctx context.Context,
	recordType recordDomain.RecordType,
	backendID string,
) (*push.Message, error) {
	path, err := recordPath(recordType)
	if err != nil {
		return nil, err
	}

	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var result envelope[statusResponse]
	resp, err := req.
		SetResult(&result).
		SetPathParam("backendID", backendID).
		Get(path + "/{backendID}/status")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch backend record status")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	if result.Data == nil {
		return nil, ErrInvalidResponse
	}

	id := result.Data.ID
	if id == "" {
		id = backendID
	}
	return &push.Message{
		BackendID:  id,
		EntityType: string(recordType),
		Status:     result.Data.Status,
		Result:     result.Data.Result,
	}, nil
}

func newRecordRequest(record *recordDomain.Record) recordRequest {
	return recordRequest{
		ClientID:   record.ID.String(),
		Metric:     record.Metric,
		RecordedAt: record.RecordedAt.UTC(),
		Data:       record.Payload,
	}
}

// newAck converts a decoded acknowledgement. knownID backs an update response that omits the id.
func newAck(data *ackResponse, knownID string) (*Ack, error) {
	if data == nil {
		return nil, ErrInvalidResponse
	}
	id := data.ID
	if id == "" {
		id = knownID
	}
	if id == "" {
		return nil, ErrInvalidResponse
	}

	timestamp := data.UpdatedAt
	if timestamp.IsZero() {
		timestamp = data.CreatedAt
	}
	return &Ack{BackendID: id, ServerTimestamp: timestamp, Status: data.Status}, nil
}

func apiError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}

	var body errorResponse
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}
