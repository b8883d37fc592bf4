package remote

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/syncpolicy"
)

const samplesPath = "/api/v1/samples"

type sampleResponse struct {
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// SampleClient reads device samples from the device bridge.
type SampleClient struct {
	http *resty.Client
}

var _ syncpolicy.SampleSource = (*SampleClient)(nil)

// NewSampleClient creates a SampleClient. Rate limit settings are ignored; the bridge is local.
func NewSampleClient(config Config) *SampleClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		httpClient.SetHeader("X-API-Key", config.APIKey)
	}

	return &SampleClient{http: httpClient}
}

// FetchRecentSamples returns the samples of key observed in [since, until).
func (c *SampleClient) FetchRecentSamples(
	ctx context.Context,
	key syncpolicy.MetricKey,
	since, until time.Time,
) ([]syncpolicy.Sample, error) {
	params := map[string]string{
		"type":  string(key.Type),
		"since": since.UTC().Format(time.RFC3339Nano),
		"until": until.UTC().Format(time.RFC3339Nano),
	}
	if key.Metric != "" {
		params["metric"] = key.Metric
	}

	var result struct {
		Data []sampleResponse `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		Get(samplesPath)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch samples")
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	samples := make([]syncpolicy.Sample, 0, len(result.Data))
	for _, s := range result.Data {
		if s.Timestamp.IsZero() {
			return nil, apperrors.Wrap(ErrInvalidResponse, "sample without timestamp")
		}
		samples = append(samples, syncpolicy.Sample{
			SourceID:  s.SourceID,
			Timestamp: s.Timestamp.UTC(),
			Value:     s.Value,
			Unit:      s.Unit,
		})
	}
	return samples, nil
}
