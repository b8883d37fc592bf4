// Package dto provides data transfer objects for the record HTTP API.
package dto

import (
	"encoding/json"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/healthsync/internal/record/domain"
	customValidation "github.com/allisson/healthsync/internal/validation"
)

// CreateRecordRequest contains a record captured by a local client.
type CreateRecordRequest struct {
	Type       string          `json:"type"`
	Metric     string          `json:"metric"`
	Payload    json.RawMessage `json:"payload"`
	SourceID   *string         `json:"source_id"`
	RecordedAt *time.Time      `json:"recorded_at"`
	Priority   int             `json:"priority"`
}

// Validate checks the shape of the request. Semantic checks happen in the use case.
func (r *CreateRecordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Type,
			validation.Required,
			validation.By(func(value interface{}) error {
				if _, err := domain.ParseRecordType(value.(string)); err != nil {
					return validation.NewError("validation_record_type", "must be a known record type")
				}
				return nil
			}),
		),
		validation.Field(&r.Metric, customValidation.Identifier, validation.Length(0, 64)),
		validation.Field(&r.Payload, validation.Required, customValidation.JSONObject),
		validation.Field(&r.SourceID, validation.NilOrNotEmpty, customValidation.NotBlank, customValidation.NoWhitespace),
		validation.Field(&r.Priority, validation.Min(-100), validation.Max(100)),
	)
}

// UpdateRecordRequest contains an edit of an existing record.
type UpdateRecordRequest struct {
	Metric     *string         `json:"metric"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt *time.Time      `json:"recorded_at"`
	Priority   int             `json:"priority"`
}

// Validate checks the shape of the request.
func (r *UpdateRecordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Metric, validation.NilOrNotEmpty, customValidation.Identifier),
		validation.Field(&r.Payload, validation.Required, customValidation.JSONObject),
		validation.Field(&r.Priority, validation.Min(-100), validation.Max(100)),
	)
}
