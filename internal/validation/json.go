package validation

import (
	"encoding/json"
	"time"

	validation "github.com/jellydator/validation"
)

// JSONObject validates that a raw JSON document is an object.
var JSONObject = validation.By(func(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return validation.NewError("validation_json_object_type", "must be a JSON document")
	}

	if len(raw) == 0 {
		return nil // Let Required handle empty documents
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil || object == nil {
		return validation.NewError("validation_json_object", "must be a JSON object")
	}
	return nil
})

// NotAfter validates that a time is not later than now() plus skew.
func NotAfter(now func() time.Time, skew time.Duration) validation.Rule {
	return validation.By(func(value interface{}) error {
		t, ok := value.(time.Time)
		if !ok {
			return validation.NewError("validation_time_type", "must be a time")
		}
		if t.IsZero() {
			return nil
		}
		if t.After(now().Add(skew)) {
			return validation.NewError("validation_time_future", "must not be in the future")
		}
		return nil
	})
}
