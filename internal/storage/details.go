package storage

import (
	"encoding/json"
	"fmt"

	"example.com/emailevents/internal/domain"
)

func encodeDetails(kind domain.FailureKind, details map[string]any) json.RawMessage {
	payload := make(map[string]any, len(details)+1)
	for k, v := range details {
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		payload[k] = v
	}
	payload["kind"] = string(kind)

	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(map[string]string{
			"kind":  string(kind),
			"error": fmt.Sprintf("unencodable failure details: %v", err),
		})
	}
	return b
}
