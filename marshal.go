package stepflow

import (
	"encoding/json"
)

// Marshal is the single encoding used for state values, payloads and results.
func Marshal[T any](t *T) ([]byte, error) {
	return json.Marshal(t)
}

func Unmarshal[T any](b []byte, t *T) error {
	return json.Unmarshal(b, t)
}
