// Package codec serializes values into opaque strings for the key/value
// backend: JSON wrapped in base64 so the stored form is byte-safe text.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cp25sy5-modjot/expense-engine/internal/domain"
)

func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. Any failure is reported as domain.ErrDecode so the
// store can treat corrupt values as absent.
func Decode(s string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return nil
}
