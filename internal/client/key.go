package client

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeApplicationServerKey converts a URL-safe base64 VAPID key, padded or
// not, into the raw bytes the platform subscribe call takes.
func DecodeApplicationServerKey(key string) ([]byte, error) {
	if rem := len(key) % 4; rem != 0 {
		key += strings.Repeat("=", 4-rem)
	}
	key = strings.NewReplacer("-", "+", "_", "/").Replace(key)

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode application server key: %w", err)
	}
	return raw, nil
}
