package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSealMismatch is returned when a sealed payload was not addressed to the
// party opening it, or was altered in transit.
var ErrSealMismatch = errors.New("gateway: sealed payload does not belong to this requester")

// envelope binds a body to one requester with an HMAC tag. It stands in for
// the cluster's encryption and gives integrity and addressing, not secrecy.
type envelope struct {
	Body json.RawMessage `json:"body"`
	Tag  []byte          `json:"tag"`
}

func tag(requester string, body []byte) []byte {
	key := sha256.Sum256([]byte("seal:" + requester))
	mac := hmac.New(sha256.New, key[:])
	mac.Write(body)
	return mac.Sum(nil)
}

// Seal addresses v to requester.
func Seal(requester string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return json.Marshal(envelope{Body: body, Tag: tag(requester, body)})
}

// Open verifies data was sealed to requester and decodes it into v.
func Open(requester string, data []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if !hmac.Equal(env.Tag, tag(requester, env.Body)) {
		return ErrSealMismatch
	}
	if err := json.Unmarshal(env.Body, v); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return nil
}
