package webhook

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"resumeingest/internal/worker"
)

var (
	ErrMalformedEnvelope = errors.New("malformed push envelope")
	ErrMissingData       = errors.New("push message has no data")
)

// PushEnvelope is the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message      *PushMessage `json:"message"`
	Subscription string       `json:"subscription"`
}

type PushMessage struct {
	Data        string            `json:"data"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
}

// objectNotification is the storage change notification carried in Data.
type objectNotification struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// Decode parses a push body into an ingestion event. A body without
// message data yields ErrMissingData; anything else that cannot be turned
// into a bucket and object name yields ErrMalformedEnvelope.
func Decode(body []byte) (worker.Event, *PushEnvelope, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return worker.Event{}, nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.Message == nil || strings.TrimSpace(env.Message.Data) == "" {
		return worker.Event{}, &env, ErrMissingData
	}

	raw, err := decodeBase64(env.Message.Data)
	if err != nil {
		return worker.Event{}, &env, fmt.Errorf("%w: data is not base64: %w", ErrMalformedEnvelope, err)
	}

	var n objectNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return worker.Event{}, &env, fmt.Errorf("%w: data is not a json notification: %w", ErrMalformedEnvelope, err)
	}
	if n.Bucket == "" || n.Name == "" {
		return worker.Event{}, &env, fmt.Errorf("%w: notification lacks bucket or name", ErrMalformedEnvelope)
	}

	return worker.Event{ContainerID: n.Bucket, ObjectKey: n.Name, ContentType: n.ContentType}, &env, nil
}

// decodeBase64 accepts padded and unpadded, standard and URL-safe alphabets.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
