package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rfp-mail-ingest/internal/models"
)

// errIgnored marks payloads that are acknowledged but not processed
var errIgnored = errors.New("payload ignored")

// DecodePush extracts the change notification from a Pub/Sub push body. A body
// that is not an envelope with message.data wraps ErrInvalidPayload; an envelope
// whose data cannot be decoded wraps errIgnored.
func DecodePush(body []byte) (models.Notification, error) {
	var env models.PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(env.Message.Data) == "" {
		return models.Notification{}, fmt.Errorf("%w: missing message.data", ErrInvalidPayload)
	}

	data, err := decodeBase64(env.Message.Data)
	if err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", errIgnored, err)
	}
	return DecodeNotification(data)
}

// DecodeNotification parses the inner JSON notification, as delivered in the
// data field of a push envelope or a pulled Pub/Sub message
func DecodeNotification(data []byte) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", errIgnored, err)
	}
	n.EmailAddress = strings.TrimSpace(n.EmailAddress)
	if n.EmailAddress == "" || n.HistoryID == "" {
		return models.Notification{}, fmt.Errorf("%w: notification without emailAddress or historyId", errIgnored)
	}
	return n, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("message.data is not base64")
}
