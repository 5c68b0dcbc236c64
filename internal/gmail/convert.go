package gmail

import (
	"encoding/base64"
	"strings"

	"rfp-mail-ingest/internal/mailparse"
	"rfp-mail-ingest/internal/models"

	gmailapi "google.golang.org/api/gmail/v1"
)

// toInboundMessage converts a full-format Gmail message into the provider-neutral model
func toInboundMessage(m *gmailapi.Message) *models.InboundMessage {
	msg := &models.InboundMessage{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Labels:   append([]string(nil), m.LabelIds...),
		Payload:  toPart(m.Payload),
	}
	if msg.Payload != nil {
		msg.Headers = msg.Payload.Headers
	}
	mailparse.Finalize(msg)
	return msg
}

func toPart(p *gmailapi.MessagePart) *models.MessagePart {
	if p == nil {
		return nil
	}

	pairs := make([][2]string, 0, len(p.Headers))
	for _, h := range p.Headers {
		pairs = append(pairs, [2]string{h.Name, h.Value})
	}

	part := &models.MessagePart{
		PartID:   p.PartId,
		MimeType: strings.ToLower(p.MimeType),
		Filename: p.Filename,
		Headers:  mailparse.HeaderMap(pairs),
	}
	if p.Body != nil {
		part.AttachmentID = p.Body.AttachmentId
		part.Size = p.Body.Size
		if p.Body.Data != "" {
			if data, err := decodeBase64URL(p.Body.Data); err == nil {
				part.Data = data
			}
		}
	}
	for _, child := range p.Parts {
		if c := toPart(child); c != nil {
			part.Parts = append(part.Parts, c)
		}
	}
	return part
}

// decodeBase64URL accepts both padded and unpadded base64url, which Gmail mixes
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
