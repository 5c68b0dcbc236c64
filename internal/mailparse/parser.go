package mailparse

import (
	"bytes"
	"io"
	"mime"
	"net/textproto"
	"regexp"
	"strings"

	"rfp-mail-ingest/internal/models"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

var addressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// PartPredicate selects a part of a MIME tree
type PartPredicate func(p *models.MessagePart) bool

// IsPlainTextLeaf matches text/plain parts carrying body data
func IsPlainTextLeaf(p *models.MessagePart) bool {
	return isLeafOfType(p, "text/plain")
}

// IsHTMLLeaf matches text/html parts carrying body data
func IsHTMLLeaf(p *models.MessagePart) bool {
	return isLeafOfType(p, "text/html")
}

func isLeafOfType(p *models.MessagePart, mimeType string) bool {
	if len(p.Parts) > 0 || len(p.Data) == 0 || p.Filename != "" {
		return false
	}
	return strings.EqualFold(mediaType(p.MimeType), mimeType)
}

// FirstPart walks the tree depth-first once per predicate, in priority order, and
// returns the first part matched by the highest-priority predicate that matches anything
func FirstPart(root *models.MessagePart, preds ...PartPredicate) *models.MessagePart {
	if root == nil {
		return nil
	}
	for _, pred := range preds {
		if found := walkFirst(root, pred); found != nil {
			return found
		}
	}
	return nil
}

func walkFirst(p *models.MessagePart, pred PartPredicate) *models.MessagePart {
	if pred(p) {
		return p
	}
	for _, child := range p.Parts {
		if found := walkFirst(child, pred); found != nil {
			return found
		}
	}
	return nil
}

// ExtractBody returns the preferred text body: first text/plain leaf, then first text/html leaf
func ExtractBody(root *models.MessagePart) string {
	part := FirstPart(root, IsPlainTextLeaf, IsHTMLLeaf)
	if part == nil {
		return ""
	}
	return DecodeText(part)
}

// DecodeText converts a part's body to UTF-8 according to its charset parameter
func DecodeText(p *models.MessagePart) string {
	cs := strings.ToLower(p.Charset())
	if cs == "" || cs == "utf-8" || cs == "us-ascii" {
		return string(p.Data)
	}
	r, err := charset.Reader(cs, bytes.NewReader(p.Data))
	if err != nil {
		return string(p.Data)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(p.Data)
	}
	return string(decoded)
}

// CollectAttachments returns every part that has both a filename and a provider-side
// attachment identifier, in depth-first order
func CollectAttachments(messageID string, root *models.MessagePart) []models.AttachmentDescriptor {
	var out []models.AttachmentDescriptor
	var walk func(p *models.MessagePart)
	walk = func(p *models.MessagePart) {
		if p == nil {
			return
		}
		if p.Filename != "" && p.AttachmentID != "" {
			mimeType := p.MimeType
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			out = append(out, models.AttachmentDescriptor{
				MessageID:    messageID,
				AttachmentID: p.AttachmentID,
				Filename:     p.Filename,
				MimeType:     mimeType,
				Size:         p.Size,
			})
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(root)
	return out
}

// Finalize derives the normalized fields of a message from its headers and MIME tree
func Finalize(msg *models.InboundMessage) {
	if subject, err := DecodeHeader(msg.Header("Subject")); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = msg.Header("Subject")
	}
	msg.From = NormalizeAddress(msg.Header("From"))
	msg.BodyText = ExtractBody(msg.Payload)
	msg.Attachments = CollectAttachments(msg.ID, msg.Payload)
}

// NormalizeAddress extracts the bare lowercase address from a From header value
func NormalizeAddress(fromHeader string) string {
	fromHeader = strings.TrimSpace(fromHeader)
	if fromHeader == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(fromHeader); err == nil && addr.Address != "" {
		return strings.ToLower(addr.Address)
	}
	if start := strings.LastIndex(fromHeader, "<"); start >= 0 {
		if end := strings.Index(fromHeader[start:], ">"); end > 1 {
			return strings.ToLower(strings.TrimSpace(fromHeader[start+1 : start+end]))
		}
	}
	return strings.ToLower(extractEmailAddress(fromHeader))
}

// Simple regex to extract email address from "From" header, which may contain name and email
func extractEmailAddress(fromHeader string) string {
	return addressRe.FindString(fromHeader)
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := new(mime.WordDecoder)
	decoder.CharsetReader = charset.Reader
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}

// HeaderMap builds a canonical-key header map, keeping the first value of each key
func HeaderMap(pairs [][2]string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		key := textproto.CanonicalMIMEHeaderKey(kv[0])
		if _, exists := out[key]; !exists {
			out[key] = kv[1]
		}
	}
	return out
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}
