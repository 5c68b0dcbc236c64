package models

import (
	"mime"
	"net/textproto"
)

// Well-known mailbox labels. IMAP folders are reported with LabelInbox.
const (
	LabelInbox  = "INBOX"
	LabelSent   = "SENT"
	LabelUnread = "UNREAD"
)

// MessagePart is a provider-neutral node of a MIME tree
type MessagePart struct {
	PartID       string
	MimeType     string
	Filename     string
	Headers      map[string]string
	Data         []byte // decoded body bytes, nil when the body lives behind AttachmentID
	AttachmentID string
	Size         int64
	Parts        []*MessagePart
}

// Charset returns the charset parameter of the part's Content-Type header, if any
func (p *MessagePart) Charset() string {
	if p == nil {
		return ""
	}
	return contentTypeParam(p.Headers["Content-Type"], "charset")
}

// InboundMessage represents a normalized message fetched from the mail provider
type InboundMessage struct {
	ID          string
	ThreadID    string
	Labels      []string
	Headers     map[string]string
	Subject     string
	From        string // normalized lowercase address
	BodyText    string
	Payload     *MessagePart
	Attachments []AttachmentDescriptor
	TraceID     string
}

// Header returns the first value of the named header, matched case-insensitively
func (m *InboundMessage) Header(name string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	if v, ok := m.Headers[textproto.CanonicalMIMEHeaderKey(name)]; ok {
		return v
	}
	return ""
}

// HasLabel reports whether the message carries the given label
func (m *InboundMessage) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AttachmentDescriptor identifies an attachment whose bytes are still on the provider side
type AttachmentDescriptor struct {
	MessageID    string
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

func contentTypeParam(contentType, name string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params[name]
}
