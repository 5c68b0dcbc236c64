// Package attachment downloads message attachments to scoped temporary files and
// renders them to text.
package attachment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/models"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	placeholderError     = "[Error parsing attachment]"
	placeholderEmptyPDF  = "[PDF parsed but empty]"
	placeholderEmptyDOCX = "[DOCX parsed but empty]"
)

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// Downloader fetches attachment bytes from the mail provider
type Downloader interface {
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Handle is a downloaded attachment backed by a temporary file
type Handle struct {
	models.AttachmentDescriptor
	Path string
}

// Renderer turns attachments into text
type Renderer struct {
	tempDir  string
	maxBytes int64
}

// NewRenderer creates a Renderer writing temporary files under tempDir.
// Attachments declared larger than maxBytes are not downloaded (0 disables the limit).
func NewRenderer(tempDir string, maxBytes int64) *Renderer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Renderer{tempDir: tempDir, maxBytes: maxBytes}
}

// Acquire downloads the attachment and writes it to a temporary file
func (r *Renderer) Acquire(ctx context.Context, src Downloader, desc models.AttachmentDescriptor) (*Handle, error) {
	data, err := src.GetAttachment(ctx, desc.MessageID, desc.AttachmentID)
	if err != nil {
		return nil, fmt.Errorf("download attachment %s: %w", desc.Filename, err)
	}

	if err := os.MkdirAll(r.tempDir, 0o700); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(r.tempDir, "*-"+SafeName(desc.Filename))
	if err != nil {
		return nil, err
	}
	h := &Handle{AttachmentDescriptor: desc, Path: f.Name()}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		r.Release(h)
		return nil, err
	}
	if err := f.Close(); err != nil {
		r.Release(h)
		return nil, err
	}
	return h, nil
}

// Release removes the temporary file behind h. It is safe to call more than once.
func (r *Renderer) Release(h *Handle) {
	if h == nil || h.Path == "" {
		return
	}
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		logging.Log.WithError(err).Warnf("Failed to clean up attachment file %s", h.Path)
	}
	h.Path = ""
}

// With acquires the attachment, passes it to fn, and releases it on every exit path
func (r *Renderer) With(ctx context.Context, src Downloader, desc models.AttachmentDescriptor, fn func(*Handle) error) error {
	h, err := r.Acquire(ctx, src, desc)
	if err != nil {
		return err
	}
	defer r.Release(h)
	return fn(h)
}

// Render converts a downloaded attachment to text. It never fails: parse errors
// degrade to a placeholder string.
func (r *Renderer) Render(h *Handle) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Log.Errorf("Panic while parsing attachment %s: %v", h.Filename, rec)
			text = placeholderError
		}
	}()

	var err error
	switch Kind(h.MimeType, h.Filename) {
	case KindPDF:
		text, err = pdfText(h.Path)
		if err == nil && strings.TrimSpace(text) == "" {
			text = placeholderEmptyPDF
		}
	case KindDOCX:
		text, err = docxText(h.Path)
		if err == nil && strings.TrimSpace(text) == "" {
			text = placeholderEmptyDOCX
		}
	case KindImage:
		text = fmt.Sprintf("[Image attachment: %s]", h.Filename)
	default:
		text = fmt.Sprintf("[Unsupported type: %s]", orUnknown(h.MimeType))
	}
	if err != nil {
		logging.Log.WithError(err).Errorf("Error parsing attachment %s", h.Filename)
		return placeholderError
	}
	return text
}

// RenderAll renders every attachment of a message and concatenates the results.
// A failed download is logged and left out.
func (r *Renderer) RenderAll(ctx context.Context, src Downloader, descs []models.AttachmentDescriptor) string {
	var b strings.Builder
	for _, desc := range descs {
		if r.maxBytes > 0 && desc.Size > r.maxBytes {
			fmt.Fprintf(&b, "\n\n--- Attachment: %s ---\n[Attachment too large: %s]", desc.Filename, desc.Filename)
			continue
		}
		err := r.With(ctx, src, desc, func(h *Handle) error {
			fmt.Fprintf(&b, "\n\n--- Attachment: %s ---\n%s", desc.Filename, r.Render(h))
			return nil
		})
		if err != nil {
			logging.Log.WithError(err).WithField("message_id", desc.MessageID).
				Errorf("Failed saving attachment %s", desc.Filename)
		}
	}
	return b.String()
}

// FileKind classifies attachments for rendering
type FileKind int

const (
	KindOther FileKind = iota
	KindPDF
	KindDOCX
	KindImage
)

// Kind classifies an attachment by MIME type, falling back to the file extension
func Kind(mimeType, filename string) FileKind {
	mt := strings.ToLower(mimeType)
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mt == mimePDF || ext == ".pdf":
		return KindPDF
	case mt == mimeDOCX || ext == ".docx":
		return KindDOCX
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	}
	return KindOther
}

// SafeName replaces every character outside [A-Za-z0-9._-] with an underscore
func SafeName(name string) string {
	if name == "" {
		return "attachment"
	}
	return unsafeNameRe.ReplaceAllString(name, "_")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
