package mailparse

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"rfp-mail-ingest/internal/models"

	"github.com/emersion/go-message"
)

// ParseRaw builds an InboundMessage from an RFC 5322 stream. Attachment bodies are
// not retained; each attachment part is addressed by its dotted part path instead.
func ParseRaw(id string, r io.Reader) (*models.InboundMessage, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}

	root, err := buildPart(entity, "")
	if err != nil {
		return nil, err
	}

	msg := &models.InboundMessage{
		ID:      id,
		Headers: root.Headers,
		Payload: root,
	}
	Finalize(msg)
	return msg, nil
}

// ReadPart returns the decoded body of the part at the given dotted path
func ReadPart(r io.Reader, path string) ([]byte, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}

	var found []byte
	errFound := errors.New("found")
	walkErr := entity.Walk(func(p []int, e *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) {
			return err
		}
		if partPath(p) != path {
			return nil
		}
		data, err := io.ReadAll(e.Body)
		if err != nil {
			return err
		}
		found = data
		return errFound
	})
	if errors.Is(walkErr, errFound) {
		return found, nil
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return nil, fmt.Errorf("part %s not found", path)
}

func buildPart(e *message.Entity, path string) (*models.MessagePart, error) {
	var pairs [][2]string
	fields := e.Header.Fields()
	for fields.Next() {
		pairs = append(pairs, [2]string{fields.Key(), fields.Value()})
	}

	mediaType, params, _ := e.Header.ContentType()
	if mediaType == "" {
		mediaType = "text/plain"
	}
	part := &models.MessagePart{
		PartID:   path,
		MimeType: mediaType,
		Headers:  HeaderMap(pairs),
		Filename: partFilename(e, params),
	}

	if mr := e.MultipartReader(); mr != nil {
		for i := 1; ; i++ {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, err
			}
			childPart, err := buildPart(child, joinPath(path, i))
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, childPart)
		}
		return part, nil
	}

	data, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, err
	}
	part.Size = int64(len(data))

	if part.Filename != "" {
		part.AttachmentID = partIDOrRoot(path)
		return part, nil
	}

	part.Data = data
	if strings.HasPrefix(mediaType, "text/") {
		// go-message already converted the body to UTF-8
		part.Headers["Content-Type"] = mediaType + "; charset=utf-8"
	}
	return part, nil
}

func partFilename(e *message.Entity, ctParams map[string]string) string {
	if _, params, err := e.Header.ContentDisposition(); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return ctParams["name"]
}

func joinPath(parent string, i int) string {
	if parent == "" {
		return strconv.Itoa(i)
	}
	return parent + "." + strconv.Itoa(i)
}

func partIDOrRoot(path string) string {
	if path == "" {
		return "0"
	}
	return path
}

func partPath(p []int) string {
	if len(p) == 0 {
		return "0"
	}
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n + 1)
	}
	return strings.Join(parts, ".")
}
