// Package extraction turns a vendor reply into an updated structured proposal.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rfp-mail-ingest/internal/llm"
	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrExtractionFailed wraps every failure to obtain a valid structured update
var ErrExtractionFailed = errors.New("structured extraction failed")

// Extractor produces the revised structured proposal for a vendor reply
type Extractor interface {
	ExtractVendorUpdate(ctx context.Context, p *models.Proposal, bodyText, attachmentText string) (json.RawMessage, error)
}

// Adapter implements Extractor over an LLM provider
type Adapter struct {
	provider llm.Provider
	model    string
	schema   *jsonschema.Schema
}

// NewAdapter compiles the proposal schema and returns an Adapter
func NewAdapter(provider llm.Provider, model string) (*Adapter, error) {
	schema, err := jsonschema.CompileString("proposal.schema.json", proposalSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile proposal schema: %w", err)
	}
	return &Adapter{provider: provider, model: model, schema: schema}, nil
}

func (a *Adapter) ExtractVendorUpdate(ctx context.Context, p *models.Proposal, bodyText, attachmentText string) (json.RawMessage, error) {
	prompt := buildPrompt(p.PriorStructured(), bodyText, attachmentText)

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		JSONOutput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	out, err := a.parse(resp.Content)
	if err != nil {
		logging.Log.WithField("proposal_id", p.ProposalID).WithError(err).Warn("Model returned unusable output")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return out, nil
}

// parse strips code fences and checks the output is a schema-valid JSON object
func (a *Adapter) parse(content string) (json.RawMessage, error) {
	text := StripFences(content)
	if text == "" {
		return nil, errors.New("empty model output")
	}

	var doc any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, errors.New("model output is not a JSON object")
	}
	if err := a.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// StripFences removes a surrounding markdown code fence, with or without a language tag
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
