package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rfp-mail-ingest/internal/correlate"
	"rfp-mail-ingest/internal/mailbox"
	"rfp-mail-ingest/internal/models"
	"rfp-mail-ingest/internal/store"

	"github.com/sirupsen/logrus"
)

type action int

const (
	actionSkip action = iota
	actionDuplicate
	actionFail
	actionRetry
	actionPersist
)

// prepared is the result of the parallel stage for one message
type prepared struct {
	id         string
	traceID    string
	action     action
	reason     string
	err        error
	proposal   *models.Proposal
	content    string
	structured json.RawMessage
}

func skip(id, reason string) *prepared {
	return &prepared{id: id, action: actionSkip, reason: reason}
}

// interrupted marks a message for redelivery without recording it as seen
func interrupted(id string, err error) *prepared {
	return &prepared{id: id, action: actionRetry, err: fmt.Errorf("interrupted: %w", err)}
}

func isInterrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// prepare fetches, filters, correlates and extracts one message. It never
// touches the database for writes; panics are turned into failures.
func (o *Orchestrator) prepare(ctx context.Context, log *logrus.Entry, provider mailbox.Provider, id, traceID string) (out *prepared) {
	defer func() {
		if r := recover(); r != nil {
			out = &prepared{id: id, action: actionFail, err: fmt.Errorf("panic: %v", r)}
		}
		out.traceID = traceID
	}()

	if o.guard.Seen(id) {
		return &prepared{id: id, action: actionDuplicate}
	}
	if err := ctx.Err(); err != nil {
		return interrupted(id, err)
	}

	msg, err := provider.GetMessage(ctx, id)
	if errors.Is(err, mailbox.ErrNotFound) {
		return skip(id, "message no longer exists")
	}
	if err != nil {
		if isInterrupted(ctx, err) {
			return interrupted(id, err)
		}
		return &prepared{id: id, action: actionFail, err: err}
	}
	msg.TraceID = traceID

	if !msg.HasLabel(models.LabelInbox) || msg.HasLabel(models.LabelSent) {
		return skip(id, "not an inbound inbox message")
	}

	proposalID, source, ok := correlate.ResolveProposalID(msg)
	if !ok {
		return skip(id, "no tracking token")
	}
	log = log.WithField("proposal_id", proposalID).WithField("correlated_by", string(source))

	proposal, err := o.repo.FindProposalByID(ctx, proposalID)
	if errors.Is(err, store.ErrProposalNotFound) {
		return skip(id, fmt.Sprintf("proposal %d not found", proposalID))
	}
	if err != nil {
		return &prepared{id: id, action: actionRetry, err: fmt.Errorf("load proposal %d: %w", proposalID, err)}
	}
	if err := ctx.Err(); err != nil {
		return interrupted(id, err)
	}

	if !correlate.SenderMatches(proposal, msg.From) {
		log.WithField("from", msg.From).Warn("Sender does not match proposal vendor")
		return skip(id, "sender does not match vendor")
	}

	attachmentText := o.renderer.RenderAll(ctx, provider, msg.Attachments)
	content := strings.TrimSpace(msg.BodyText + "\n" + attachmentText)

	structured, err := o.extractor.ExtractVendorUpdate(ctx, proposal, msg.BodyText, attachmentText)
	if err != nil {
		log.WithError(err).Warn("Structured extraction failed, storing raw reply only")
		structured = nil
	}
	// attachment downloads and extraction degrade silently on a dead context
	if err := ctx.Err(); err != nil {
		return interrupted(id, err)
	}

	return &prepared{
		id:         id,
		action:     actionPersist,
		proposal:   proposal,
		content:    content,
		structured: structured,
	}
}
