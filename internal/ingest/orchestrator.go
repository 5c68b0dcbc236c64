// Package ingest runs the history-based ingestion of vendor replies: it diffs a
// mailbox between its watermark and a change notification, correlates each new
// message to a proposal, extracts a structured update and persists the reply.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rfp-mail-ingest/internal/attachment"
	"rfp-mail-ingest/internal/dedup"
	"rfp-mail-ingest/internal/extraction"
	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/mailbox"
	"rfp-mail-ingest/internal/models"
	"rfp-mail-ingest/internal/watermark"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Repository is the slice of persistence the pipeline needs
type Repository interface {
	FindProposalByID(ctx context.Context, id int64) (*models.Proposal, error)
	// RecordReply appends the message and applies the update atomically
	RecordReply(ctx context.Context, msg *models.ProposalMessage, upd models.ProposalUpdate) error
}

// Renderer turns a message's attachments into text
type Renderer interface {
	RenderAll(ctx context.Context, src attachment.Downloader, descs []models.AttachmentDescriptor) string
}

// Options configures an Orchestrator
type Options struct {
	Resolver   mailbox.Resolver
	Watermarks watermark.Store
	Repository Repository
	Extractor  extraction.Extractor
	Renderer   Renderer
	Guard      *dedup.Guard
	// Workers bounds the per-message prepare stage, default 4
	Workers int
	// Timeout bounds a whole invocation, zero means no limit
	Timeout time.Duration
}

// Orchestrator processes change notifications, one invocation per mailbox at a time
type Orchestrator struct {
	resolver  mailbox.Resolver
	marks     watermark.Store
	repo      Repository
	extractor extraction.Extractor
	renderer  Renderer
	guard     *dedup.Guard
	workers   int
	timeout   time.Duration
	locks     *mailboxLocks
}

// New creates an Orchestrator. Resolver, Watermarks, Repository, Extractor and Renderer are required.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Resolver == nil:
		return nil, errors.New("ingest: resolver is required")
	case opts.Watermarks == nil:
		return nil, errors.New("ingest: watermark store is required")
	case opts.Repository == nil:
		return nil, errors.New("ingest: repository is required")
	case opts.Extractor == nil:
		return nil, errors.New("ingest: extractor is required")
	case opts.Renderer == nil:
		return nil, errors.New("ingest: renderer is required")
	}
	if opts.Guard == nil {
		opts.Guard = dedup.NewGuard(dedup.DefaultMax, dedup.DefaultKeep)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Orchestrator{
		resolver:  opts.Resolver,
		marks:     opts.Watermarks,
		repo:      opts.Repository,
		extractor: opts.Extractor,
		renderer:  opts.Renderer,
		guard:     opts.Guard,
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		locks:     newMailboxLocks(),
	}, nil
}

// HandlePush decodes a push body and processes the notification it carries.
// Undecodable inner payloads are acknowledged with OutcomeIgnored.
func (o *Orchestrator) HandlePush(ctx context.Context, body []byte) (Outcome, error) {
	n, err := DecodePush(body)
	if errors.Is(err, errIgnored) {
		logging.Log.WithError(err).Warn("Ignoring undecodable push notification")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return o.Process(ctx, n)
}

// HandleNotification processes a raw inner notification, as pulled from Pub/Sub
func (o *Orchestrator) HandleNotification(ctx context.Context, data []byte) (Outcome, error) {
	n, err := DecodeNotification(data)
	if err != nil {
		logging.Log.WithError(err).Warn("Ignoring undecodable notification")
		return OutcomeIgnored, nil
	}
	return o.Process(ctx, n)
}

// Process diffs the mailbox from its watermark up to the notification's cursor
func (o *Orchestrator) Process(ctx context.Context, n models.Notification) (Outcome, error) {
	traceID := uuid.New().String()
	log := logging.Log.WithField("trace_id", traceID).
		WithField("mailbox", n.EmailAddress).
		WithField("history_id", string(n.HistoryID))

	if n.EmailAddress == "" || n.HistoryID == "" {
		log.Warn("Ignoring notification without mailbox or cursor")
		return OutcomeIgnored, nil
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	provider, err := o.resolver.ProviderFor(ctx, n.EmailAddress)
	if errors.Is(err, mailbox.ErrNoProvider) {
		log.Warn("Ignoring notification for unknown mailbox")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve provider: %w", err)
	}

	unlock := o.locks.Lock(n.EmailAddress)
	defer unlock()

	prev, ok, err := o.marks.Get(ctx, n.EmailAddress)
	if err != nil {
		return "", fmt.Errorf("read watermark: %w", err)
	}
	if !ok {
		if err := o.marks.Set(ctx, n.EmailAddress, n.HistoryID); err != nil {
			return "", fmt.Errorf("initialize watermark: %w", err)
		}
		log.Info("Initialized watermark, nothing to diff yet")
		return OutcomeInitialized, nil
	}
	if !n.HistoryID.After(prev) {
		log.WithField("watermark", string(prev)).Debug("Notification is not newer than watermark")
		return OutcomeStale, nil
	}

	ids, err := provider.ListAddedMessageIDs(ctx, prev, n.HistoryID)
	if errors.Is(err, mailbox.ErrCursorExpired) {
		log.WithField("watermark", string(prev)).WithError(err).
			Warn("History cursor expired, jumping watermark forward; changes in between are lost")
		if err := o.marks.Set(ctx, n.EmailAddress, n.HistoryID); err != nil {
			return "", fmt.Errorf("advance watermark: %w", err)
		}
		return OutcomeCursorExpired, nil
	}
	if err != nil {
		return "", fmt.Errorf("list history: %w", err)
	}

	stats, err := o.processBatch(ctx, log, provider, ids, traceID)
	log = log.WithFields(logrus.Fields{
		"listed":     stats.Listed,
		"persisted":  stats.Persisted,
		"skipped":    stats.Skipped,
		"duplicates": stats.Duplicates,
		"failed":     stats.Failed,
	})
	if err != nil {
		log.WithError(err).Error("Batch incomplete, watermark left in place")
		return "", err
	}

	if err := o.marks.Set(ctx, n.EmailAddress, n.HistoryID); err != nil {
		return "", fmt.Errorf("advance watermark: %w", err)
	}
	log.Info("Processed mailbox changes")
	return OutcomeProcessed, nil
}

// processBatch prepares messages in parallel, then persists them in history order
func (o *Orchestrator) processBatch(ctx context.Context, log *logrus.Entry, provider mailbox.Provider, ids []string, traceID string) (Stats, error) {
	stats := Stats{Listed: len(ids)}
	results := make([]*prepared, len(ids))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = o.prepare(ctx, log.WithField("message_id", id), provider, id, traceID)
			return nil
		})
	}
	_ = g.Wait()

	persistFailed := false
	for _, r := range results {
		mlog := log.WithField("message_id", r.id)
		switch r.action {
		case actionDuplicate:
			stats.Duplicates++
		case actionSkip:
			mlog.WithField("reason", r.reason).Info("Skipping message")
			o.guard.Add(r.id)
			stats.Skipped++
		case actionFail:
			mlog.WithError(r.err).Error("Failed to process message")
			o.guard.Add(r.id)
			stats.Failed++
		case actionRetry:
			mlog.WithError(r.err).Error("Message will be retried on redelivery")
			persistFailed = true
			stats.Failed++
		case actionPersist:
			if err := o.persist(ctx, provider, r); err != nil {
				mlog.WithField("proposal_id", r.proposal.ProposalID).WithError(err).Error("Failed to store vendor reply")
				persistFailed = true
				stats.Failed++
				continue
			}
			mlog.WithField("proposal_id", r.proposal.ProposalID).
				WithField("structured", r.structured != nil).
				Info("Stored vendor reply")
			o.guard.Add(r.id)
			stats.Persisted++
		}
	}

	if persistFailed {
		return stats, ErrPersistence
	}
	return stats, nil
}

func (o *Orchestrator) persist(ctx context.Context, provider mailbox.Provider, r *prepared) error {
	msg := &models.ProposalMessage{
		ProposalID:        r.proposal.ProposalID,
		Sender:            models.SenderVendor,
		RawMessage:        r.content,
		Structured:        r.structured,
		ProviderMessageID: r.id,
	}
	upd := models.ProposalUpdate{
		ProposalID: r.proposal.ProposalID,
		Status:     models.StatusReceived,
		RawEmail:   r.content,
		Structured: r.structured,
	}
	if err := o.repo.RecordReply(ctx, msg, upd); err != nil {
		return err
	}

	if err := provider.MarkRead(ctx, r.id); err != nil {
		logging.Log.WithField("trace_id", r.traceID).WithField("message_id", r.id).
			WithError(err).Warn("Failed to mark message as read")
	}
	return nil
}
