package imap

import (
	"context"
	"sync/atomic"
	"time"

	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/models"
)

const (
	failureThreshold = 5
	failureBase      = 5 * time.Minute
	failureMaxSleep  = 30 * time.Minute
)

// SubmitFunc hands a synthetic change notification to the ingestion pipeline
type SubmitFunc func(ctx context.Context, n models.Notification) error

// Poller turns periodic IMAP checks into change notifications carrying the folder's last UID
type Poller struct {
	provider *Provider
	mailbox  string
	interval time.Duration
	submit   SubmitFunc
	failures atomic.Int32
}

// NewPoller creates a poller reporting under the login address
func NewPoller(p *Provider, submit SubmitFunc) *Poller {
	interval := p.cfg.RefreshTime
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{provider: p, mailbox: p.cfg.Login, interval: interval, submit: submit}
}

// Run polls until ctx is done
func (p *Poller) Run(ctx context.Context) {
	logging.Log.Infof("Starting IMAP polling of %s, refresh every %s", p.mailbox, p.interval)
	for {
		wait := p.interval
		if err := p.PollOnce(ctx); err != nil {
			if b := p.backoff(); b > wait {
				wait = b
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// PollOnce reads the folder's last UID and submits it
func (p *Poller) PollOnce(ctx context.Context) error {
	last, err := p.provider.LastUID(ctx)
	if err != nil {
		failures := p.failures.Add(1)
		logging.Log.WithField("failures", failures).Errorf("IMAP connection error: %v", err)
		return err
	}
	p.failures.Store(0)

	n := models.Notification{EmailAddress: p.mailbox, HistoryID: last}
	if err := p.submit(ctx, n); err != nil {
		logging.Log.WithField("mailbox", p.mailbox).WithError(err).Error("Failed to process IMAP changes")
	}
	return nil
}

// backoff returns the extra wait after repeated connection failures: nothing
// before the threshold, then doubling from 5 minutes up to 30
func (p *Poller) backoff() time.Duration {
	failures := p.failures.Load()
	if failures < failureThreshold {
		return 0
	}
	n := failures - failureThreshold
	if n > 10 {
		n = 10
	}
	backoff := failureBase * time.Duration(1<<n)
	if backoff > failureMaxSleep {
		backoff = failureMaxSleep
	}
	logging.Log.Warnf("IMAP failed %d times, waiting %s before next attempt", failures, backoff)
	return backoff
}
