package imap

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"rfp-mail-ingest/internal/mailbox"
	"rfp-mail-ingest/internal/mailparse"
	"rfp-mail-ingest/internal/models"

	"github.com/emersion/go-imap"
)

// maxIdleSessions bounds the logged-in sessions kept between calls
const maxIdleSessions = 4

// Provider implements mailbox.Provider over a small pool of selected IMAP sessions.
// A session is used by one call at a time.
type Provider struct {
	cfg  models.EmailConfig
	dial func() Client
	idle chan Client
}

// NewProvider creates a Provider. dial returns an unconnected client; nil uses StandardClient.
func NewProvider(cfg models.EmailConfig, dial func() Client) *Provider {
	if dial == nil {
		dial = func() Client { return NewStandardClient() }
	}
	return &Provider{cfg: cfg, dial: dial, idle: make(chan Client, maxIdleSessions)}
}

// Close logs out every idle session
func (p *Provider) Close() error {
	for {
		select {
		case c := <-p.idle:
			_ = c.Close()
		default:
			return nil
		}
	}
}

func (p *Provider) take() Client {
	select {
	case c := <-p.idle:
		return c
	default:
		return nil
	}
}

func (p *Provider) put(c Client) {
	select {
	case p.idle <- c:
	default:
		_ = c.Close()
	}
}

// withSession runs fn on an idle session, or a new one. A pooled session that
// fails may have been dropped by the server, so fn is retried once on a fresh session.
func (p *Provider) withSession(fn func(Client) error) error {
	if c := p.take(); c != nil {
		if err := fn(c); err == nil {
			p.put(c)
			return nil
		}
		_ = c.Close()
	}

	c, _, err := p.session()
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		_ = c.Close()
		return err
	}
	p.put(c)
	return nil
}

// session connects, logs in and selects the configured folder
func (p *Provider) session() (Client, *imap.MailboxStatus, error) {
	c := p.dial()
	if err := c.Connect(p.cfg.Imap); err != nil {
		return nil, nil, err
	}
	if err := c.Login(p.cfg.Login, p.cfg.Password); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("login error: %w", err)
	}
	status, err := c.SelectMailbox(p.cfg.MailBox)
	if err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("folder selection error: %w", err)
	}
	return c, status, nil
}

// LastUID returns the highest UID currently assigned in the folder
func (p *Provider) LastUID(ctx context.Context) (models.Cursor, error) {
	c, status, err := p.session()
	if err != nil {
		return "", err
	}
	p.put(c)
	return models.CursorFromUint(uint64(lastUID(status))), nil
}

func lastUID(status *imap.MailboxStatus) uint32 {
	if status == nil || status.UidNext == 0 {
		return 0
	}
	return status.UidNext - 1
}

func (p *Provider) ListAddedMessageIDs(ctx context.Context, from, to models.Cursor) ([]string, error) {
	start, err := parseUID(string(from))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mailbox.ErrCursorExpired, err)
	}
	end, err := parseUID(string(to))
	if err != nil {
		return nil, fmt.Errorf("invalid end cursor %q: %w", to, err)
	}

	// A fresh session reports the current UIDNEXT.
	c, status, err := p.session()
	if err != nil {
		return nil, err
	}

	// A cursor beyond UIDNEXT means the folder was recreated.
	if status != nil && status.UidNext > 0 && start >= status.UidNext {
		p.put(c)
		return nil, fmt.Errorf("%w: uid %d beyond UIDNEXT %d", mailbox.ErrCursorExpired, start, status.UidNext)
	}

	uids, err := c.SearchUIDs(start+1, end)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	p.put(c)
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (p *Provider) GetMessage(ctx context.Context, id string) (*models.InboundMessage, error) {
	raw, flags, err := p.fetch(id)
	if err != nil {
		return nil, err
	}

	msg, err := mailparse.ParseRaw(id, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("error parsing message UID %s: %w", id, err)
	}
	msg.Labels = labels(flags)
	return msg, nil
}

func (p *Provider) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	raw, _, err := p.fetch(messageID)
	if err != nil {
		return nil, err
	}
	return mailparse.ReadPart(bytes.NewReader(raw), attachmentID)
}

func (p *Provider) MarkRead(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	return p.withSession(func(c Client) error {
		return c.MarkSeen(uid)
	})
}

func (p *Provider) fetch(id string) ([]byte, []string, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, nil, err
	}
	var (
		raw   []byte
		flags []string
	)
	err = p.withSession(func(c Client) error {
		var err error
		raw, flags, err = c.FetchRaw(uid)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("%w: uid %s", mailbox.ErrNotFound, id)
	}
	return raw, flags, nil
}

// labels maps IMAP flags onto provider-neutral labels; every message of the
// selected folder counts as inbox mail
func labels(flags []string) []string {
	out := []string{models.LabelInbox}
	seen := false
	for _, f := range flags {
		if f == imap.SeenFlag {
			seen = true
		}
	}
	if !seen {
		out = append(out, models.LabelUnread)
	}
	return out
}

func parseUID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q: %w", s, err)
	}
	return uint32(v), nil
}
