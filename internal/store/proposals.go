package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rfp-mail-ingest/internal/models"
)

// ErrProposalNotFound is returned when no proposal has the requested ID
var ErrProposalNotFound = errors.New("proposal not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateRFP inserts an RFP and returns its ID
func (s *Store) CreateRFP(ctx context.Context, title string, structured json.RawMessage) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO rfps (title, structured, created_at) VALUES (?, ?, ?) RETURNING id
	`), title, nullJSON(structured), time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create rfp: %w", err)
	}
	return id, nil
}

// CreateVendor inserts a vendor and returns its ID
func (s *Store) CreateVendor(ctx context.Context, name, email string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO vendors (name, email, created_at) VALUES (?, ?, ?) RETURNING id
	`), name, nullString(email), time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create vendor: %w", err)
	}
	return id, nil
}

// CreateProposal inserts a PENDING proposal for a vendor on an RFP
func (s *Store) CreateProposal(ctx context.Context, rfpID, vendorID int64) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO proposals (rfp_id, vendor_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id
	`), rfpID, vendorID, string(models.StatusPending), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create proposal: %w", err)
	}
	return id, nil
}

// FindProposalByID loads a proposal with its vendor email and the RFP's structured data
func (s *Store) FindProposalByID(ctx context.Context, id int64) (*models.Proposal, error) {
	var (
		p             models.Proposal
		status        string
		vendorEmail   sql.NullString
		structured    sql.NullString
		rfpStructured sql.NullString
		rawEmail      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT p.id, p.rfp_id, p.vendor_id, v.email, p.status, p.structured,
		       r.structured, p.raw_email, p.updated_at
		FROM proposals p
		JOIN vendors v ON v.id = p.vendor_id
		JOIN rfps r ON r.id = p.rfp_id
		WHERE p.id = ?
	`), id).Scan(
		&p.ProposalID, &p.RFPID, &p.VendorID, &vendorEmail, &status, &structured,
		&rfpStructured, &rawEmail, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	p.VendorEmail = strings.TrimSpace(vendorEmail.String)
	p.Status = models.ProposalStatus(status)
	if structured.Valid {
		p.StructuredData = json.RawMessage(structured.String)
	}
	if rfpStructured.Valid {
		p.RFPStructured = json.RawMessage(rfpStructured.String)
	}
	p.RawEmail = rawEmail.String
	return &p, nil
}

// CreateProposalMessage appends an entry to a proposal's conversation log
func (s *Store) CreateProposalMessage(ctx context.Context, msg *models.ProposalMessage) error {
	return s.createProposalMessage(ctx, s.db, msg)
}

// UpdateProposalFromReply applies an ingested vendor reply to a proposal
func (s *Store) UpdateProposalFromReply(ctx context.Context, upd models.ProposalUpdate) error {
	return s.updateProposalFromReply(ctx, s.db, upd)
}

// RecordReply appends the message and updates the proposal in one transaction
func (s *Store) RecordReply(ctx context.Context, msg *models.ProposalMessage, upd models.ProposalUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.createProposalMessage(ctx, tx, msg); err != nil {
		return err
	}
	if err := s.updateProposalFromReply(ctx, tx, upd); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reply: %w", err)
	}
	return nil
}

func (s *Store) createProposalMessage(ctx context.Context, db execer, msg *models.ProposalMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Sender == "" {
		msg.Sender = models.SenderVendor
	}

	err := db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO proposal_messages (proposal_id, sender, raw_message, structured, provider_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id
	`), msg.ProposalID, string(msg.Sender), msg.RawMessage, nullJSON(msg.Structured),
		nullString(msg.ProviderMessageID), msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to create proposal message: %w", err)
	}
	return nil
}

// updateProposalFromReply never moves a SELECTED or REJECTED proposal back and
// keeps the stored structured data when the update carries none.
func (s *Store) updateProposalFromReply(ctx context.Context, db execer, upd models.ProposalUpdate) error {
	res, err := db.ExecContext(ctx, s.rebind(`
		UPDATE proposals
		SET status = CASE WHEN status IN (?, ?) THEN status ELSE ? END,
		    raw_email = ?,
		    structured = COALESCE(?, structured),
		    updated_at = ?
		WHERE id = ?
	`), string(models.StatusSelected), string(models.StatusRejected), string(upd.Status),
		upd.RawEmail, nullJSON(upd.Structured), time.Now().UTC(), upd.ProposalID)
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, upd.ProposalID)
	}
	return nil
}

// ListProposalMessages returns a proposal's conversation log, oldest first
func (s *Store) ListProposalMessages(ctx context.Context, proposalID int64) ([]*models.ProposalMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, proposal_id, sender, raw_message, structured, provider_message_id, created_at
		FROM proposal_messages
		WHERE proposal_id = ?
		ORDER BY id
	`), proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ProposalMessage
	for rows.Next() {
		var (
			m          models.ProposalMessage
			sender     string
			structured sql.NullString
			providerID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ProposalID, &sender, &m.RawMessage, &structured, &providerID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proposal message: %w", err)
		}
		m.Sender = models.MessageSender(sender)
		if structured.Valid {
			m.Structured = json.RawMessage(structured.String)
		}
		m.ProviderMessageID = providerID.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

// RecentProviderMessageIDs returns up to limit of the most recently recorded
// provider message IDs, oldest first
func (s *Store) RecentProviderMessageIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT provider_message_id
		FROM proposal_messages
		WHERE provider_message_id IS NOT NULL
		ORDER BY id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider message ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan provider message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}
