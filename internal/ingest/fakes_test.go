package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"rfp-mail-ingest/internal/attachment"
	"rfp-mail-ingest/internal/dedup"
	"rfp-mail-ingest/internal/mailbox"
	"rfp-mail-ingest/internal/models"
	"rfp-mail-ingest/internal/store"
)

const buyer = "buyer@x.com"

// fakeProvider is an in-memory mailbox
type fakeProvider struct {
	mu          sync.Mutex
	ids         []string
	listErr     error
	messages    map[string]*models.InboundMessage
	attachments map[string][]byte
	panicOn     string
	hangOn      string

	listCalls int
	getCalls  int
	marked    []string

	inFlight    int
	maxInFlight int
	block       chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		messages:    make(map[string]*models.InboundMessage),
		attachments: make(map[string][]byte),
	}
}

func (f *fakeProvider) add(msg *models.InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, msg.ID)
	f.messages[msg.ID] = msg
}

func (f *fakeProvider) ListAddedMessageIDs(ctx context.Context, from, to models.Cursor) ([]string, error) {
	f.mu.Lock()
	f.listCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.ids...), nil
}

func (f *fakeProvider) GetMessage(ctx context.Context, id string) (*models.InboundMessage, error) {
	f.mu.Lock()
	f.getCalls++
	hang := id == f.hangOn
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.panicOn {
		panic("boom")
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mailbox.ErrNotFound, id)
	}
	cp := *msg
	return &cp, nil
}

func (f *fakeProvider) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found", attachmentID)
	}
	return data, nil
}

func (f *fakeProvider) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

// fakeRepo keeps proposals and recorded replies in memory
type fakeRepo struct {
	mu        sync.Mutex
	proposals map[int64]*models.Proposal
	messages  []*models.ProposalMessage
	failWrite error
}

func newFakeRepo(proposals ...*models.Proposal) *fakeRepo {
	r := &fakeRepo{proposals: make(map[int64]*models.Proposal)}
	for _, p := range proposals {
		r.proposals[p.ProposalID] = p
	}
	return r
}

func (r *fakeRepo) FindProposalByID(ctx context.Context, id int64) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrProposalNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) RecordReply(ctx context.Context, msg *models.ProposalMessage, upd models.ProposalUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	p, ok := r.proposals[upd.ProposalID]
	if !ok {
		return store.ErrProposalNotFound
	}
	r.messages = append(r.messages, msg)
	if !p.Status.Terminal() {
		p.Status = upd.Status
	}
	p.RawEmail = upd.RawEmail
	if upd.Structured != nil {
		p.StructuredData = upd.Structured
	}
	return nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *fakeRepo) proposal(id int64) models.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.proposals[id]
}

// fakeExtractor returns a fixed document or error
type fakeExtractor struct {
	mu     sync.Mutex
	out    json.RawMessage
	err    error
	bodies []string
}

func (e *fakeExtractor) ExtractVendorUpdate(ctx context.Context, p *models.Proposal, bodyText, attachmentText string) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bodies = append(e.bodies, bodyText)
	if e.err != nil {
		return nil, e.err
	}
	return e.out, nil
}

// memMarks is an in-memory watermark store
type memMarks struct {
	mu    sync.Mutex
	marks map[string]models.Cursor
	sets  int
}

func newMemMarks() *memMarks {
	return &memMarks{marks: make(map[string]models.Cursor)}
}

func (m *memMarks) Get(ctx context.Context, mailbox string) (models.Cursor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.marks[strings.ToLower(mailbox)]
	return c, ok, nil
}

func (m *memMarks) Set(ctx context.Context, mailbox string, cursor models.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[strings.ToLower(mailbox)] = cursor
	m.sets++
	return nil
}

func (m *memMarks) get(mailbox string) models.Cursor {
	c, _, _ := m.Get(context.Background(), mailbox)
	return c
}

type harness struct {
	orch      *Orchestrator
	provider  *fakeProvider
	repo      *fakeRepo
	extractor *fakeExtractor
	marks     *memMarks
	guard     *dedup.Guard
}

func newHarness(t *testing.T, proposals ...*models.Proposal) *harness {
	t.Helper()
	h := &harness{
		provider:  newFakeProvider(),
		repo:      newFakeRepo(proposals...),
		extractor: &fakeExtractor{out: json.RawMessage(`{"budget":900}`)},
		marks:     newMemMarks(),
		guard:     dedup.NewGuard(100, 50),
	}
	registry := mailbox.NewRegistry()
	registry.Register(buyer, h.provider)

	orch, err := New(Options{
		Resolver:   registry,
		Watermarks: h.marks,
		Repository: h.repo,
		Extractor:  h.extractor,
		Renderer:   attachment.NewRenderer(t.TempDir(), 0),
		Guard:      h.guard,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

func proposal42() *models.Proposal {
	return &models.Proposal{
		ProposalID:  42,
		RFPID:       1,
		VendorID:    7,
		VendorEmail: "real@vendor.com",
		Status:      models.StatusPending,
	}
}

func vendorReply(id, from, subject, body string) *models.InboundMessage {
	return &models.InboundMessage{
		ID:       id,
		Labels:   []string{models.LabelInbox, models.LabelUnread},
		Headers:  map[string]string{},
		Subject:  subject,
		From:     from,
		BodyText: body,
	}
}

func pushBody(mailbox string, historyID any) []byte {
	inner, _ := json.Marshal(map[string]any{"emailAddress": mailbox, "historyId": historyID})
	env, _ := json.Marshal(map[string]any{
		"message": map[string]any{"data": base64.StdEncoding.EncodeToString(inner), "messageId": "1"},
	})
	return env
}
