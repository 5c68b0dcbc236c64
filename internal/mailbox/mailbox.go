// Package mailbox defines the contract between the ingestion pipeline and the
// mail providers it reads from.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"rfp-mail-ingest/internal/models"
)

var (
	// ErrCursorExpired is returned when the provider no longer knows the start cursor
	ErrCursorExpired = errors.New("history cursor expired or invalid")
	// ErrNotFound is returned when a message disappeared before it could be fetched
	ErrNotFound = errors.New("message not found")
	// ErrNoProvider is returned when no provider serves the requested mailbox
	ErrNoProvider = errors.New("no provider for mailbox")
)

// Provider is a mail provider able to diff a mailbox between two cursors
type Provider interface {
	ListAddedMessageIDs(ctx context.Context, from, to models.Cursor) ([]string, error)
	GetMessage(ctx context.Context, id string) (*models.InboundMessage, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	MarkRead(ctx context.Context, id string) error
}

// Resolver finds the provider for a mailbox identity
type Resolver interface {
	ProviderFor(ctx context.Context, mailbox string) (Provider, error)
}

// Registry is a concurrency-safe Resolver keyed by lowercase mailbox address
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to a mailbox address
func (r *Registry) Register(mailbox string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[normalize(mailbox)] = p
}

// SetFallback sets the provider used for mailboxes without an explicit registration
func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// ProviderFor implements Resolver
func (r *Registry) ProviderFor(_ context.Context, mailbox string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[normalize(mailbox)]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvider, mailbox)
}

func normalize(mailbox string) string {
	return strings.ToLower(strings.TrimSpace(mailbox))
}
