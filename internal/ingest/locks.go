package ingest

import (
	"strings"
	"sync"
)

// mailboxLocks serializes invocations per mailbox identity
type mailboxLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMailboxLocks() *mailboxLocks {
	return &mailboxLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the mailbox is free and returns the unlock function
func (l *mailboxLocks) Lock(mailbox string) func() {
	key := strings.ToLower(strings.TrimSpace(mailbox))

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
