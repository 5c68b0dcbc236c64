// Package imap reads vendor replies from an IMAP folder. The highest UID seen
// plays the role of the history cursor.
package imap

import (
	"github.com/emersion/go-imap"
)

// Client is one authenticated IMAP session
type Client interface {
	Connect(server string) error
	Login(user, password string) error
	SelectMailbox(name string) (*imap.MailboxStatus, error)
	SearchUIDs(from, to uint32) ([]uint32, error)
	FetchRaw(uid uint32) ([]byte, []string, error)
	MarkSeen(uid uint32) error
	Close() error
}
