package imap

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

type StandardClient struct {
	client  *client.Client
	timeout time.Duration
}

// NewStandardClient creates a new StandardClient with a default timeout of 30 seconds for IMAP operations
func NewStandardClient() *StandardClient {
	return &StandardClient{
		timeout: 30 * time.Second,
	}
}

// Connect establishes a secure connection to the IMAP server using TLS
func (c *StandardClient) Connect(server string) error {
	cl, err := client.DialTLS(server, nil)
	if err != nil {
		return fmt.Errorf("IMAP connection error: %w", err)
	}
	c.client = cl
	return nil
}

// Login authenticates the user with the IMAP server
func (c *StandardClient) Login(user, password string) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Login(user, password)
}

// SelectMailbox selects the folder for subsequent operations and returns its status (UIDNEXT, UIDVALIDITY)
func (c *StandardClient) SelectMailbox(name string) (*imap.MailboxStatus, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.client.Select(name, false)
}

// SearchUIDs returns the UIDs in [from, to], ascending
func (c *StandardClient) SearchUIDs(from, to uint32) ([]uint32, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if from == 0 || from > to {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(from, to)

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("error searching UIDs %d:%d: %w", from, to, err)
	}

	// Servers may answer with the last message for ranges past the end.
	out := uids[:0]
	for _, uid := range uids {
		if uid >= from && uid <= to {
			out = append(out, uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// FetchRaw retrieves the full RFC 5322 message and its flags without setting \Seen.
// A nil message with a nil error means the UID no longer exists.
func (c *StandardClient) FetchRaw(uid uint32) ([]byte, []string, error) {
	if c.client == nil {
		return nil, nil, fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchFlags, imap.FetchUid}

	prevTimeout := c.client.Timeout
	c.client.Timeout = c.timeout
	defer func() { c.client.Timeout = prevTimeout }()

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}

	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("error fetching message UID %d: %w", uid, err)
	}
	if msg == nil {
		return nil, nil, nil
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, nil, fmt.Errorf("no body returned for UID %d", uid)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading message UID %d: %w", uid, err)
	}
	return raw, msg.Flags, nil
}

// MarkSeen marks the email with the specified UID as seen on the IMAP server
func (c *StandardClient) MarkSeen(uid uint32) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	return c.client.UidStore(seqSet, item, flags, nil)
}

// Close logs out from the IMAP server and closes the connection
func (c *StandardClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Logout()
}
