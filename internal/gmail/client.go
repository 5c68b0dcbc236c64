package gmail

import (
	"context"
	"fmt"
	"time"

	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/mailbox"
	"rfp-mail-ingest/internal/models"
	"rfp-mail-ingest/internal/retry"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const userID = "me"

// Client implements mailbox.Provider for one Gmail account
type Client struct {
	svc   *gmailapi.Service
	retry retry.Config
}

// New creates a Gmail client. Authentication comes from opts, typically
// option.WithTokenSource(credentials.TokenSource(ctx)).
func New(ctx context.Context, retryCfg models.RetryConfig, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Client{
		svc: svc,
		retry: retry.Config{
			MaxAttempts:  retryCfg.MaxAttempts,
			InitialDelay: retryCfg.InitialDelay,
			MaxDelay:     retryCfg.MaxDelay,
			ShouldRetry:  shouldRetry,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, c.retry, fn)
}

// ListAddedMessageIDs pages through history records after from and returns the
// IDs of added messages whose record is not newer than to
func (c *Client) ListAddedMessageIDs(ctx context.Context, from, to models.Cursor) ([]string, error) {
	start, err := from.Uint()
	if err != nil {
		return nil, fmt.Errorf("%w: start cursor %q is not numeric", mailbox.ErrCursorExpired, from)
	}
	limit, err := to.Uint()
	if err != nil {
		return nil, fmt.Errorf("invalid end cursor %q: %w", to, err)
	}

	var (
		ids       []string
		seen      = make(map[string]struct{})
		pageToken string
	)
	for {
		call := c.svc.Users.History.List(userID).
			StartHistoryId(start).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmailapi.ListHistoryResponse
		err := c.do(ctx, func() error {
			var callErr error
			resp, callErr = call.Do()
			return callErr
		})
		if err != nil {
			if isCursorExpired(err) {
				return nil, fmt.Errorf("%w: %v", mailbox.ErrCursorExpired, err)
			}
			return nil, fmt.Errorf("failed to list history: %w", err)
		}

		for _, h := range resp.History {
			if h.Id > limit {
				continue
			}
			for _, added := range h.MessagesAdded {
				if added.Message == nil || added.Message.Id == "" {
					continue
				}
				if _, dup := seen[added.Message.Id]; dup {
					continue
				}
				seen[added.Message.Id] = struct{}{}
				ids = append(ids, added.Message.Id)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, nil
}

// GetMessage fetches a message in full format
func (c *Client) GetMessage(ctx context.Context, id string) (*models.InboundMessage, error) {
	var m *gmailapi.Message
	err := c.do(ctx, func() error {
		var callErr error
		m, callErr = c.svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", mailbox.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return toInboundMessage(m), nil
}

// GetAttachment downloads and decodes an attachment body
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var body *gmailapi.MessagePartBody
	err := c.do(ctx, func() error {
		var callErr error
		body, callErr = c.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

// MarkRead removes the UNREAD label
func (c *Client) MarkRead(ctx context.Context, id string) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{models.LabelUnread}}
	err := c.do(ctx, func() error {
		_, callErr := c.svc.Users.Messages.Modify(userID, id, req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return fmt.Errorf("failed to mark message %s as read: %w", id, err)
	}
	return nil
}

// Watch registers push notifications for labelIDs on the Pub/Sub topic. It
// returns the mailbox's current history cursor and when the watch expires.
func (c *Client) Watch(ctx context.Context, topic string, labelIDs []string) (models.Cursor, time.Time, error) {
	req := &gmailapi.WatchRequest{
		TopicName:         topic,
		LabelIds:          labelIDs,
		LabelFilterAction: "include",
	}

	var resp *gmailapi.WatchResponse
	err := c.do(ctx, func() error {
		var callErr error
		resp, callErr = c.svc.Users.Watch(userID, req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to watch mailbox: %w", err)
	}

	expires := time.UnixMilli(resp.Expiration)
	logging.Log.WithField("history_id", resp.HistoryId).
		WithField("expires", expires.Format(time.RFC3339)).
		Info("Gmail watch registered")
	return models.CursorFromUint(resp.HistoryId), expires, nil
}

// RunWatch registers the watch now and again every interval until ctx is done
func (c *Client) RunWatch(ctx context.Context, topic string, labelIDs []string, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if _, _, err := c.Watch(ctx, topic, labelIDs); err != nil {
		logging.Log.WithError(err).Error("Failed to register Gmail watch")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := c.Watch(ctx, topic, labelIDs); err != nil {
				logging.Log.WithError(err).Error("Failed to renew Gmail watch")
			}
		}
	}
}
