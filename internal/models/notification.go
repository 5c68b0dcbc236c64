package models

import (
	"encoding/json"
	"fmt"
)

// Notification is the inner payload of a Gmail push delivery
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    Cursor `json:"-"`
}

// UnmarshalJSON accepts historyId as either a JSON number or a string
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw struct {
		EmailAddress string          `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.EmailAddress = raw.EmailAddress
	n.HistoryID = ""
	if len(raw.HistoryID) == 0 || string(raw.HistoryID) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.HistoryID, &s); err == nil {
		n.HistoryID = Cursor(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw.HistoryID, &num); err != nil {
		return fmt.Errorf("historyId: %w", err)
	}
	n.HistoryID = Cursor(num.String())
	return nil
}

// PushEnvelope is the Pub/Sub push request body
type PushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
