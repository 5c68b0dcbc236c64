package models

import (
	"encoding/json"
	"time"
)

// ProposalStatus is the lifecycle state of a vendor proposal
type ProposalStatus string

const (
	StatusPending     ProposalStatus = "PENDING"
	StatusReceived    ProposalStatus = "RECEIVED"
	StatusUnderReview ProposalStatus = "UNDER_REVIEW"
	StatusSelected    ProposalStatus = "SELECTED"
	StatusRejected    ProposalStatus = "REJECTED"
)

// Terminal reports whether the buyer already decided on the proposal
func (s ProposalStatus) Terminal() bool {
	return s == StatusSelected || s == StatusRejected
}

// MessageSender identifies who authored a proposal message
type MessageSender string

const (
	SenderBuyer  MessageSender = "BUYER"
	SenderVendor MessageSender = "VENDOR"
	SenderSystem MessageSender = "SYSTEM"
)

// Proposal is a vendor's proposal for an RFP
type Proposal struct {
	ProposalID     int64
	RFPID          int64
	VendorID       int64
	VendorEmail    string
	Status         ProposalStatus
	StructuredData json.RawMessage
	RFPStructured  json.RawMessage
	RawEmail       string
	UpdatedAt      time.Time
}

// PriorStructured returns the structured state an update should start from
func (p *Proposal) PriorStructured() json.RawMessage {
	if len(p.StructuredData) > 0 {
		return p.StructuredData
	}
	return p.RFPStructured
}

// ProposalMessage is one entry of a proposal's conversation log
type ProposalMessage struct {
	ID                int64
	ProposalID        int64
	Sender            MessageSender
	RawMessage        string
	Structured        json.RawMessage
	ProviderMessageID string
	CreatedAt         time.Time
}

// ProposalUpdate carries the fields changed by an ingested vendor reply
type ProposalUpdate struct {
	ProposalID int64
	Status     ProposalStatus
	RawEmail   string
	Structured json.RawMessage // nil leaves the stored value unchanged
}
