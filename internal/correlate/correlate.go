// Package correlate maps inbound vendor replies to the proposal that solicited them.
package correlate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rfp-mail-ingest/internal/models"
)

// TrackingHeader carries the tracking token on outbound RFP mails and, when the
// vendor's client preserves it, on replies
const TrackingHeader = "X-RFP-Tracking-ID"

var tokenRe = regexp.MustCompile(`(?i)RFP-(\d+)-VENDOR-(\d+)-PROPOSAL-(\d+)`)

// Source tells which strategy resolved a proposal ID
type Source string

const (
	SourceNone    Source = ""
	SourceHeader  Source = "header"
	SourceSubject Source = "subject"
	SourceBody    Source = "body"
)

// TrackingToken formats the token embedded in outbound RFP mails
func TrackingToken(rfpID, vendorID, proposalID int64) string {
	return fmt.Sprintf("RFP-%d-VENDOR-%d-PROPOSAL-%d", rfpID, vendorID, proposalID)
}

// ResolveProposalID returns the proposal a message refers to. Strategies are tried in
// order: tracking header (last dash-separated segment), subject token, body token.
func ResolveProposalID(msg *models.InboundMessage) (int64, Source, bool) {
	if id, ok := fromHeader(msg.Header(TrackingHeader)); ok {
		return id, SourceHeader, true
	}
	if id, ok := fromText(msg.Subject); ok {
		return id, SourceSubject, true
	}
	if id, ok := fromText(msg.BodyText); ok {
		return id, SourceBody, true
	}
	return 0, SourceNone, false
}

func fromHeader(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	last := value[strings.LastIndex(value, "-")+1:]
	id, err := strconv.ParseInt(strings.TrimSpace(last), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func fromText(text string) (int64, bool) {
	m := tokenRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SenderMatches reports whether the normalized sender is the proposal's vendor.
// A missing address on either side never matches.
func SenderMatches(p *models.Proposal, from string) bool {
	vendor := strings.ToLower(strings.TrimSpace(p.VendorEmail))
	from = strings.ToLower(strings.TrimSpace(from))
	if vendor == "" || from == "" {
		return false
	}
	return vendor == from
}
