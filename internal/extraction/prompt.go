package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You extract vendor proposal details from procurement emails and return the updated RFP JSON. Reply with JSON only."

const promptTemplate = `RULES:
1. Always return ONLY valid JSON. Do NOT include any markdown, code fences, backticks, or explanations.
2. Keep all fields from the previous JSON unless the vendor explicitly modifies them.
3. Convert prices to numbers and delivery times to numeric days.
4. Extract all relevant details: item specifications, unit price, total price, delivery commitments, and terms.
5. Set "vendorQuoteSummary" to a 3-5 line summary of the vendor's quotation.

PREVIOUS JSON:
%s

VENDOR REPLY EMAIL TEXT:
%s

EXTRACTED ATTACHMENT CONTENTS:
%s

EXPECTED JSON SHAPE:
{
  "title": "",
  "description": "",
  "budget": 0,
  "deliveryDays": 0,
  "items": [
    {"name": "", "quantity": 0, "unitPrice": null, "totalPrice": null, "specifications": {}}
  ],
  "terms": [],
  "vendorQuoteSummary": ""
}`

func buildPrompt(previous json.RawMessage, body, attachments string) string {
	prev := "{}"
	if len(previous) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, previous, "", "  "); err == nil {
			prev = buf.String()
		} else {
			prev = string(previous)
		}
	}
	if strings.TrimSpace(attachments) == "" {
		attachments = "No attachments"
	}
	return fmt.Sprintf(promptTemplate, prev, body, attachments)
}
