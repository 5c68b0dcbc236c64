package extraction

// proposalSchema describes the structured proposal the model must return.
// Fields stay optional because vendors rarely answer every point of an RFP.
const proposalSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "title": {"type": ["string", "null"]},
    "description": {"type": ["string", "null"]},
    "budget": {"type": ["number", "null"]},
    "deliveryDays": {"type": ["number", "null"]},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": ["string", "null"]},
          "quantity": {"type": ["number", "null"]},
          "unitPrice": {"type": ["number", "null"]},
          "totalPrice": {"type": ["number", "null"]},
          "specifications": {"type": ["object", "null"]}
        }
      }
    },
    "terms": {"type": ["array", "null"]},
    "vendorQuoteSummary": {"type": ["string", "null"]}
  }
}`
