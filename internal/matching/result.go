package matching

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Issue is a single discrepancy reported by the matching service
type Issue struct {
	Severity    string `json:"severity,omitempty"`
	Field       string `json:"field,omitempty"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts either a bare string or an object. The service reports
// plain-string issues such as "Vendor name mismatch."
func (i *Issue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty issue")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshaling issue text: %w", err)
		}
		*i = Issue{Description: s}
		return nil
	case '{':
		var obj struct {
			Severity    string `json:"severity"`
			Field       string `json:"field"`
			Category    string `json:"category"`
			Description string `json:"description"`
			Message     string `json:"message"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("unmarshaling issue: %w", err)
		}
		*i = Issue{
			Severity:    obj.Severity,
			Field:       firstNonEmpty(obj.Field, obj.Category),
			Description: firstNonEmpty(obj.Description, obj.Message),
		}
		return nil
	default:
		return fmt.Errorf("issue must be a string or an object, got %s", data)
	}
}

// MatchResult is the report returned by the matching service. The body it was decoded
// from is retained and re-emitted by MarshalJSON so consumers see it unmodified.
type MatchResult struct {
	Status        string  `json:"status"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	PONumber      string  `json:"po_number,omitempty"`
	VendorMatch   bool    `json:"vendor_match"`
	CustomerMatch *bool   `json:"customer_match,omitempty"`
	TotalMatch    *bool   `json:"total_match,omitempty"`
	Issues        []Issue `json:"issues"`

	raw json.RawMessage
}

// wireResult mirrors the response body with every field optional so presence can be
// checked. Both snake_case and camelCase keys are accepted. Only status and vendor
// match are typed strictly; the comparison fields are extracted by looseText and
// looseBool since the service copies them from extracted document data.
type wireResult struct {
	Status             *string         `json:"status"`
	InvoiceNumber      json.RawMessage `json:"invoice_number"`
	InvoiceNumberCamel json.RawMessage `json:"invoiceNumber"`
	PONumber           json.RawMessage `json:"po_number"`
	PONumberCamel      json.RawMessage `json:"poNumber"`
	VendorMatch        *bool           `json:"vendor_match"`
	VendorMatchCamel   *bool           `json:"vendorMatch"`
	CustomerMatch      json.RawMessage `json:"customer_match"`
	CustomerMatchCamel json.RawMessage `json:"customerMatch"`
	TotalMatch         json.RawMessage `json:"total_match"`
	TotalMatchCamel    json.RawMessage `json:"totalMatch"`
	Issues             []Issue         `json:"issues"`
}

// ParseResult decodes and validates a service response body
func ParseResult(body []byte) (*MatchResult, error) {
	var r MatchResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UnmarshalJSON validates the body against the expected result shape
func (r *MatchResult) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshaling match result: %w", err)
	}

	if w.Status == nil || strings.TrimSpace(*w.Status) == "" {
		return errors.New("match result is missing status")
	}
	vendor := firstBool(w.VendorMatch, w.VendorMatchCamel)
	if vendor == nil {
		return errors.New("match result is missing vendor match")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return fmt.Errorf("compacting match result: %w", err)
	}

	issues := w.Issues
	if issues == nil {
		issues = []Issue{}
	}

	*r = MatchResult{
		Status:        *w.Status,
		InvoiceNumber: firstNonEmpty(looseText(w.InvoiceNumber), looseText(w.InvoiceNumberCamel)),
		PONumber:      firstNonEmpty(looseText(w.PONumber), looseText(w.PONumberCamel)),
		VendorMatch:   *vendor,
		CustomerMatch: firstBool(looseBool(w.CustomerMatch), looseBool(w.CustomerMatchCamel)),
		TotalMatch:    firstBool(looseBool(w.TotalMatch), looseBool(w.TotalMatchCamel)),
		Issues:        issues,
		raw:           compact.Bytes(),
	}
	return nil
}

// MarshalJSON re-emits the original body when there is one
func (r MatchResult) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain MatchResult
	return json.Marshal(plain(r))
}

// Raw returns the body the result was decoded from, or nil for a constructed value
func (r *MatchResult) Raw() json.RawMessage {
	return r.raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// looseText reads a string or a number. Anything else yields "" and is still
// available through the raw body.
func looseText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}

// looseBool reads a boolean or a boolean-looking string such as "true" or "no"
func looseBool(raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		b = true
	case "false", "no":
		b = false
	default:
		return nil
	}
	return &b
}

func firstBool(values ...*bool) *bool {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
