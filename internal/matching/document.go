package matching

// Document is a named binary payload selected by the user
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Size returns the payload length in bytes
func (d *Document) Size() int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}

// MatchRequest pairs an invoice with a purchase order. It only exists for the
// duration of a dispatch.
type MatchRequest struct {
	Invoice Document
	PO      Document
}

// Holder owns the invoice and purchase order slots. It performs no validation and is
// not safe for concurrent use on its own; the Controller guards it.
type Holder struct {
	invoice *Document
	po      *Document
}

// SelectInvoice replaces the invoice slot
func (h *Holder) SelectInvoice(doc Document) {
	h.invoice = &doc
}

// SelectPO replaces the purchase order slot
func (h *Holder) SelectPO(doc Document) {
	h.po = &doc
}

// Reset clears both slots
func (h *Holder) Reset() {
	h.invoice = nil
	h.po = nil
}

// Invoice returns the selected invoice or nil
func (h *Holder) Invoice() *Document {
	return h.invoice
}

// PO returns the selected purchase order or nil
func (h *Holder) PO() *Document {
	return h.po
}

// Ready reports whether both slots are filled
func (h *Holder) Ready() bool {
	return h.invoice != nil && h.po != nil
}

// request builds a MatchRequest from the current slots; callers check Ready first
func (h *Holder) request() MatchRequest {
	return MatchRequest{Invoice: *h.invoice, PO: *h.po}
}
