package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/invoice-matcher/internal/matching"
	"github.com/zombor/invoice-matcher/internal/preview"
)

// maxUploadSize bounds a single document upload
var maxUploadSize = int64(50 << 20) // 50MB

// multipartOverhead allows for the boundaries and part headers around the file
const multipartOverhead = int64(64 << 10)

const (
	slotInvoice = "invoice"
	slotPO      = "po"
)

// documentView describes a selected document without its bytes
type documentView struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// stateView is the JSON shape of the workflow for the front-end
type stateView struct {
	Phase   matching.Phase        `json:"phase"`
	Result  *matching.MatchResult `json:"result,omitempty"`
	Error   *matching.Error       `json:"error,omitempty"`
	Invoice *documentView         `json:"invoice"`
	PO      *documentView         `json:"po"`
}

func newStateView(s matching.Snapshot) stateView {
	return stateView{
		Phase:   s.State.Phase,
		Result:  s.State.Current(),
		Error:   s.State.Err,
		Invoice: newDocumentView(s.Invoice),
		PO:      newDocumentView(s.PO),
	}
}

func newDocumentView(doc *matching.Document) *documentView {
	if doc == nil {
		return nil
	}
	return &documentView{Name: doc.Name, ContentType: doc.ContentType, Size: len(doc.Data)}
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleGetState returns the current workflow state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.controller.Snapshot()))
}

// handleSelectDocument replaces the invoice or purchase order selection
func (s *Server) handleSelectDocument(w http.ResponseWriter, r *http.Request) {
	slot := r.PathValue("slot")
	if slot != slotInvoice && slot != slotPO {
		jsonError(w, "Unknown document slot. Use 'invoice' or 'po'.", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = tooLargeMessage()
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		slog.Warn("Rejecting oversized document", "filename", header.Filename, "size", header.Size)
		jsonError(w, tooLargeMessage(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	doc := matching.Document{
		Name:        filepath.Base(header.Filename),
		ContentType: contentTypeFor(header.Filename, header.Header.Get("Content-Type")),
		Data:        data,
	}
	if slot == slotInvoice {
		s.controller.SelectInvoice(doc)
	} else {
		s.controller.SelectPO(doc)
	}
	slog.Info("Document selected", "slot", slot, "name", doc.Name, "content_type", doc.ContentType, "size", len(data))

	writeJSON(w, http.StatusOK, newStateView(s.controller.Snapshot()))
}

// handleGetDocument returns the raw bytes of a selected document
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Name))
	w.Write(doc.Data)
}

// handlePreviewDocument renders a selected document as PNG
func (s *Server) handlePreviewDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	img, err := preview.Render(*doc)
	if err != nil {
		slog.Warn("Error rendering preview", "name", doc.Name, "error", err)
		if errors.Is(err, preview.ErrUnsupported) {
			jsonError(w, "Preview is not available for this file type", http.StatusUnsupportedMediaType)
			return
		}
		jsonError(w, "Could not render a preview of this file", http.StatusUnprocessableEntity)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/png")
	w.Write(img)
}

// handleMatch submits the selected documents and waits for the report
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	// The submission outlives a dropped browser connection; only the transport
	// timeout bounds it.
	state, err := s.controller.Submit(context.WithoutCancel(r.Context()))
	view := s.viewOf(state)

	var merr *matching.Error
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, matching.ErrSubmissionInFlight), errors.Is(err, matching.ErrSubmissionDiscarded):
		writeJSON(w, http.StatusConflict, view)
	case errors.As(err, &merr) && merr.Kind == matching.KindValidation:
		writeJSON(w, http.StatusUnprocessableEntity, view)
	default:
		writeJSON(w, http.StatusBadGateway, view)
	}
}

// viewOf pairs a state returned by the controller with the current document slots
func (s *Server) viewOf(state matching.State) stateView {
	snapshot := s.controller.Snapshot()
	snapshot.State = state
	return newStateView(snapshot)
}

func tooLargeMessage() string {
	return fmt.Sprintf("File is too large. Maximum size is %dMB.", maxUploadSize>>20)
}

// handleReset clears the selections and any result or error
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.viewOf(s.controller.Reset()))
}

// document looks up the slot named in the path, writing a 404 when it is empty
func (s *Server) document(w http.ResponseWriter, r *http.Request) (*matching.Document, bool) {
	snapshot := s.controller.Snapshot()
	var doc *matching.Document
	switch r.PathValue("slot") {
	case slotInvoice:
		doc = snapshot.Invoice
	case slotPO:
		doc = snapshot.PO
	}
	if doc == nil {
		corsError(w, "Document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}

// contentTypeFor prefers the part's declared type and falls back to the extension
func contentTypeFor(filename, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
