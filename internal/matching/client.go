package matching

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	// maxResponseSize caps how much of a response body is read
	maxResponseSize = 10 << 20
	// maxErrorSnippet caps how much of an error body ends up in logs
	maxErrorSnippet = 512
)

// Matcher sends a MatchRequest to the matching service
type Matcher interface {
	// Match blocks until the service answers or the transport gives up.
	// Errors are *Error values of kind network, service or parse.
	Match(ctx context.Context, req MatchRequest) (*MatchResult, error)
}

// HTTPMatcher implements Matcher against the service's multipart endpoint
type HTTPMatcher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPMatcher creates a new HTTPMatcher. A zero timeout leaves the transport unbounded.
func NewHTTPMatcher(endpoint string, timeout time.Duration) (*HTTPMatcher, error) {
	return NewHTTPMatcherWithClient(endpoint, &http.Client{Timeout: timeout})
}

// NewHTTPMatcherWithClient creates a new HTTPMatcher with a custom client for testing
func NewHTTPMatcherWithClient(endpoint string, client *http.Client) (*HTTPMatcher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("matching service endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http or https URL: %s", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPMatcher{
		endpoint: endpoint,
		client:   client,
	}, nil
}

// Endpoint returns the configured service URL
func (m *HTTPMatcher) Endpoint() string {
	return m.endpoint
}

// Match posts both documents as one multipart body and decodes the report
func (m *HTTPMatcher) Match(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writeDocument(writer, "invoice", req.Invoice); err != nil {
		return nil, NetworkError(err)
	}
	if err := writeDocument(writer, "po", req.PO); err != nil {
		return nil, NetworkError(err)
	}
	if err := writer.Close(); err != nil {
		return nil, NetworkError(fmt.Errorf("closing multipart body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, body)
	if err != nil {
		return nil, NetworkError(fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, NetworkError(fmt.Errorf("calling matching service: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		return nil, ServiceError(fmt.Errorf("matching service error (status %d): %s",
			resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, NetworkError(fmt.Errorf("reading response: %w", err))
	}

	result, err := ParseResult(data)
	if err != nil {
		return nil, ParseError(fmt.Errorf("parsing match result: %w", err))
	}
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeDocument adds one file part carrying the document's name and content type
func writeDocument(w *multipart.Writer, field string, doc Document) error {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := doc.Name
	if filename == "" {
		filename = field
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		field, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", field, err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return fmt.Errorf("writing %s part: %w", field, err)
	}
	return nil
}
