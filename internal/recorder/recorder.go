// Package recorder implements the bounded, thread-safe ring of
// request/response/error transactions captured by the proxy engine.
package recorder

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// HeaderPair preserves header order and duplicates the way http.Header's map
// representation cannot; it marshals to the ["k","v"] JSON shape the admin
// API contract requires.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MarshalJSON renders a HeaderPair as a two-element JSON array, matching
// the ["name", "value"] shape the admin API contract requires.
func (h HeaderPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{h.Name, h.Value})
}

// BodyRecord is the analyzed, preview-safe rendering of a captured body.
type BodyRecord struct {
	ContentType *string `json:"content_type"`
	Size        int     `json:"size"`
	Preview     string  `json:"preview"`
	IsBinary    bool    `json:"is_binary"`
	Truncated   bool    `json:"truncated"`
}

// RequestRecord is the immutable description of a captured request.
type RequestRecord struct {
	ID         string       `json:"id"`
	Timestamp  int64        `json:"timestamp"`
	Method     string       `json:"method"`
	Path       string       `json:"path"`
	Version    string       `json:"version"`
	Headers    []HeaderPair `json:"headers"`
	Body       BodyRecord   `json:"body"`
	ClientAddr string       `json:"client_addr"`
}

// ResponseRecord is the captured outcome of a successful upstream round trip.
type ResponseRecord struct {
	ID         string       `json:"id"`
	Timestamp  int64        `json:"timestamp"`
	Status     int          `json:"status"`
	Version    string       `json:"version"`
	Headers    []HeaderPair `json:"headers"`
	Body       BodyRecord   `json:"body"`
	DurationMs int64        `json:"duration_ms"`
}

// Transaction pairs a request with, at most, one of a response or an error.
type Transaction struct {
	Request  RequestRecord   `json:"request"`
	Response *ResponseRecord `json:"response"`
	Error    *string         `json:"error"`
}

// RequestInfo is the input to RecordRequest.
type RequestInfo struct {
	Method     string
	Path       string
	Version    string
	Headers    []HeaderPair
	Body       []byte
	ClientAddr string
	TruncateAt int
}

// ResponseInfo is the input to RecordResponse.
type ResponseInfo struct {
	RequestID  string
	Status     int
	Version    string
	Headers    []HeaderPair
	Body       []byte
	DurationMs int64
	TruncateAt int
}

// Recorder is a bounded FIFO of Transactions, safe for concurrent use. All
// structural mutations (push, evict, resize, clear) happen under a single
// exclusive lock; snapshots copy the ring under that same lock and then
// release it before returning.
type Recorder struct {
	mu      sync.Mutex
	entries []Transaction
	maxSize int
}

// New creates a Recorder with the given capacity. A non-positive maxSize is
// treated as zero capacity (every record is immediately evicted).
func New(maxSize int) *Recorder {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Recorder{maxSize: maxSize}
}

// RecordRequest analyzes the body, assigns a fresh id and timestamp, and
// appends a new Transaction, evicting the oldest entry if the ring is full.
func (r *Recorder) RecordRequest(info RequestInfo) string {
	id := uuid.New().String()
	body := analyzeBody(info.Body, headerValue(info.Headers, "content-type"), info.TruncateAt)

	tx := Transaction{
		Request: RequestRecord{
			ID:         id,
			Timestamp:  nowMillis(),
			Method:     info.Method,
			Path:       info.Path,
			Version:    info.Version,
			Headers:    info.Headers,
			Body:       body,
			ClientAddr: info.ClientAddr,
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxSize <= 0 {
		return id
	}
	if len(r.entries) >= r.maxSize {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, tx)
	return id
}

// RecordResponse attaches a ResponseRecord to the transaction with the
// matching request id. If the request has been evicted, it is a no-op.
func (r *Recorder) RecordResponse(info ResponseInfo) {
	body := analyzeBody(info.Body, headerValue(info.Headers, "content-type"), info.TruncateAt)
	resp := ResponseRecord{
		ID:         info.RequestID,
		Timestamp:  nowMillis(),
		Status:     info.Status,
		Version:    info.Version,
		Headers:    info.Headers,
		Body:       body,
		DurationMs: info.DurationMs,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].Request.ID == info.RequestID {
			r.entries[i].Response = &resp
			return
		}
	}
}

// RecordError attaches an error string to the transaction with the matching
// request id. If the request has been evicted, it is a no-op.
func (r *Recorder) RecordError(requestID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].Request.ID == requestID {
			r.entries[i].Error = &message
			return
		}
	}
}

// Snapshot returns a consistent copy of every retained transaction, oldest
// first.
func (r *Recorder) Snapshot() []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transaction, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear empties the ring.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Resize evicts the oldest entries until at most newSize remain, and
// updates the capacity hint used by future RecordRequest calls.
func (r *Recorder) Resize(newSize int) {
	if newSize < 0 {
		newSize = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) > newSize {
		r.entries = r.entries[len(r.entries)-newSize:]
	}
	r.maxSize = newSize
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func headerValue(headers []HeaderPair, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeadersFromHTTP converts an http.Header into the order-preserving,
// duplicate-preserving slice the recorder stores. http.Header itself only
// preserves order within a single key's value list (as populated by the Go
// HTTP stack during parsing), which is the best duplicate-fidelity net/http
// exposes. Values of one name keep their order; the order of the different
// names follows map iteration and is not defined.
func HeadersFromHTTP(h http.Header) []HeaderPair {
	pairs := make([]HeaderPair, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			pairs = append(pairs, HeaderPair{Name: name, Value: v})
		}
	}
	return pairs
}

// analyzeBody implements the body-analysis rules of the debug proxy: binary
// detection by content-type then byte heuristic, truncation, and a
// UTF-8-safe preview.
func analyzeBody(body []byte, contentType string, truncateAt int) BodyRecord {
	size := len(body)

	var ctPtr *string
	if contentType != "" {
		ct := contentType
		ctPtr = &ct
	}

	isBinary := isBinaryContent(body, contentType)
	truncated := size > truncateAt

	var preview string
	switch {
	case isBinary && size > 0:
		preview = binaryPreview(size)
	case isBinary:
		preview = ""
	default:
		limit := truncateAt
		if limit > size {
			limit = size
		}
		if limit < 0 {
			limit = 0
		}
		slice := body[:limit]
		if utf8.Valid(slice) {
			preview = string(slice)
		} else {
			preview = invalidUTF8Preview(size)
		}
	}

	return BodyRecord{
		ContentType: ctPtr,
		Size:        size,
		Preview:     preview,
		IsBinary:    isBinary,
		Truncated:   truncated,
	}
}

func isBinaryContent(data []byte, contentType string) bool {
	if len(data) == 0 {
		return false
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			typ, subtype, ok := strings.Cut(mediaType, "/")
			if ok {
				switch {
				case typ == "text":
					return false
				case mediaType == "application/json":
					return false
				case mediaType == "application/javascript":
					return false
				case typ == "application" && subtype == "xml":
					return false
				case typ == "application" && strings.HasSuffix(subtype, "+json"):
					return false
				case typ == "application" && strings.HasSuffix(subtype, "+xml"):
					return false
				}
			}
		}
	}

	nullCount := 0
	nonPrintable := 0
	for _, b := range data {
		if b == 0 {
			nullCount++
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}
	if nullCount > 0 {
		return true
	}
	return nonPrintable*100/len(data) > 30
}

func binaryPreview(size int) string {
	return fmt.Sprintf("<binary data: %d bytes>", size)
}

func invalidUTF8Preview(size int) string {
	return fmt.Sprintf("<invalid UTF-8: %d bytes>", size)
}
