// Package proxy implements the request forwarding engine: the per-request
// pipeline that reads, records, forwards under a deadline, and records the
// outcome of every request that is not addressed to the admin surface.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sofatutor/debugproxy/internal/config"
	"github.com/sofatutor/debugproxy/internal/logging"
	"github.com/sofatutor/debugproxy/internal/recorder"
)

// AdminPrefix is the path prefix that routes a request to the admin surface
// instead of the forwarding pipeline.
const AdminPrefix = "/_proxy"

// Upstream is the capability the engine needs from an HTTP client: given a
// request, yield a response or an error. *http.Client satisfies this,
// letting tests inject a scripted upstream instead.
type Upstream interface {
	Do(req *http.Request) (*http.Response, error)
}

// Engine is the proxy's HTTP entry point. It dispatches admin requests to
// Admin and performs the forwarding pipeline for everything else.
type Engine struct {
	Config       *config.Store
	Recorder     *recorder.Recorder
	Upstream     Upstream
	UpstreamAddr string
	Admin        http.Handler
	Logger       *zap.Logger
}

// ServeHTTP implements http.Handler.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, AdminPrefix) {
		e.Admin.ServeHTTP(w, r)
		return
	}
	e.handleProxyRequest(w, r)
}

func (e *Engine) handleProxyRequest(w http.ResponseWriter, r *http.Request) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		e.log().Warn("failed to read request body", zap.Error(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	snapshot := e.Config.Snapshot()
	pipelineStart := time.Now()

	requestPath := r.URL.RequestURI()
	id := e.Recorder.RecordRequest(recorder.RequestInfo{
		Method:     r.Method,
		Path:       requestPath,
		Version:    r.Proto,
		Headers:    recorder.HeadersFromHTTP(r.Header),
		Body:       bodyBytes,
		ClientAddr: r.RemoteAddr,
		TruncateAt: snapshot.TruncateBodyAt,
	})
	upstreamTimeout := snapshot.UpstreamTimeout

	upstreamReq, cancel, err := e.buildUpstreamRequest(r, requestPath, bodyBytes, upstreamTimeout)
	if err != nil {
		e.log().Error("failed to build upstream request", zap.String(logging.FieldRequestID, id), zap.Error(err))
		e.Recorder.RecordError(id, fmt.Sprintf("Upstream error: %v", err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer cancel()

	resp, err := e.Upstream.Do(upstreamReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.log().Warn("upstream request timed out", zap.String(logging.FieldRequestID, id), zap.Duration("upstream_timeout", upstreamTimeout))
			e.Recorder.RecordError(id, "Upstream timeout")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Service Unavailable - Upstream Timeout"))
			return
		}
		e.log().Error("upstream request failed", zap.String(logging.FieldRequestID, id), zap.Error(err))
		e.Recorder.RecordError(id, fmt.Sprintf("Upstream error: %v", err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	duration := time.Since(pipelineStart)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.log().Error("failed to read upstream response body", zap.String(logging.FieldRequestID, id), zap.Error(err))
		e.Recorder.RecordError(id, fmt.Sprintf("Error reading response: %v", err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	truncateAt := e.Config.Snapshot().TruncateBodyAt

	e.Recorder.RecordResponse(recorder.ResponseInfo{
		RequestID:  id,
		Status:     resp.StatusCode,
		Version:    resp.Proto,
		Headers:    recorder.HeadersFromHTTP(resp.Header),
		Body:       respBody,
		DurationMs: duration.Milliseconds(),
		TruncateAt: truncateAt,
	})

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil {
		// Client disconnected or the write otherwise failed after the
		// response was already decided; nothing left to record.
		e.log().Debug("failed writing response to client", zap.String(logging.FieldRequestID, id), zap.Error(err))
	}
}

// buildUpstreamRequest reconstructs the request against the upstream
// address, copying method, headers, and body; the scheme is always http.
// The returned cancel func releases the deadline's timer and must be
// called by the caller once the dispatch has completed.
//
// The deadline is derived from context.Background() rather than the
// inbound request's context, so that a client disconnect never cancels
// an in-flight upstream dispatch. The upstream timeout is the only
// cancellation source here.
func (e *Engine) buildUpstreamRequest(r *http.Request, requestPath string, body []byte, timeout time.Duration) (*http.Request, context.CancelFunc, error) {
	url := fmt.Sprintf("http://%s%s", e.UpstreamAddr, requestPath)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	req, err := http.NewRequestWithContext(ctx, r.Method, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header = r.Header.Clone()
	return req, cancel, nil
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func (e *Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}
