// Package transport provides an http.RoundTripper that sends outbound
// requests through a request deduplicator.
package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/zhaokm8093/shared/pkg/dedup"
	"github.com/zhaokm8093/shared/pkg/logger"
	"github.com/zhaokm8093/shared/pkg/metrics"
)

// ErrNoDeduplicator is returned by New when no deduplicator is supplied.
var ErrNoDeduplicator = errors.New("transport: nil deduplicator")

// DefaultMethods are deduplicated unless WithMethods says otherwise.
var DefaultMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost,
	http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// CredentialHeaders identify who a request is made for. DefaultKeyData keys
// on a hash of their values, so callers with different credentials never
// share a response.
var CredentialHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie"}

// KeyFunc returns the data that, together with the method and URL, decides
// which requests are identical.
type KeyFunc func(req *http.Request, body []byte) any

// DefaultKeyData keys on the body alone for anonymous requests. When any
// credential header is present the body is wrapped together with a SHA-256
// of the credentials; the raw values never reach the key.
func DefaultKeyData(req *http.Request, body []byte) any {
	cred := credentialHash(req.Header)
	if cred == "" {
		if len(body) == 0 {
			return nil
		}
		return body
	}
	data := map[string]any{"credentials": cred}
	switch {
	case len(body) == 0:
	case json.Valid(body):
		data["body"] = json.RawMessage(body)
	default:
		data["body"] = string(body)
	}
	return data
}

func credentialHash(h http.Header) string {
	sum := sha256.New()
	found := false
	for _, name := range CredentialHeaders {
		values := h.Values(name)
		if len(values) == 0 {
			continue
		}
		found = true
		_, _ = io.WriteString(sum, name)
		for _, v := range values {
			_, _ = io.WriteString(sum, "\x00"+v)
		}
		_, _ = io.WriteString(sum, "\n")
	}
	if !found {
		return ""
	}
	return hex.EncodeToString(sum.Sum(nil))
}

// Transport deduplicates identical outbound requests. Callers that share a
// request each get their own copy of the buffered response.
type Transport struct {
	dedup              *dedup.Deduplicator
	base               http.RoundTripper
	methods            map[string]struct{}
	blockAfterComplete time.Duration
	timeout            time.Duration
	keyFunc            KeyFunc
	logger             logger.Logger
}

// New returns a Transport backed by d.
func New(d *dedup.Deduplicator, opts ...Option) (*Transport, error) {
	if d == nil {
		return nil, ErrNoDeduplicator
	}
	t := &Transport{
		dedup:   d,
		base:    http.DefaultTransport,
		keyFunc: DefaultKeyData,
		logger:  logger.Nop(),
	}
	WithMethods(DefaultMethods)(t)
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := t.methods[req.Method]; !ok {
		return t.send(req)
	}

	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	cfg := dedup.RequestConfig{
		Method: req.Method,
		URL:    req.URL.String(),
		Data:   t.keyFunc(req, body),
	}
	if !isSafe(req.Method) {
		cfg.BlockAfterComplete = t.blockAfterComplete
	}

	snap, err := dedup.Run(req.Context(), t.dedup, cfg, func(ctx context.Context) (*snapshot, error) {
		return t.fetch(ctx, req, body)
	})
	var bad *statusError
	if errors.As(err, &bad) {
		return bad.snap.response(req), nil
	}
	if err != nil {
		if reason, ok := dedup.ReasonOf(err); ok {
			t.logger.Debug(req.Context(), "request rejected",
				logger.String("method", req.Method),
				logger.String("url", req.URL.Redacted()),
				logger.String("reason", string(reason)))
		}
		return nil, err
	}
	return snap.response(req), nil
}

// fetch performs the upstream call and buffers the response. Error statuses
// come back as a statusError so they never start a cool-down.
func (t *Transport) fetch(ctx context.Context, req *http.Request, body []byte) (*snapshot, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	out := req.Clone(ctx)
	out.Body, out.GetBody = nil, nil
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		out.ContentLength = int64(len(body))
	}

	resp, err := t.send(out)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordUpstreamError()
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	snap := &snapshot{
		status:        resp.StatusCode,
		proto:         resp.Proto,
		protoMajor:    resp.ProtoMajor,
		protoMinor:    resp.ProtoMinor,
		header:        resp.Header.Clone(),
		trailer:       resp.Trailer.Clone(),
		body:          payload,
		contentLength: int64(len(payload)),
	}
	if req.Method == http.MethodHead {
		snap.contentLength = resp.ContentLength
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &statusError{snap: snap}
	}
	return snap, nil
}

func (t *Transport) send(req *http.Request) (*http.Response, error) {
	metrics.RecordUpstreamRequest(req.Method)
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		metrics.RecordUpstreamError()
		t.logger.Warn(req.Context(), "upstream request failed",
			logger.String("method", req.Method),
			logger.String("url", req.URL.Redacted()),
			logger.Error(err))
		return nil, err
	}
	return resp, nil
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

func isSafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// snapshot is a fully buffered upstream response shared between callers.
// It is never mutated after fetch returns.
type snapshot struct {
	status     int
	proto      string
	protoMajor int
	protoMinor int
	header     http.Header
	trailer    http.Header
	body       []byte

	contentLength int64
}

func (s *snapshot) response(req *http.Request) *http.Response {
	resp := &http.Response{
		Status:        strconv.Itoa(s.status) + " " + http.StatusText(s.status),
		StatusCode:    s.status,
		Proto:         s.proto,
		ProtoMajor:    s.protoMajor,
		ProtoMinor:    s.protoMinor,
		Header:        s.header.Clone(),
		Trailer:       s.trailer.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: s.contentLength,
		Request:       req,
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if s.contentLength >= 0 {
		resp.Header.Set("Content-Length", strconv.FormatInt(s.contentLength, 10))
	}
	return resp
}

// statusError carries an error response through the deduplicator.
type statusError struct {
	snap *snapshot
}

func (e *statusError) Error() string {
	return "upstream responded " + strconv.Itoa(e.snap.status)
}
