package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/zhaokm8093/shared/pkg/logger"
)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the RoundTripper that performs the real request.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithMethods sets the HTTP methods routed through the deduplicator.
// Other methods pass straight to the base transport.
func WithMethods(methods []string) Option {
	return func(t *Transport) {
		if methods == nil {
			return
		}
		t.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			t.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}
}

// WithBlockAfterComplete sets the cool-down applied to unsafe methods after
// a successful response.
func WithBlockAfterComplete(d time.Duration) Option {
	return func(t *Transport) {
		if d >= 0 {
			t.blockAfterComplete = d
		}
	}
}

// WithUpstreamTimeout bounds one upstream round trip. Zero disables it.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d >= 0 {
			t.timeout = d
		}
	}
}

// WithKeyFunc replaces how a request's dedup data is derived. fn sees the
// request and its buffered body; whatever it returns is serialized into the
// key next to the method and URL. Requests that may be served the same
// response must map to equal data.
func WithKeyFunc(fn KeyFunc) Option {
	return func(t *Transport) {
		if fn != nil {
			t.keyFunc = fn
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}
