package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"strconv"

	"github.com/zhaokm8093/shared/pkg/apierror"
	"github.com/zhaokm8093/shared/pkg/dedup"
	"github.com/zhaokm8093/shared/pkg/logger"
)

// ProxyHandler forwards requests to the upstream through the deduplicating
// transport.
type ProxyHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(deps Dependencies, log logger.Logger) *ProxyHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ProxyHandler{deps: deps, logger: log}
}

// HandleProxy handles every request not claimed by an internal route.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	const op = "api.proxy"
	tr, target := h.deps.Transport(), h.deps.Upstream()
	if tr == nil || target == nil {
		h.logger.Warn(r.Context(), "proxy called before start", logger.Error(NewKind(op, ErrNotReady)))
		writeError(w, apierror.Normalize(http.StatusServiceUnavailable, apierror.CodeUnavailable, ""))
		return
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: tr,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.handleError(w, r, WrapKind(op, ErrUpstream, err))
		},
	}
	rp.ServeHTTP(w, r)
}

func (h *ProxyHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	fields := []logger.Field{
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.String("requestID", RequestIDFromContext(ctx)),
		logger.Error(err),
	}

	if dedup.IsRejection(err) {
		e := apierror.FromError(err)
		if secs, ok := e.RetryAfterSeconds(); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		h.logger.Debug(ctx, "duplicate request rejected", fields...)
		writeError(w, e)
		return
	}

	if errors.Is(err, context.Canceled) {
		h.logger.Debug(ctx, "client went away", fields...)
	} else {
		h.logger.Warn(ctx, "upstream request failed", fields...)
	}
	writeError(w, apierror.Normalize(http.StatusBadGateway, "", ""))
}
