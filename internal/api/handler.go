// Package api exposes the update handler over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/update"
)

// MaxBodyBytes caps the size of an update request body.
const MaxBodyBytes = 64 << 10

// Response texts.
const (
	TextBadRequest       = "Bad Request"
	TextNotAuthorized    = "Not authorized"
	TextInternalError    = "Internal Server Error"
	TextMethodNotAllowed = "Method Not Allowed"
)

// Updater runs one update request.
type Updater interface {
	HandleUpdate(ctx context.Context, rawBody []byte, sourceAddress string) (update.Outcome, error)
}

// Handler translates HTTP requests into update calls and update results into
// plain-text responses.
type Handler struct {
	updater  Updater
	resolver *SourceResolver
	timeout  time.Duration
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRequestTimeout bounds each update call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = d
	}
}

// WithSourceResolver sets how the caller's address is derived.
func WithSourceResolver(r *SourceResolver) HandlerOption {
	return func(h *Handler) {
		h.resolver = r
	}
}

// WithHandlerLogger sets a custom logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler for updater.
func NewHandler(updater Updater, opts ...HandlerOption) *Handler {
	h := &Handler{
		updater:  updater,
		resolver: NewSourceResolver(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, TextMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Info("request body too large", slog.Int64("limit", tooLarge.Limit))
		} else {
			h.logger.Info("reading request body failed", slog.String("error", err.Error()))
		}
		writeText(w, http.StatusBadRequest, TextBadRequest)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcome, err := h.updater.HandleUpdate(ctx, body, h.resolver.Resolve(r))
	if err != nil {
		status, text := StatusFor(err)
		writeText(w, status, text)
		return
	}
	writeText(w, http.StatusOK, outcome.Message())
}

// StatusFor maps an update error to its HTTP status and response text. The
// text never reveals which gate failed.
func StatusFor(err error) (int, string) {
	switch update.KindOf(err) {
	case update.KindValidation:
		return http.StatusBadRequest, TextBadRequest
	case update.KindAuth:
		return http.StatusUnauthorized, TextNotAuthorized
	default:
		return http.StatusInternalServerError, TextInternalError
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
