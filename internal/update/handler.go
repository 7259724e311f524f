// Package update implements the dynamic DNS update pipeline: authenticate a
// credential, compare the caller's address with the last one set, upsert DNS
// and persist the new address.
package update

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/metrics"
	"gitlab.bluewillows.net/root/ddnsweaver/pkg/provider"
)

// Outcome is a successful update result.
type Outcome int

const (
	// OutcomeUpdated means DNS and the store now hold the caller's address.
	OutcomeUpdated Outcome = iota
	// OutcomeUnchanged means the caller's address was already set.
	OutcomeUnchanged
)

// Message returns the response text for the outcome.
func (o Outcome) Message() string {
	if o == OutcomeUnchanged {
		return "No ip change"
	}
	return "Record updated"
}

func (o Outcome) String() string { return o.Message() }

// Request is the decoded update request body.
type Request struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Handler runs update requests against a credential store and a DNS provider.
// It holds no per-request state and is safe for concurrent use.
type Handler struct {
	store   credential.Store
	dns     provider.Provider
	ttl     int
	logger  *slog.Logger
	metrics metrics.Recorder
	dryRun  bool
}

// Option is a functional option for configuring the Handler.
type Option func(*Handler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTTL sets the TTL written with each record.
func WithTTL(ttl int) Option {
	return func(h *Handler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithDryRun routes upserts through provider.DryRun and leaves the store
// untouched, so a later real run still sees the address as changed.
func WithDryRun(enabled bool) Option {
	return func(h *Handler) {
		h.dryRun = enabled
	}
}

// New creates a Handler.
func New(store credential.Store, dns provider.Provider, opts ...Option) *Handler {
	h := &Handler{
		store:   store,
		dns:     dns,
		ttl:     provider.DefaultTTL,
		logger:  slog.Default(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.dryRun {
		if _, ok := h.dns.(*provider.DryRun); !ok {
			h.dns = provider.NewDryRun(h.dns, h.logger)
		}
	}
	return h
}

// HandleUpdate processes one update. rawBody is the JSON request body and
// sourceAddress the caller's IP as seen by the transport, which may be empty.
//
// The store is written only after DNS accepted the change. If that write
// fails, DNS is left ahead of the store and the next request from the same
// address repeats the upsert.
func (h *Handler) HandleUpdate(ctx context.Context, rawBody []byte, sourceAddress string) (Outcome, error) {
	outcome, err := h.handle(ctx, rawBody, sourceAddress)
	h.metrics.Update(outcomeLabel(outcome, err))
	return outcome, err
}

func (h *Handler) handle(ctx context.Context, rawBody []byte, sourceAddress string) (Outcome, error) {
	req, err := ParseRequest(rawBody)
	if err != nil {
		h.logger.Info("rejected update request", slog.String("error", err.Error()))
		return 0, validationError("parse", "", err)
	}
	logger := h.logger.With(slog.String("key", req.Key))

	if sourceAddress == "" {
		logger.Warn("update request without source address")
		return 0, validationError("source", req.Key, errNoSourceAddress)
	}
	logger = logger.With(slog.String("source", sourceAddress))

	record, err := h.lookup(ctx, req.Key)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		// Unknown keys fall through to the same rejection as a bad secret.
	case err != nil:
		logger.Error("credential lookup failed", slog.String("error", err.Error()))
		return 0, internalError("lookup", req.Key, err)
	default:
		if verr := record.Validate(); verr != nil {
			logger.Error("credential record unusable", slog.String("error", verr.Error()))
			return 0, internalError("lookup", req.Key, verr)
		}
	}

	if err != nil || !record.Verify(req.Secret) {
		logger.Info("update not authorized")
		return 0, &Error{Kind: KindAuth, Op: "authenticate", Key: req.Key, Err: errBadCredentials}
	}

	if record.LastSetAddress == sourceAddress {
		logger.Debug("address unchanged")
		return OutcomeUnchanged, nil
	}

	recordType, err := RecordTypeFor(sourceAddress)
	if err != nil {
		logger.Warn("cannot infer record type", slog.String("error", err.Error()))
		return 0, validationError("record type", req.Key, err)
	}

	change := provider.Change{
		ZoneID: record.ZoneID,
		Name:   record.Domain,
		Type:   recordType,
		Value:  sourceAddress,
		TTL:    h.ttl,
	}
	start := time.Now()
	err = h.dns.Upsert(ctx, change)
	h.metrics.Upsert(h.dns.Name(), time.Since(start).Seconds())
	if err != nil {
		logger.Error("dns upsert failed",
			slog.String("domain", record.Domain),
			slog.String("zone_id", record.ZoneID),
			slog.String("type", string(recordType)),
			slog.String("cause", provider.Cause(err)),
			slog.String("error", err.Error()),
		)
		return 0, internalError("dns upsert", req.Key, err)
	}

	if h.dryRun {
		logger.Info("dry run: store not updated",
			slog.String("domain", record.Domain),
			slog.String("previous", record.LastSetAddress),
		)
		return OutcomeUpdated, nil
	}

	if err := h.store.Put(ctx, record.WithAddress(sourceAddress)); err != nil {
		h.metrics.Store(metrics.OpPut, metrics.ResultError)
		logger.Error("store write failed after dns upsert; dns is ahead of store",
			slog.String("domain", record.Domain),
			slog.String("address", sourceAddress),
			slog.String("previous", record.LastSetAddress),
			slog.String("error", err.Error()),
		)
		return 0, internalError("persist", req.Key, err)
	}
	h.metrics.Store(metrics.OpPut, metrics.ResultSuccess)

	logger.Info("record updated",
		slog.String("domain", record.Domain),
		slog.String("type", string(recordType)),
		slog.String("previous", record.LastSetAddress),
	)
	return OutcomeUpdated, nil
}

func (h *Handler) lookup(ctx context.Context, key string) (credential.Record, error) {
	record, err := h.store.Get(ctx, key)
	switch {
	case err == nil:
		h.metrics.Store(metrics.OpGet, metrics.ResultSuccess)
	case errors.Is(err, credential.ErrNotFound):
		h.metrics.Store(metrics.OpGet, metrics.ResultNotFound)
	default:
		h.metrics.Store(metrics.OpGet, metrics.ResultError)
	}
	return record, err
}

// ParseRequest decodes an update request body. The body must be a single JSON
// object with non-empty string key and secret; unknown fields are ignored.
func ParseRequest(rawBody []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	if err := dec.Decode(&req); err != nil {
		return Request{}, errors.Join(errMalformedBody, err)
	}
	if len(bytes.TrimSpace(rawBody[dec.InputOffset():])) > 0 {
		return Request{}, errMalformedBody
	}
	if req.Key == "" || req.Secret == "" {
		return Request{}, errMissingField
	}
	return req, nil
}

func outcomeLabel(o Outcome, err error) string {
	if err == nil {
		if o == OutcomeUnchanged {
			return metrics.OutcomeUnchanged
		}
		return metrics.OutcomeUpdated
	}
	switch KindOf(err) {
	case KindValidation:
		return metrics.OutcomeValidation
	case KindAuth:
		return metrics.OutcomeAuth
	default:
		return metrics.OutcomeInternal
	}
}
