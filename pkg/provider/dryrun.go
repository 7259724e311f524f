package provider

import (
	"context"
	"log/slog"
)

// DryRun wraps a Provider and logs upserts instead of applying them.
// Ping is still forwarded so readiness reflects the real backend.
type DryRun struct {
	next   Provider
	logger *slog.Logger
}

// NewDryRun returns a Provider that never changes DNS.
func NewDryRun(next Provider, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{next: next, logger: logger}
}

// Name returns the wrapped provider's name.
func (d *DryRun) Name() string { return d.next.Name() }

// Type returns the wrapped provider's type.
func (d *DryRun) Type() string { return d.next.Type() }

// Ping forwards to the wrapped provider.
func (d *DryRun) Ping(ctx context.Context) error { return d.next.Ping(ctx) }

// Upsert validates the change and logs it.
func (d *DryRun) Upsert(_ context.Context, change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	d.logger.Info("dry run: would upsert record",
		slog.String("provider", d.next.Name()),
		slog.String("zone_id", change.ZoneID),
		slog.String("name", change.Name),
		slog.String("type", string(change.Type)),
		slog.String("value", change.Value),
		slog.Int("ttl", change.TTL),
	)
	return nil
}

var _ Provider = (*DryRun)(nil)
