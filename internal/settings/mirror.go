package settings

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shopgate/internal/platform/metrics"
	dErrors "shopgate/pkg/domain-errors"
	"shopgate/pkg/platform/audit"
	"shopgate/pkg/platform/sentinel"
	"shopgate/pkg/requestcontext"
)

// Store is the authoritative backend for the settings row.
type Store interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, next *Settings) (*Settings, error)
}

// Publisher broadcasts accepted rows to other instances.
type Publisher interface {
	Publish(ctx context.Context, row *Settings) error
}

// AuditPublisher records settings mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Mirror keeps an in-process copy of the settings row for synchronous
// reads. Update is optimistic: the mirror changes before the remote write,
// holding the exact pre-image, and a rejected write restores the pre-image
// untouched.
type Mirror struct {
	store    Store
	notifier Publisher
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	// updateMu serializes whole update attempts so one update's rollback
	// can never clobber another's accepted row. mu alone only protects the
	// individual reads and writes of current.
	updateMu sync.Mutex

	mu      sync.RWMutex
	current *Settings
}

func NewMirror(store Store, notifier Publisher, auditor AuditPublisher, m *metrics.Metrics, logger *slog.Logger) *Mirror {
	return &Mirror{
		store:    store,
		notifier: notifier,
		auditor:  auditor,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("shopgate/settings"),
	}
}

// Init loads the authoritative row. A missing row falls back to defaults so
// reads work before the first admin write.
func (m *Mirror) Init(ctx context.Context) error {
	row, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			defaults := Defaults()
			row = &defaults
		} else {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load store settings")
		}
	}
	m.mu.Lock()
	m.current = row
	m.mu.Unlock()
	return nil
}

// Current returns a copy of the mirrored row.
func (m *Mirror) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current.Clone()
}

// Quote derives shipping and tax for a subtotal from one consistent row.
func (m *Mirror) Quote(subtotal int64) (shipping, tax int64, currency string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.ShippingCost(subtotal), m.current.TaxAmount(subtotal), m.current.Currency
}

// Update applies next optimistically, then writes through. Attempts run
// one at a time. On a version conflict the mirror converges on the
// authoritative row, because the pre-image it held may itself be stale; any
// other rejection restores the held pre-image exactly. On acceptance the
// authoritative row (with its new version) replaces the optimistic one and
// is broadcast.
func (m *Mirror) Update(ctx context.Context, next Settings) (Settings, error) {
	ctx, span := m.tracer.Start(ctx, "settings.Update")
	defer span.End()

	if err := validate(next); err != nil {
		return m.Current(), err
	}

	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	preImage := m.current.Clone()
	optimistic := next.Clone()
	optimistic.Version = preImage.Version
	optimistic.UpdatedAt = preImage.UpdatedAt
	m.current = optimistic
	m.mu.Unlock()

	accepted, err := m.store.Save(ctx, optimistic)
	if err != nil {
		m.rollback(ctx, preImage, err)
		m.metrics.SettingsRollbacks.Inc()
		m.logAudit(ctx, audit.EventSettingsRolledBack, "remote write rejected")

		if errors.Is(err, sentinel.ErrConflict) {
			return m.Current(), dErrors.Wrap(err, dErrors.CodeConflict,
				"settings were changed by someone else")
		}
		return m.Current(), dErrors.Wrap(err, dErrors.CodeUnavailable,
			"failed to save store settings")
	}

	m.mu.Lock()
	m.current = accepted.Clone()
	m.mu.Unlock()
	m.metrics.SettingsUpdates.Inc()
	span.SetAttributes(attribute.Int64("settings.version", accepted.Version))
	m.logAudit(ctx, audit.EventSettingsUpdated, "")

	if m.notifier != nil {
		if perr := m.notifier.Publish(ctx, accepted); perr != nil {
			m.logger.ErrorContext(ctx, "failed to broadcast settings update", "error", perr)
		}
	}
	return *accepted.Clone(), nil
}

// rollback undoes the optimistic swap. A conflict means the store has
// moved past whatever version the mirror held, so the authoritative row is
// reloaded; restoring the pre-image there would pin the mirror behind the
// store and reject every later update. Other failures keep the pre-image.
func (m *Mirror) rollback(ctx context.Context, preImage *Settings, saveErr error) {
	restored := preImage
	if errors.Is(saveErr, sentinel.ErrConflict) {
		if row, err := m.store.Load(ctx); err == nil {
			restored = row
		} else {
			m.logger.ErrorContext(ctx, "failed to reload settings after conflict", "error", err)
		}
	}
	m.mu.Lock()
	m.current = restored
	m.mu.Unlock()
}

// Apply overwrites the mirror with a pushed row. The whole row replaces the
// whole row; fields are never merged.
func (m *Mirror) Apply(row *Settings) {
	if row == nil {
		return
	}
	m.mu.Lock()
	m.current = row.Clone()
	m.mu.Unlock()
}

func (m *Mirror) logAudit(ctx context.Context, action audit.AuditEvent, reason string) {
	if m.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:    requestcontext.UserID(ctx),
		Action:    string(action),
		Reason:    reason,
		Scope:     requestcontext.ScopeID(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := m.auditor.Emit(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err, "action", string(action))
	}
}

func validate(next Settings) error {
	if len(next.Currency) != 3 {
		return dErrors.New(dErrors.CodeInvalidInput, "currency must be a 3-letter code")
	}
	if next.TaxRate < 0 || next.TaxRate >= 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "tax rate must be in [0, 1)")
	}
	if next.FlatShippingFee < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "flat shipping fee must not be negative")
	}
	if next.FreeShippingThreshold < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "free shipping threshold must not be negative")
	}
	return nil
}
