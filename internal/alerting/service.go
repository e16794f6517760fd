// Package alerting persists alerts, suppresses repeats inside a cooldown
// window and fans warning and critical alerts out to the notifiers.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"capowatch/internal/metrics"
	"capowatch/internal/storage"
)

// Request describes an alert to raise.
type Request struct {
	OracleAddress string
	OracleName    string
	ChainID       uint64
	Type          storage.AlertType
	Severity      storage.Severity
	Message       string
	Payload       Payload
}

// Options tune the alert service.
type Options struct {
	Cooldown time.Duration
	Now      func() time.Time
}

// Service raises alerts.
type Service struct {
	store     storage.AlertStore
	notifiers []Notifier
	cache     CooldownCache
	opts      Options
	logger    zerolog.Logger
}

// NewService constructs the alert service. cache may be nil.
func NewService(store storage.AlertStore, notifiers []Notifier, cache CooldownCache, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:     store,
		notifiers: notifiers,
		cache:     cache,
		opts:      opts,
		logger:    logger.With().Str("component", "alerting").Logger(),
	}
}

// CreateAlert records the alert and dispatches it. It returns nil without
// error when the alert was suppressed by the cooldown. Dispatch failures are
// stored on the alert row and never returned.
func (s *Service) CreateAlert(ctx context.Context, req Request) (*storage.Alert, error) {
	address := storage.NormalizeAddress(req.OracleAddress)
	now := s.opts.Now()

	if suppressed, err := s.inCooldown(ctx, address, req.Type, now); err != nil {
		return nil, err
	} else if suppressed {
		metrics.AlertsDeduplicatedTotal.WithLabelValues(string(req.Type)).Inc()
		s.logger.Debug().Str("oracle", address).Str("type", string(req.Type)).Msg("alert suppressed by cooldown")
		return nil, nil
	}

	data, err := EncodePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	alert, err := s.store.InsertAlert(ctx, storage.Alert{
		OracleAddress: address,
		ChainID:       req.ChainID,
		Type:          req.Type,
		Severity:      req.Severity,
		Message:       req.Message,
		Data:          data,
		Status:        storage.AlertPending,
		Timestamp:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}

	if req.Severity == storage.SeverityInfo {
		s.markCooldown(ctx, address, req.Type)
		s.logger.Info().Str("oracle", address).Str("type", string(req.Type)).Msg(req.Message)
		return &alert, nil
	}

	note := Render(req)
	if dispatchErr := s.dispatch(ctx, note); dispatchErr != nil {
		msg := dispatchErr.Error()
		if err := s.store.MarkAlertFailed(ctx, alert.ID, msg); err != nil {
			s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to mark alert failed")
		}
		alert.Status = storage.AlertFailed
		alert.Error = &msg
		metrics.AlertsFailedTotal.WithLabelValues(string(req.Type)).Inc()
		s.logger.Error().Err(dispatchErr).Int64("alert_id", alert.ID).Str("type", string(req.Type)).Msg("failed to dispatch alert")
		return &alert, nil
	}

	sentAt := s.opts.Now()
	if err := s.store.MarkAlertSent(ctx, alert.ID, sentAt); err != nil {
		s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to mark alert sent")
	}
	alert.Status = storage.AlertSent
	alert.SentAt = &sentAt
	s.markCooldown(ctx, address, req.Type)
	metrics.AlertsSentTotal.WithLabelValues(string(req.Type)).Inc()
	return &alert, nil
}

func (s *Service) inCooldown(ctx context.Context, address string, alertType storage.AlertType, now time.Time) (bool, error) {
	if s.opts.Cooldown <= 0 {
		return false, nil
	}
	if s.cache != nil {
		active, err := s.cache.Active(ctx, address, alertType)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cooldown cache unavailable, falling back to store")
		} else if active {
			return true, nil
		}
	}

	last, err := s.store.LatestDeliveredAlert(ctx, address, alertType)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load latest alert: %w", err)
	}
	return now.Sub(last.Timestamp) < s.opts.Cooldown, nil
}

func (s *Service) markCooldown(ctx context.Context, address string, alertType storage.AlertType) {
	if s.cache == nil || s.opts.Cooldown <= 0 {
		return
	}
	if err := s.cache.Mark(ctx, address, alertType, s.opts.Cooldown); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record cooldown")
	}
}

func (s *Service) dispatch(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Render builds the subject and body sent to notifiers.
func Render(req Request) Notification {
	header := fmt.Sprintf("[%s] %s", strings.ToUpper(string(req.Severity)), req.Type)

	var b strings.Builder
	b.WriteString(header + "\n")
	if req.OracleName != "" {
		b.WriteString(fmt.Sprintf("Oracle: %s (%s)\n", req.OracleName, storage.NormalizeAddress(req.OracleAddress)))
	} else {
		b.WriteString(fmt.Sprintf("Oracle: %s\n", storage.NormalizeAddress(req.OracleAddress)))
	}
	b.WriteString(fmt.Sprintf("Chain: %d\n", req.ChainID))
	b.WriteString(req.Message + "\n")
	if req.Payload != nil {
		for _, f := range req.Payload.Fields() {
			b.WriteString(fmt.Sprintf("%s: %s\n", f.Name, f.Value))
		}
	}

	subject := header
	if req.OracleName != "" {
		subject += " " + req.OracleName
	}
	return Notification{Subject: subject, Body: strings.TrimRight(b.String(), "\n")}
}
