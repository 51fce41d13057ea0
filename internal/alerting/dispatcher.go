package alerting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"etfwatch/internal/config"
	"etfwatch/internal/retry"
)

// ErrEmptyMessage is returned when there is nothing to send.
var ErrEmptyMessage = errors.New("alerting: empty message body")

// Dispatcher formats messages and delivers them through the primary
// transport with retries. Mirrors receive a best-effort copy.
type Dispatcher struct {
	cfg     *config.Config
	primary Transport
	mirrors []Transport
	retrier *retry.Executor
	logger  zerolog.Logger
}

// NewDispatcher constructs a dispatcher. primary may be nil when the webhook
// is not configured; Notify then fails with a ConfigurationError.
func NewDispatcher(cfg *config.Config, primary Transport, retrier *retry.Executor, logger zerolog.Logger, mirrors ...Transport) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		primary: primary,
		mirrors: mirrors,
		retrier: retrier,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// NewDispatcherFromConfig wires the WeCom transport (when a webhook is set)
// and the optional Telegram mirror.
func NewDispatcherFromConfig(cfg *config.Config, retrier *retry.Executor, logger zerolog.Logger) *Dispatcher {
	var primary Transport
	if url, err := cfg.RequireWebhook(); err == nil {
		primary = NewWeComTransport(url, cfg.Notify.Timeout, logger)
	}

	var mirrors []Transport
	if tg := cfg.Notify.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		mirrors = append(mirrors, NewTelegramTransport(tg.BotToken, tg.ChatID, tg.APIBase, cfg.Notify.Timeout, logger))
	}
	return NewDispatcher(cfg, primary, retrier, logger, mirrors...)
}

// Render appends the configured footer to body.
func (d *Dispatcher) Render(body string) string {
	footer := strings.TrimSpace(d.cfg.Notify.Footer)
	body = strings.TrimRight(body, "\n")
	if footer == "" {
		return body
	}
	return body + "\n\n" + footer
}

// Notify sends body with the footer appended. It returns nil only after the
// primary transport confirmed delivery; callers must not record the event as
// sent otherwise. Configuration problems are reported before any network call.
func (d *Dispatcher) Notify(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if _, err := d.cfg.RequireWebhook(); err != nil {
		return err
	}
	if d.primary == nil {
		return &config.ConfigurationError{Key: "WECOM_WEBHOOK", Reason: "has no transport"}
	}

	text := d.Render(body)
	err := d.retrier.Do(ctx, func(ctx context.Context) error {
		return d.send(ctx, d.primary, text)
	})
	if err != nil {
		return err
	}
	d.logger.Info().Str("transport", d.primary.Name()).Int("chars", len(text)).Msg("notification delivered")

	for _, m := range d.mirrors {
		if err := d.send(ctx, m, text); err != nil {
			d.logger.Warn().Err(err).Str("transport", m.Name()).Msg("mirror delivery failed")
		}
	}
	return nil
}

// send makes one attempt through t and records its outcome.
func (d *Dispatcher) send(ctx context.Context, t Transport, text string) error {
	start := time.Now()
	err := t.Send(ctx, text)
	status := "ok"
	if err != nil {
		status = "error"
	}
	notificationSendTotal.WithLabelValues(t.Name(), status).Inc()
	notificationSendDuration.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())
	return err
}
