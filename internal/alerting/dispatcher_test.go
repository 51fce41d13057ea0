package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etfwatch/internal/config"
	"etfwatch/internal/retry"
)

type scriptedTransport struct {
	name     string
	failures int
	calls    int
	texts    []string
}

func (s *scriptedTransport) Name() string { return s.name }

func (s *scriptedTransport) Send(_ context.Context, text string) error {
	s.calls++
	s.texts = append(s.texts, text)
	if s.calls <= s.failures {
		return errors.New("webhook unavailable")
	}
	return nil
}

func testConfig(webhook string) *config.Config {
	return &config.Config{
		Notify: config.NotifyConfig{Enabled: true, Webhook: webhook, Footer: "【测试系统】"},
		Retry:  config.RetryConfig{MaxRetries: 2},
	}
}

func noDelayRetrier(maxRetries int) *retry.Executor {
	return retry.New(retry.Options{
		MaxRetries: maxRetries,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}, testLogger())
}

func TestDispatcherAppendsFooter(t *testing.T) {
	primary := &scriptedTransport{name: "fake"}
	d := NewDispatcher(testConfig("https://hook.invalid"), primary, noDelayRetrier(0), testLogger())

	require.NoError(t, d.Notify(context.Background(), "今日新股\n"))
	require.Len(t, primary.texts, 1)
	assert.Equal(t, "今日新股\n\n【测试系统】", primary.texts[0])
}

func TestDispatcherMissingWebhookFailsBeforeNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	cfg := testConfig("")
	primary := NewWeComTransport(srv.URL, time.Second, testLogger())
	d := NewDispatcher(cfg, primary, noDelayRetrier(2), testLogger())

	err := d.Notify(context.Background(), "body")
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "WECOM_WEBHOOK", cfgErr.Key)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestDispatcherFromConfigWithoutWebhook(t *testing.T) {
	d := NewDispatcherFromConfig(testConfig(""), noDelayRetrier(0), testLogger())
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, d.Notify(context.Background(), "body"), &cfgErr)
}

func TestDispatcherExhaustsRetries(t *testing.T) {
	primary := &scriptedTransport{name: "fake", failures: 10}
	d := NewDispatcher(testConfig("https://hook.invalid"), primary, noDelayRetrier(2), testLogger())

	err := d.Notify(context.Background(), "body")
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, primary.calls)
}

func TestDispatcherSucceedsOnSecondAttemptAndMirrors(t *testing.T) {
	primary := &scriptedTransport{name: "fake", failures: 1}
	mirror := &scriptedTransport{name: "mirror", failures: 5}
	d := NewDispatcher(testConfig("https://hook.invalid"), primary, noDelayRetrier(2), testLogger(), mirror)

	require.NoError(t, d.Notify(context.Background(), "body"), "mirror failures must not fail delivery")
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, mirror.calls, "mirrors are not retried")
}

func TestDispatcherRejectsEmptyBody(t *testing.T) {
	primary := &scriptedTransport{name: "fake"}
	d := NewDispatcher(testConfig("https://hook.invalid"), primary, noDelayRetrier(0), testLogger())

	assert.ErrorIs(t, d.Notify(context.Background(), "  \n"), ErrEmptyMessage)
	assert.Zero(t, primary.calls)
}

func TestDispatcherEndToEndWeCom(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(wecomResponse{ErrCode: 0, ErrMsg: "ok"})
	}))
	defer srv.Close()

	d := NewDispatcherFromConfig(testConfig(srv.URL), noDelayRetrier(2), testLogger())
	require.NoError(t, d.Notify(context.Background(), "body"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDispatcherRecordsEachAttempt(t *testing.T) {
	primary := &scriptedTransport{name: "metrics-check", failures: 1}
	d := NewDispatcher(testConfig("https://hook.invalid"), primary, noDelayRetrier(2), testLogger())

	require.NoError(t, d.Notify(context.Background(), "body"))
	assert.Equal(t, 1.0, testutil.ToFloat64(notificationSendTotal.WithLabelValues("metrics-check", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(notificationSendTotal.WithLabelValues("metrics-check", "ok")))
}
