// Package transport sends HTTP requests with per-attempt timeouts and
// exponential retries, and talks to the notes endpoint on top of that.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config controls retries. Zero fields take the defaults.
type Config struct {
	// Retries after the first attempt. Default 4; negative disables retries.
	Retries int
	// InitialDelay before the first retry; every further delay doubles.
	// Default 1s.
	InitialDelay time.Duration
	// AttemptTimeout bounds a single attempt including reading the body.
	// Default 10s.
	AttemptTimeout time.Duration
}

// DefaultConfig returns 4 retries starting at 1s with a 10s attempt timeout.
func DefaultConfig() Config {
	return Config{Retries: 4, InitialDelay: time.Second, AttemptTimeout: 10 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = d.Retries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	return c
}

// Response is a successful attempt with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestBuilder creates the request of one attempt. It is called again for
// every retry so bodies are never reused.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Transport retries transient failures. Terminal failures are handed to the
// Alerter, if any, before they are returned.
type Transport struct {
	client  *http.Client
	cfg     Config
	alerter *Alerter
	logger  *slog.Logger
}

// New creates a Transport. client and alerter may be nil.
func New(client *http.Client, cfg Config, alerter *Alerter, logger *slog.Logger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{client: client, cfg: cfg.withDefaults(), alerter: alerter, logger: logger}
}

func (t *Transport) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = t.cfg.InitialDelay << t.cfg.Retries
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(t.cfg.Retries))
}

// Send runs build and the request it returns until a 2xx response arrives,
// a terminal failure occurs, retries run out or ctx is done.
func (t *Transport) Send(ctx context.Context, build RequestBuilder) (*Response, error) {
	var (
		res      *Response
		attempts int
		terminal bool
	)

	op := func() error {
		attempts++
		r, err := t.attempt(ctx, build)
		if err == nil {
			res = r
			return nil
		}
		var transient *TransientError
		if ctx.Err() != nil || !errors.As(err, &transient) {
			terminal = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		t.logger.Warn("transport: retrying",
			slog.Int("attempt", attempts),
			slog.Duration("delay", next),
			slog.String("error", err.Error()))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(t.backOff(), ctx), notify)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("transport: %w", ctx.Err())
	}
	if !terminal {
		err = &ExhaustedError{Attempts: attempts, Err: err}
	}
	t.alert(err)
	return nil, err
}

func (t *Transport) attempt(ctx context.Context, build RequestBuilder) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, t.cfg.AttemptTimeout)
	defer cancel()

	req, err := build(actx)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.classify(ctx, actx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classify(ctx, actx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Body: errorMessage(body)}
		if retryableStatus(resp.StatusCode) {
			return nil, &TransientError{Err: serr}
		}
		return nil, serr
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (t *Transport) classify(ctx, actx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		return &TransientError{Err: ErrTimeout}
	}
	return &TransientError{Err: err}
}

func (t *Transport) alert(err error) {
	if t.alerter == nil {
		return
	}
	t.alerter.Alert(err.Error())
}

// errorMessage extracts {"error": "..."} from a response body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
