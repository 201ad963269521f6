package resilience

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRateLimited is returned when waiting for a rate limiter token would outlive the context.
	ErrRateLimited = errors.New("client-side rate limit exceeded")
)

// ClientConfig configures a resilient provider client.
type ClientConfig struct {
	// Name identifies the provider in the registry, logs and breaker state.
	Name string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of attempts after the first. Zero disables retries.
	MaxRetries uint64

	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name) when nil.
	CircuitBreaker *CircuitBreakerConfig

	// RequestsPerSecond throttles outbound calls. Zero means unlimited.
	RequestsPerSecond float64
	Burst             int

	// Registry, when set, receives this client and its success/failure outcomes.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for production providers.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cb,
		Logger:          zerolog.Nop(),
	}
}

// Client is an http.Client replacement for provider calls. It satisfies the
// HTTPDoer interfaces used by the provider packages.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter
}

// NewClient builds a client and registers it with cfg.Registry if one is set.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	cbCfg := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbCfg = *cfg.CircuitBreaker
	}
	if cbCfg.OnStateChange == nil {
		logger := cfg.Logger
		cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker[*http.Response](cbCfg), //nolint:bodyclose // type parameter
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the provider name this client was built for.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Do sends req, retrying network errors and 5xx responses with exponential
// backoff. A 5xx that survives every retry is returned as a response, not an
// error, so callers can map the status themselves. 4xx responses are never retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.recordFailure(ErrRateLimited)
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	attempt := 0

	op := func() error {
		attempt++
		if last != nil {
			drain(last)
			last = nil
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			r, err := c.http.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			last = resp
			c.cfg.Logger.Debug().
				Str("provider", c.cfg.Name).
				Int("attempt", attempt).
				Err(err).
				Msg("provider attempt failed")
			return err
		}

		last = resp
		return nil
	}

	err := backoff.Retry(op, policy)
	if err != nil {
		c.recordFailure(err)
		if last != nil && !errors.Is(err, ErrCircuitOpen) {
			return last, nil
		}
		return nil, err
	}

	c.recordSuccess()
	return last, nil
}

// CircuitBreakerState reports the breaker's current state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts reports the breaker's current counters.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

func (c *Client) recordSuccess() {
	if c.cfg.Registry != nil {
		c.cfg.Registry.RecordSuccess(c.cfg.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.cfg.Registry != nil {
		c.cfg.Registry.RecordFailure(c.cfg.Name, err)
	}
}

// rewind returns a copy of req whose body can be read again.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// ServerError marks a 5xx response as a breaker failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
