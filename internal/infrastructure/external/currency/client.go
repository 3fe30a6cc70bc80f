// Package currency talks to the public exchange-rate and country APIs used to
// derive company currencies and convert submitted amounts.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultRatesBaseURL     = "https://api.exchangerate-api.com/v4/latest"
	DefaultCountriesBaseURL = "https://restcountries.com/v3.1"
)

// errNotFound marks a 404 from an upstream API
var errNotFound = errors.New("resource not found")

// Config holds settings shared by the currency clients
type Config struct {
	RatesBaseURL     string
	CountriesBaseURL string
	Timeout          time.Duration

	// RequestsPerSecond and Burst bound outbound calls per client
	RequestsPerSecond float64
	Burst             int

	// The breaker opens after MaxFailures consecutive failures and half-opens after OpenTimeout
	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultConfig returns the public API endpoints with conservative limits
func DefaultConfig() Config {
	return Config{
		RatesBaseURL:      DefaultRatesBaseURL,
		CountriesBaseURL:  DefaultCountriesBaseURL,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
		MaxFailures:       5,
		OpenTimeout:       30 * time.Second,
	}
}

// jsonClient issues rate limited GET requests behind a circuit breaker
type jsonClient struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func newJSONClient(name string, cfg Config, logger *zap.Logger) *jsonClient {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// a 404 is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &jsonClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// getJSON decodes the response body of url into out
func (c *jsonClient) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, url, out)
	})
	return err
}

func (c *jsonClient) do(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Request failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Request completed",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
