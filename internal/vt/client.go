package vt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrStatus      = errors.New("unexpected status")
	ErrBreakerOpen = errors.New("circuit breaker open")
)

// maxBodySize bounds the report body read from the service
const maxBodySize = 16 * 1024 * 1024

// ClientConfig for creating a new Client
type ClientConfig struct {
	URL            string
	APIKey         string
	RequestTimeout time.Duration
	// MinInterval is the smallest gap allowed between two queries; zero disables the guard
	MinInterval    time.Duration
	CircuitBreaker CircuitBreakerConfig
	Logger         zerolog.Logger
}

// Client fetches file reports for batches of resources
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	logger     zerolog.Logger
}

// NewClient creates a new Client
func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	var limiter *rate.Limiter
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter: limiter,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  cfg.Logger.With().Str("component", "vtclient").Logger(),
	}
}

// FetchReports issues one query for all keys and returns the reports in
// the order the service sent them
func (c *Client) FetchReports(ctx context.Context, keys []string) ([]Report, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	if !c.breaker.AllowRequest() {
		return nil, ErrBreakerOpen
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reports, err := c.fetch(ctx, keys)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	return reports, nil
}

func (c *Client) fetch(ctx context.Context, keys []string) ([]Report, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("resource", strings.Join(keys, ","))

	reqURL := c.url
	if strings.Contains(reqURL, "?") {
		reqURL += "&" + q.Encode()
	} else {
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Int("bodyLen", len(body)).
			Msg("non-success status from service")
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	return ParseReports(body)
}

// BreakerState returns the circuit breaker state name
func (c *Client) BreakerState() string {
	return c.breaker.State()
}
