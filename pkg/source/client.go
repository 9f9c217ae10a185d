package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for source API operations.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_source_requests_total",
		Help: "Total source API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopetl_source_request_duration_seconds",
		Help:    "Source API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	sourceFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopetl_source_fetch_failures_total",
		Help: "Absorbed page fetch failures by endpoint and error class",
	}, []string{"endpoint", "class"})
)

// Client fetches single pages from the shop API.
//
// FetchPage never aborts extraction: every failure is logged, counted,
// and reported back as an empty page plus a classification error the
// scheduler uses for statistics only.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

// New creates a new source client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "shop-etl/1.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:    cfg,
		logger: logger.With().Str("component", "source").Logger(),
	}, nil
}

// FetchPage fetches a single page of an endpoint.
//
// On success it returns the decoded records (possibly zero) and a nil
// error. On any failure it returns (nil, *SourceError); the failure has
// already been logged and counted, and callers must treat it exactly
// like an empty page when deciding what to schedule next.
func (c *Client) FetchPage(ctx context.Context, ep Endpoint, page int) ([]Record, error) {
	logger := c.logger.With().Str("endpoint", ep.Name).Int("page", page).Logger()

	start := time.Now()
	defer func() {
		sourceRequestDuration.WithLabelValues(ep.Name).Observe(time.Since(start).Seconds())
	}()

	reqURL := c.cfg.BaseURL + ep.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, c.fail(logger, ep, page, 0, ErrorClassNetwork, err)
	}

	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.cfg.PageSize))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sourceRequestsTotal.WithLabelValues(ep.Name, "network_error").Inc()
		return nil, c.fail(logger, ep, page, 0, classify(nil, err), err)
	}
	defer resp.Body.Close()

	sourceRequestsTotal.WithLabelValues(ep.Name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(logger, ep, page, resp.StatusCode, classify(resp, nil), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(logger, ep, page, resp.StatusCode, ErrorClassNetwork, err)
	}

	// Absent body is a valid zero-record page.
	if len(body) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, c.fail(logger, ep, page, resp.StatusCode, ErrorClassDecode, err)
	}

	if len(records) > 0 {
		logger.Debug().Int("records", len(records)).Msg("Page fetched")
	}

	return records, nil
}

// PageSize returns the configured per_page value.
func (c *Client) PageSize() int {
	return c.cfg.PageSize
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// fail logs and counts an absorbed fetch failure and builds its error.
func (c *Client) fail(logger zerolog.Logger, ep Endpoint, page, status int, class ErrorClass, err error) *SourceError {
	sourceFetchFailures.WithLabelValues(ep.Name, string(class)).Inc()

	logger.Warn().
		Err(err).
		Int("status", status).
		Str("error_class", string(class)).
		Msg("Page fetch failed")

	return &SourceError{
		Endpoint:   ep.Name,
		Page:       page,
		StatusCode: status,
		Class:      class,
		Err:        err,
	}
}
