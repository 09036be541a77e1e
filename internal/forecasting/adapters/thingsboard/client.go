// Package thingsboard reads observed occupancy values from the ThingsBoard telemetry API.
package thingsboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/observability/metrics"
)

const (
	defaultEntityType = "DEVICE"
	defaultLagKey     = "ocupacao"
	defaultTimeout    = 10 * time.Second
	// lookupWindow bounds the search for the observation at a timestamp.
	lookupWindow = time.Hour
)

// Config configures the client.
type Config struct {
	BaseURL    string
	Token      string
	EntityType string
	LagKey     string
	Timeout    time.Duration
	// FailureThreshold consecutive failures open the breaker; 0 uses 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open; 0 uses 30s.
	OpenTimeout time.Duration
}

// Client is a minimal ThingsBoard REST client for timeseries lookups.
type Client struct {
	baseURL    string
	token      string
	entityType string
	lagKey     string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[float64]
	logger     logrus.FieldLogger
}

// NewClient constructs a TB client.
func NewClient(cfg Config, logger logrus.FieldLogger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("thingsboard: empty base url")
	}
	if cfg.EntityType == "" {
		cfg.EntityType = defaultEntityType
	}
	if cfg.LagKey == "" {
		cfg.LagKey = defaultLagKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		entityType: strings.ToUpper(cfg.EntityType),
		lagKey:     cfg.LagKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	threshold := cfg.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[float64](gobreaker.Settings{
		Name:    "thingsboard",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return c, nil
}

var errNoData = errors.New("thingsboard: no data")

type tsValue struct {
	TS    int64           `json:"ts"`
	Value json.RawMessage `json:"value"`
}

// ValueAt returns the first observation of the lag key at or after at, within an hour.
func (c *Client) ValueAt(ctx context.Context, externalID string, at time.Time) (float64, error) {
	if externalID == "" {
		return 0, fmt.Errorf("%w: empty entity id", forecasting.ErrExternalFetch)
	}
	started := time.Now()
	value, err := c.breaker.Execute(func() (float64, error) {
		return c.fetch(ctx, externalID, at)
	})
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveTelemetryFetch(result, time.Since(started))
	if err != nil {
		return 0, fmt.Errorf("%w: %s at %s: %v", forecasting.ErrExternalFetch, c.lagKey, at.UTC().Format(time.RFC3339), err)
	}
	return value, nil
}

func (c *Client) fetch(ctx context.Context, externalID string, at time.Time) (float64, error) {
	query := url.Values{}
	query.Set("keys", c.lagKey)
	query.Set("startTs", strconv.FormatInt(at.UnixMilli(), 10))
	query.Set("endTs", strconv.FormatInt(at.Add(lookupWindow).UnixMilli()-1, 10))
	query.Set("limit", "1")
	query.Set("agg", "NONE")
	query.Set("orderBy", "ASC")
	path := fmt.Sprintf("/api/plugins/telemetry/%s/%s/values/timeseries?%s", c.entityType, url.PathEscape(externalID), query.Encode())

	var resp map[string][]tsValue
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	values := resp[c.lagKey]
	if len(values) == 0 {
		return 0, errNoData
	}
	return parseValue(values[0].Value)
}

// parseValue accepts TB's string-encoded values as well as bare numbers.
func parseValue(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNoData
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("thingsboard: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
