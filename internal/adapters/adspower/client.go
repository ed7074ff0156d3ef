package adspower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "http://localhost:50325"

	startPath  = "/api/v1/browser/start"
	stopPath   = "/api/v1/browser/stop"
	activePath = "/api/v1/browser/active"
)

var (
	ErrNoConnectionInfo = errors.New("adspower returned no connection info")
	errAPI              = errors.New("adspower api error")
)

type Config struct {
	APIURL string
	APIKey string
	// KeyLookup supplies the API key on first use when APIKey is empty.
	KeyLookup func(ctx context.Context) (string, error)
	// RatePerSecond bounds requests to the local API.
	RatePerSecond  float64
	StartRetries   int
	StartRetryWait time.Duration
	StartTimeout   time.Duration
	StopRetries    int
	StopRetryWait  time.Duration
	StopTimeout    time.Duration
	CheckTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.StartRetries < 1 {
		c.StartRetries = 3
	}
	if c.StartRetryWait <= 0 {
		c.StartRetryWait = 2 * time.Second
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.StopRetries < 1 {
		c.StopRetries = 2
	}
	if c.StopRetryWait <= 0 {
		c.StopRetryWait = time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 15 * time.Second
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Second
	}
	return c
}

// Client drives the AdsPower local API. All sessions share its transport and
// rate limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	keyOnce sync.Once
	key     string
}

var _ ports.ProfileLauncher = (*Client)(nil)

func NewClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		logger:  logger,
	}
}

func (c *Client) apiKey(ctx context.Context) string {
	c.keyOnce.Do(func() {
		c.key = strings.TrimSpace(c.cfg.APIKey)
		if c.key != "" || c.cfg.KeyLookup == nil {
			return
		}
		key, err := c.cfg.KeyLookup(ctx)
		if err != nil {
			c.logger.Debug().Err(err).Msg("no api key in secret store, calling without one")
			return
		}
		c.key = strings.TrimSpace(key)
	})
	return c.key
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type startData struct {
	WS struct {
		Puppeteer string `json:"puppeteer"`
		Selenium  string `json:"selenium"`
	} `json:"ws"`
	DebugPort looseString `json:"debug_port"`
	Webdriver string      `json:"webdriver"`
	ID        string      `json:"id"`
}

// looseString accepts a JSON string or number; the API has sent both for ports.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*s = looseString(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*s = looseString(number.String())
	return nil
}

type activeData struct {
	Status string `json:"status"`
}

func profileParams(profile domain.ProfileRef) (url.Values, error) {
	params := url.Values{}
	if serial, ok := profile.Serial(); ok {
		params.Set("serial_number", strconv.Itoa(serial))
		return params, nil
	}
	if id, ok := profile.ID(); ok {
		params.Set("user_id", id)
		return params, nil
	}
	return nil, domain.ErrInvalidProfileRef
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return apiResponse{}, err
	}

	endpoint := c.cfg.APIURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	if key := c.apiKey(ctx); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return apiResponse{}, fmt.Errorf("%w: http %d", errAPI, resp.StatusCode)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apiResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// Start opens the profile, retrying with a fixed pause between attempts.
func (c *Client) Start(ctx context.Context, profile domain.ProfileRef) (ports.ConnectionInfo, error) {
	params, err := profileParams(profile)
	if err != nil {
		return ports.ConnectionInfo{}, err
	}
	params.Set("open_tabs", "1")

	var errs []error
	for attempt := 1; attempt <= c.cfg.StartRetries; attempt++ {
		if attempt > 1 {
			c.logger.Warn().Str("profile", profile.Display()).Int("attempt", attempt).Msg("retrying profile start")
			if err := wait(ctx, c.cfg.StartRetryWait); err != nil {
				return ports.ConnectionInfo{}, err
			}
		}

		conn, err := c.startOnce(ctx, profile, params)
		if err == nil {
			c.logger.Info().Str("profile", profile.Display()).Str("debugger", conn.DebuggerURL).Msg("profile started")
			return conn, nil
		}
		if ctx.Err() != nil {
			return ports.ConnectionInfo{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
	}

	return ports.ConnectionInfo{}, fmt.Errorf("start profile %s: %w", profile.Display(), errors.Join(errs...))
}

func (c *Client) startOnce(ctx context.Context, profile domain.ProfileRef, params url.Values) (ports.ConnectionInfo, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()

	resp, err := c.get(attemptCtx, startPath, params)
	if err != nil {
		return ports.ConnectionInfo{}, err
	}
	if resp.Code != 0 {
		return ports.ConnectionInfo{}, fmt.Errorf("%w: %s", errAPI, resp.Msg)
	}

	var data startData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return ports.ConnectionInfo{}, fmt.Errorf("decode start data: %w", err)
		}
	}
	return connectionInfo(profile, data)
}

// connectionInfo prefers the puppeteer websocket, then the debug port, then the
// port of the webdriver address.
func connectionInfo(profile domain.ProfileRef, data startData) (ports.ConnectionInfo, error) {
	conn := ports.ConnectionInfo{DebugPort: string(data.DebugPort)}
	switch {
	case data.WS.Puppeteer != "":
		conn.DebuggerURL = data.WS.Puppeteer
	case conn.DebugPort != "":
		conn.DebuggerURL = "http://127.0.0.1:" + conn.DebugPort
	case data.Webdriver != "":
		port := data.Webdriver[strings.LastIndex(data.Webdriver, ":")+1:]
		conn.DebuggerURL = "http://127.0.0.1:" + port
	default:
		return ports.ConnectionInfo{}, ErrNoConnectionInfo
	}

	if id, ok := profile.ID(); ok {
		conn.ProfileID = id
	} else if data.ID != "" {
		conn.ProfileID = data.ID
	} else {
		conn.ProfileID = "serial_" + profile.Key()
	}
	return conn, nil
}

// Stop closes the profile. A refusal from the API after all retries, or running
// out of time, reports false without an error.
func (c *Client) Stop(ctx context.Context, profile domain.ProfileRef) (bool, error) {
	params, err := profileParams(profile)
	if err != nil {
		return false, err
	}

	stopCtx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.StopRetries; attempt++ {
		if attempt > 1 {
			if err := wait(stopCtx, c.cfg.StopRetryWait); err != nil {
				break
			}
		}

		resp, err := c.get(stopCtx, stopPath, params)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Code == 0 {
			c.logger.Info().Str("profile", profile.Display()).Msg("profile stopped")
			return true, nil
		}
		lastErr = nil
		c.logger.Debug().Str("profile", profile.Display()).Str("msg", resp.Msg).Int("attempt", attempt).Msg("stop refused")
	}

	if stopCtx.Err() != nil && ctx.Err() == nil {
		c.logger.Warn().Str("profile", profile.Display()).Dur("timeout", c.cfg.StopTimeout).Msg("stop timed out")
		return false, nil
	}
	if lastErr != nil {
		return false, fmt.Errorf("stop profile %s: %w", profile.Display(), lastErr)
	}
	return false, nil
}

// CheckConnection verifies the local API answers.
func (c *Client) CheckConnection(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	if _, err := c.get(checkCtx, activePath, nil); err != nil {
		return fmt.Errorf("adspower not reachable at %s: %w", c.cfg.APIURL, err)
	}
	return nil
}

// ProfileStatus reports whether the profile's browser is currently open.
func (c *Client) ProfileStatus(ctx context.Context, profile domain.ProfileRef) (bool, error) {
	params, err := profileParams(profile)
	if err != nil {
		return false, err
	}

	resp, err := c.get(ctx, activePath, params)
	if err != nil {
		return false, fmt.Errorf("query profile status: %w", err)
	}
	if resp.Code != 0 {
		return false, nil
	}

	var data activeData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return false, fmt.Errorf("decode status data: %w", err)
		}
	}
	return data.Status == "Active", nil
}

// Close drops idle keep-alive connections held by the transport.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
