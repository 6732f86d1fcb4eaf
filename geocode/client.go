// Package geocode resolves HDB block addresses to coordinates through the
// OneMap search API.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"web/resalegeo/retry"
)

const DefaultBaseURL = "https://www.onemap.gov.sg/api"

var (
	ErrNotFound = errors.New("geocode: no match")
	ErrNoToken  = errors.New("geocode: no access token")
)

// Result is one resolved address.
type Result struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Postal  string  `json:"postal,omitempty"`
}

// Geocoder resolves one address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

type Config struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	// RequestsPerSecond caps the call rate shared by all workers.
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	Burst             int          `yaml:"burst"`
	Retry             retry.Policy `yaml:"retry"`
}

// Client talks to OneMap. A bearer token is taken from Config.Token or
// fetched once with the account credentials.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	token string
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		token:   cfg.Token,
	}
}

type searchResponse struct {
	Found   int `json:"found"`
	Results []struct {
		Latitude  string `json:"LATITUDE"`
		Longitude string `json:"LONGITUDE"`
		Postal    string `json:"POSTAL"`
	} `json:"results"`
}

// Geocode returns the first search hit for address. Transport failures and
// 5xx responses are retried; ErrNotFound and 4xx responses are not.
func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, ErrNotFound
	}

	return retry.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) (Result, error) {
		return c.search(ctx, address)
	})
}

func (c *Client) search(ctx context.Context, address string) (Result, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	q := url.Values{}
	q.Set("searchVal", address)
	q.Set("returnGeom", "Y")
	q.Set("getAddrDetails", "Y")
	q.Set("pageNum", "1")
	endpoint := c.cfg.BaseURL + "/common/elastic/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, retry.Permanent(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return Result{}, fmt.Errorf("geocode %q: %w", address, err)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("geocode %q: decode: %w", address, err)
	}
	if len(body.Results) == 0 {
		return Result{}, retry.Permanent(fmt.Errorf("%w: %q", ErrNotFound, address))
	}

	hit := body.Results[0]
	lat, errLat := strconv.ParseFloat(hit.Latitude, 64)
	lon, errLon := strconv.ParseFloat(hit.Longitude, 64)
	if errLat != nil || errLon != nil {
		return Result{}, retry.Permanent(fmt.Errorf("geocode %q: bad coordinates %q,%q", address, hit.Latitude, hit.Longitude))
	}

	return Result{Address: address, Lat: lat, Lon: lon, Postal: hit.Postal}, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" || c.cfg.Email == "" {
		return c.token, nil
	}

	payload, _ := json.Marshal(map[string]string{"email": c.cfg.Email, "password": c.cfg.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/post/getToken", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("fetch token: decode: %w", err)
	}
	if body.AccessToken == "" {
		return "", retry.Permanent(ErrNoToken)
	}

	c.token = body.AccessToken
	return c.token, nil
}

// statusError classifies a non-2xx response. Client errors are permanent.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
