package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moviefinder/internal/domain"
	"moviefinder/internal/metrics"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	maxResponseSize = 2 * 1024 * 1024

	modeSearch   = "search"
	modeDiscover = "discover"
)

type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

type Config struct {
	Token   string
	BaseURL string
	Client  *http.Client
}

type listResponse struct {
	Page    int                   `json:"page"`
	Results []domain.MovieSummary `json:"results"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		token:   strings.TrimSpace(cfg.Token),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Enabled() bool {
	return c.token != ""
}

// FetchMovies issues exactly one request. An empty query lists popular
// movies; anything else is sent verbatim to the text search endpoint.
// A well-formed empty result set yields domain.ErrNoResults; transport
// errors, non-2xx statuses and undecodable bodies yield domain.ErrFetchFailure.
func (c *Client) FetchMovies(ctx context.Context, query string) ([]domain.MovieSummary, error) {
	mode, reqURL := c.endpoint(query)
	start := time.Now()
	movies, status, err := c.do(ctx, reqURL)
	metrics.TMDBRequestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.TMDBRequestsTotal.WithLabelValues(mode, status).Inc()
	return movies, err
}

func (c *Client) endpoint(query string) (mode string, reqURL string) {
	if query == "" {
		params := url.Values{"sort_by": {"popularity.desc"}}
		return modeDiscover, c.baseURL + "/discover/movie?" + params.Encode()
	}
	params := url.Values{"query": {query}}
	return modeSearch, c.baseURL + "/search/movie?" + params.Encode()
}

func (c *Client) do(ctx context.Context, reqURL string) ([]domain.MovieSummary, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "error", domain.WrapFetch(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "error", domain.WrapFetch(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, strconv.Itoa(resp.StatusCode), domain.WrapFetch(
			fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		)
	}

	var response listResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&response); err != nil {
		return nil, "decode_error", domain.WrapFetch(fmt.Errorf("decode tmdb response: %w", err))
	}
	if len(response.Results) == 0 {
		return []domain.MovieSummary{}, "empty", domain.ErrNoResults
	}
	return response.Results, "ok", nil
}
