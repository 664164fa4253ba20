// Package catalog is the client for the public book-search provider.
//
// It knows the provider's request contract (a volumes search endpoint taking
// q, key and maxResults, plus a detail endpoint by volume id) and turns the
// provider's JSON into fully populated model.Book values. It holds no state
// beyond its HTTP client and rate limiter.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/readrealm/internal/model"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/books/v1/volumes"

	searchMaxResults = 20
	genreMaxResults  = 10

	// maxBodyBytes bounds how much of a provider response is read.
	maxBodyBytes = 4 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL    string  // volumes endpoint, DefaultBaseURL when empty
	APIKey     string  // optional; sent as key=
	RatePerSec float64 // outbound requests per second, 0 disables limiting
	HTTPClient *http.Client
}

// Client provides access to the book-search provider.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a new catalog client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, int(cfg.RatePerSec)))
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		rateLimiter: limiter,
		logger:      logger,
	}
}

// SearchByQuery runs a free-text search. An absent result set is an empty slice.
func (c *Client) SearchByQuery(ctx context.Context, text string) ([]model.Book, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.Book{}, nil
	}
	return c.search(ctx, text, searchMaxResults)
}

// SearchByGenre searches with a fixed subject filter.
func (c *Client) SearchByGenre(ctx context.Context, genre string) ([]model.Book, error) {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return []model.Book{}, nil
	}
	return c.search(ctx, "subject:"+genre, genreMaxResults)
}

// FetchByID fetches a single volume's detail record.
func (c *Client) FetchByID(ctx context.Context, id string) (model.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Book{}, fmt.Errorf("catalog: volume id is required")
	}

	body, err := c.get(ctx, c.baseURL+"/"+url.PathEscape(id), url.Values{})
	if err != nil {
		return model.Book{}, fmt.Errorf("catalog: fetching volume %s: %w", id, err)
	}

	book, err := parseVolume(body)
	if err != nil {
		return model.Book{}, fmt.Errorf("catalog: volume %s: %w", id, err)
	}
	return book, nil
}

func (c *Client) search(ctx context.Context, q string, maxResults int) ([]model.Book, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", strconv.Itoa(maxResults))

	body, err := c.get(ctx, c.baseURL, params)
	if err != nil {
		return nil, fmt.Errorf("catalog: searching %q: %w", q, err)
	}

	books, err := parseVolumes(body)
	if err != nil {
		return nil, fmt.Errorf("catalog: searching %q: %w", q, err)
	}

	c.logger.Debug("catalog search results",
		slog.String("query", q),
		slog.Int("count", len(books)),
	)
	return books, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: providerMessage(body)}
	}
	return body, nil
}

// ProviderError is a non-200 answer from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}
