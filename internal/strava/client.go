// Package strava is a minimal Strava API client used to import activities.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/joshdurbin/sportlog/internal/logging"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Strava API v3 root
	DefaultBaseURL = "https://www.strava.com/api/v3"
	perPage        = 200
	requestTimeout = 30 * time.Second
)

const (
	defaultMaxRetries = 5
	defaultMinWait    = 1 * time.Second
	defaultMaxWait    = 5 * time.Minute
	// requests kept in reserve below each rate limit
	rateLimitBuffer = 5
)

var (
	// ErrRateLimited is returned when retries are exhausted on 429 responses
	ErrRateLimited = errors.New("strava rate limit exceeded")
	// ErrUnauthorized means the access token was rejected
	ErrUnauthorized = errors.New("strava rejected the access token")
)

// Activity is the subset of a Strava summary activity sportlog imports
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Distance       float64   `json:"distance"`
	MovingTime     int       `json:"moving_time"`
	ElapsedTime    int       `json:"elapsed_time"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	Trainer        bool      `json:"trainer"`
	Manual         bool      `json:"manual"`
	Map            struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// RateLimitInfo is the most restrictive of the general and read limits
// reported by the last response.
type RateLimitInfo struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	IsRateLimited bool

	TimeUntil15MinReset time.Duration
	TimeUntilDailyReset time.Duration
	RecommendedWait     time.Duration
}

// FetchResult reports the progress of a paged fetch
type FetchResult struct {
	Page         int
	Activities   []Activity
	TotalFetched int
	RateLimit    RateLimitInfo
}

// ProgressCallback is called after each page is fetched
type ProgressCallback func(result FetchResult)

// RetryConfig holds retry/backoff settings
type RetryConfig struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultMaxRetries,
		MinWait:    defaultMinWait,
		MaxWait:    defaultMaxWait,
	}
}

// Client is a Strava API client with automatic retry and backoff
type Client struct {
	httpClient *retryablehttp.Client
	tokens     oauth2.TokenSource
	baseURL    string

	rateMu    sync.RWMutex
	rateLimit RateLimitInfo
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies)
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRetryConfig overrides the retry policy
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = cfg.MaxRetries
		c.httpClient.RetryWaitMin = cfg.MinWait
		c.httpClient.RetryWaitMax = cfg.MaxWait
	}
}

// NewClient creates a client that authenticates every request with a token
// from tokens. Expired tokens are refreshed by the source.
func NewClient(tokens oauth2.TokenSource, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = defaultMaxRetries
	hc.RetryWaitMin = defaultMinWait
	hc.RetryWaitMax = defaultMaxWait
	hc.HTTPClient.Timeout = requestTimeout
	hc.Logger = &logging.LeveledLogger{}
	hc.CheckRetry = checkRetry
	hc.Backoff = backoff
	hc.RequestLogHook = logRequest
	hc.ResponseLogHook = logResponse
	// hand the final 429/5xx back so callers can map it to an error
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		httpClient: hc,
		tokens:     tokens,
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// checkRetry retries connection errors, 429 and 5xx responses
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode >= 500:
		return true, nil
	default:
		return false, nil
	}
}

// backoff waits for the rate limit window on 429 and grows exponentially otherwise
func backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	log := logging.Logger

	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			wait := time.Duration(seconds) * time.Second
			log.Info().Dur("wait", wait).Int("attempt", attemptNum).Msg("rate limited, honoring Retry-After")
			return wait
		}
		wait := timeUntilNext15MinWindow(time.Now())
		log.Info().Dur("wait", wait).Int("attempt", attemptNum).Msg("rate limited, waiting for 15-minute window reset")
		return wait
	}

	wait := min * time.Duration(1<<uint(attemptNum))
	if wait > max || wait <= 0 {
		wait = max
	}
	log.Info().Dur("wait", wait).Int("attempt", attemptNum).Msg("backing off before retry")
	return wait
}

func logRequest(_ retryablehttp.Logger, req *http.Request, retry int) {
	log := logging.Logger
	if retry > 0 {
		log.Info().Str("url", req.URL.Path).Int("attempt", retry+1).Msg("retrying request")
	}
	if logging.IsTraceEnabled() {
		log.Debug().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Str("headers", formatHeaders(req.Header)).
			Msg("request headers")
	}
}

func logResponse(_ retryablehttp.Logger, resp *http.Response) {
	log := logging.Logger
	if logging.IsTraceEnabled() {
		log.Debug().
			Int("status", resp.StatusCode).
			Str("url", resp.Request.URL.Path).
			Str("headers", formatHeaders(resp.Header)).
			Msg("response headers")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		info := parseRateLimitHeaders(resp.Header, time.Now())
		log.Warn().
			Str("url", resp.Request.URL.Path).
			Str("15min_usage", fmt.Sprintf("%d/%d", info.Usage15Min, info.Limit15Min)).
			Str("daily_usage", fmt.Sprintf("%d/%d", info.UsageDaily, info.LimitDaily)).
			Msg("rate limited by Strava")
	}
}

// RateLimit returns the last known rate limit state with reset times
// recomputed for now.
func (c *Client) RateLimit() RateLimitInfo {
	c.rateMu.RLock()
	info := c.rateLimit
	c.rateMu.RUnlock()

	info.computeWait(time.Now())
	return info
}

// WaitForRateLimit blocks until rate limits allow more requests, or ctx is done
func (c *Client) WaitForRateLimit(ctx context.Context) error {
	info := c.RateLimit()
	if info.RecommendedWait <= 0 {
		return nil
	}

	logging.Logger.Info().
		Dur("wait", info.RecommendedWait).
		Str("15min_usage", fmt.Sprintf("%d/%d", info.Usage15Min, info.Limit15Min)).
		Str("daily_usage", fmt.Sprintf("%d/%d", info.UsageDaily, info.LimitDaily)).
		Msg("waiting for rate limit window to reset")

	timer := time.NewTimer(info.RecommendedWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchActivities pages through the athlete's activities. A zero after
// fetches the whole history; otherwise only activities that started after it.
func (c *Client) FetchActivities(ctx context.Context, after time.Time, progress ProgressCallback) ([]Activity, error) {
	var all []Activity
	for page := 1; ; page++ {
		if err := c.WaitForRateLimit(ctx); err != nil {
			return all, err
		}

		activities, err := c.fetchActivitiesPage(ctx, page, after)
		if err != nil {
			return all, err
		}
		all = append(all, activities...)

		if progress != nil {
			progress(FetchResult{
				Page:         page,
				Activities:   activities,
				TotalFetched: len(all),
				RateLimit:    c.RateLimit(),
			})
		}

		if len(activities) < perPage {
			return all, nil
		}
	}
}

func (c *Client) fetchActivitiesPage(ctx context.Context, page int, after time.Time) ([]Activity, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}

	var activities []Activity
	if err := c.get(ctx, "/athlete/activities?"+q.Encode(), &activities); err != nil {
		return nil, fmt.Errorf("fetching activities page %d: %w", page, err)
	}
	return activities, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	token.SetAuthHeader(req.Request)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) updateRateLimit(resp *http.Response) {
	info := parseRateLimitHeaders(resp.Header, time.Now())
	if resp.StatusCode == http.StatusTooManyRequests {
		info.IsRateLimited = true
	}
	c.rateMu.Lock()
	c.rateLimit = info
	c.rateMu.Unlock()
}

// parseRateLimitHeaders reads the "15min,daily" header pairs. Strava sends a
// general and a stricter read-only set; the tighter of the two wins.
func parseRateLimitHeaders(headers http.Header, now time.Time) RateLimitInfo {
	genLimit15, genLimitDay := parsePair(headers.Get("X-RateLimit-Limit"))
	genUsage15, genUsageDay := parsePair(headers.Get("X-RateLimit-Usage"))
	readLimit15, readLimitDay := parsePair(headers.Get("X-ReadRateLimit-Limit"))
	readUsage15, readUsageDay := parsePair(headers.Get("X-ReadRateLimit-Usage"))

	info := RateLimitInfo{
		Limit15Min: minPositive(genLimit15, readLimit15),
		LimitDaily: minPositive(genLimitDay, readLimitDay),
		Usage15Min: max(genUsage15, readUsage15),
		UsageDaily: max(genUsageDay, readUsageDay),
	}
	info.computeWait(now)
	return info
}

func (info *RateLimitInfo) computeWait(now time.Time) {
	info.TimeUntil15MinReset = timeUntilNext15MinWindow(now)
	info.TimeUntilDailyReset = timeUntilMidnightUTC(now)
	info.RecommendedWait = 0

	switch {
	case info.Limit15Min > 0 && info.Usage15Min >= info.Limit15Min:
		info.IsRateLimited = true
		info.RecommendedWait = info.TimeUntil15MinReset
	case info.LimitDaily > 0 && info.UsageDaily >= info.LimitDaily:
		info.IsRateLimited = true
		info.RecommendedWait = info.TimeUntilDailyReset
	case info.Limit15Min > 0 && info.Usage15Min >= info.Limit15Min-rateLimitBuffer:
		info.RecommendedWait = info.TimeUntil15MinReset
	case info.LimitDaily > 0 && info.UsageDaily >= info.LimitDaily-rateLimitBuffer:
		info.RecommendedWait = info.TimeUntilDailyReset
	}
}

func parsePair(header string) (int, int) {
	if header == "" {
		return 0, 0
	}
	parts := strings.Split(header, ",")
	first, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	var second int
	if len(parts) > 1 {
		second, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return first, second
}

// minPositive returns the smaller of a and b, ignoring unset (zero) values
func minPositive(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	return min(a, b)
}

// timeUntilNext15MinWindow returns the time until the next quarter hour,
// when Strava resets its short rate limit window, plus a small margin.
func timeUntilNext15MinWindow(now time.Time) time.Duration {
	next := now.Truncate(15 * time.Minute).Add(15 * time.Minute)
	return next.Sub(now) + 2*time.Second
}

// timeUntilMidnightUTC returns the time until the daily limit resets
func timeUntilMidnightUTC(now time.Time) time.Duration {
	nowUTC := now.UTC()
	midnight := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(nowUTC) + 2*time.Second
}

// formatHeaders formats HTTP headers for logging, redacting credentials
func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.Join(headers[k], ", ")
		switch strings.ToLower(k) {
		case "authorization", "cookie", "set-cookie":
			value = "[REDACTED]"
		}
		parts = append(parts, fmt.Sprintf("%s: %q", k, value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
