// Package schedule implements the ScheduleSource boundary: it fetches the
// platform's weekly release timeline and normalizes it into ReleaseEntry
// records for the matcher.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nattadasu/bilidownloader/internal/models"
	"github.com/nattadasu/bilidownloader/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL  = "https://api.bilibili.tv/intl/gateway/web/v2"
	defaultPageURL = "https://www.bilibili.tv"

	// defaultHTTPTimeout bounds every request so a stalled timeline GET
	// cannot hang a cycle indefinitely.
	defaultHTTPTimeout = 30 * time.Second
)

var titlePattern = regexp.MustCompile(`<h1[^>]*class="detail-header__title"[^>]*>(.*?)</h1>`)

// Client talks to the platform's public schedule API. It rate-limits its own
// requests and retries transient network failures with exponential backoff
// before surfacing shared.ErrNetwork.
type Client struct {
	baseURL    string
	pageURL    string
	userAgent  string
	cookies    []*http.Cookie
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	backoff    time.Duration
	logger     *log.Logger
}

// ClientOpts contains configuration options for creating a Client.
type ClientOpts struct {
	BaseURL    string
	PageURL    string
	UserAgent  string
	Cookies    []*http.Cookie
	HTTPClient *http.Client
	Retries    int
	Backoff    time.Duration
	Logger     *log.Logger
}

// NewClient creates a schedule client with the provided options.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultAPIURL
	}
	if opts.PageURL == "" {
		opts.PageURL = defaultPageURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &Client{
		baseURL:    opts.BaseURL,
		pageURL:    opts.PageURL,
		userAgent:  opts.UserAgent,
		cookies:    opts.Cookies,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		retries:    opts.Retries,
		backoff:    opts.Backoff,
		logger:     opts.Logger,
	}
}

// Locator builds the canonical episode URL handed to the fetcher.
func Locator(seriesID, episodeID string) string {
	if episodeID == "" {
		return fmt.Sprintf("%s/en/play/%s", defaultPageURL, seriesID)
	}
	return fmt.Sprintf("%s/en/play/%s/%s", defaultPageURL, seriesID, episodeID)
}

// Day is one day of the weekly timeline, for presentation.
type Day struct {
	Name    string
	Date    string
	IsToday bool
	Cards   []Card
}

// Card is one timeline slot, for presentation.
type Card struct {
	SeriesID  string
	EpisodeID string
	Title     string
	IndexShow string
	AirTime   string
	Released  bool
}

// Series is a deduplicated show from the timeline, for the watchlist picker.
type Series struct {
	ID    string
	Title string
}

// get performs one rate-limited GET with the client's headers and cookies.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	return c.httpClient.Do(req)
}

// getWithRetry retries transient failures (transport errors and 5xx
// responses) with doubling backoff, then gives up with shared.ErrNetwork.
func (c *Client) getWithRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying schedule request", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := c.get(ctx, rawURL)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: unexpected status %d", shared.ErrNetwork, resp.StatusCode)
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, lastErr)
}

// timeline fetches and decodes the weekly release timeline.
func (c *Client) timeline(ctx context.Context) (*timelineResponse, error) {
	endpoint := fmt.Sprintf("%s/anime/timeline?%s", c.baseURL, url.Values{
		"s_locale": {"en_US"},
		"platform": {"web"},
	}.Encode())

	resp, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tl timelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&tl); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrParse, err)
	}
	if tl.Code != 0 {
		return nil, fmt.Errorf("%w: api code %d: %s", shared.ErrParse, tl.Code, tl.Message)
	}

	return &tl, nil
}

// Releases returns every already-aired episode in the timeline as a
// ReleaseEntry, expanding range cards ("E11-12 updated") into one entry per
// episode. Entries older than maxAge are dropped; zero means no age cutoff.
func (c *Client) Releases(ctx context.Context, maxAge time.Duration) ([]models.ReleaseEntry, error) {
	tl, err := c.timeline(ctx)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var entries []models.ReleaseEntry
	for _, day := range tl.Data.Items {
		for _, card := range day.Cards {
			if !isReleased(card.IndexShow) {
				continue
			}
			from, to, ok := parseEpisodeSpan(card.IndexShow)
			if !ok {
				c.logger.Debug("skipping card without episode number",
					"series", card.SeasonID, "index_show", card.IndexShow)
				continue
			}

			releasedAt := time.Unix(card.PubTimeTS, 0).UTC()
			if !cutoff.IsZero() && releasedAt.Before(cutoff) {
				continue
			}

			for ep := from; ep <= to; ep++ {
				entries = append(entries, models.ReleaseEntry{
					SeriesID:   card.SeasonID,
					Episode:    ep,
					Title:      card.Title,
					ReleasedAt: releasedAt,
					Locator:    Locator(card.SeasonID, card.EpisodeID),
				})
			}
		}
	}

	return entries, nil
}

// Week returns the full timeline grouped by day, for the schedule command.
func (c *Client) Week(ctx context.Context) ([]Day, error) {
	tl, err := c.timeline(ctx)
	if err != nil {
		return nil, err
	}

	days := make([]Day, 0, len(tl.Data.Items))
	for _, item := range tl.Data.Items {
		day := Day{
			Name:    item.FullDayOfWeek,
			Date:    item.DateText,
			IsToday: item.IsToday,
		}
		for _, card := range item.Cards {
			day.Cards = append(day.Cards, Card{
				SeriesID:  card.SeasonID,
				EpisodeID: card.EpisodeID,
				Title:     card.Title,
				IndexShow: card.IndexShow,
				AirTime:   airTime(card.IndexShow),
				Released:  isReleased(card.IndexShow),
			})
		}
		days = append(days, day)
	}

	return days, nil
}

// AllSeries returns every show in the timeline, deduplicated by series ID
// and sorted by title. This feeds the interactive watchlist picker.
func (c *Client) AllSeries(ctx context.Context) ([]Series, error) {
	tl, err := c.timeline(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]string)
	for _, day := range tl.Data.Items {
		for _, card := range day.Cards {
			byID[card.SeasonID] = card.Title
		}
	}

	series := make([]Series, 0, len(byID))
	for id, title := range byID {
		series = append(series, Series{ID: id, Title: title})
	}
	sort.Slice(series, func(i, j int) bool {
		if series[i].Title != series[j].Title {
			return series[i].Title < series[j].Title
		}
		return series[i].ID < series[j].ID
	})

	return series, nil
}

// SeriesTitle resolves a series' display name by scraping its media page.
// Used when adding a series by bare ID or URL, where the timeline may not
// carry it.
func (c *Client) SeriesTitle(ctx context.Context, seriesID string) (string, error) {
	resp, err := c.getWithRetry(ctx, fmt.Sprintf("%s/en/media/%s", c.pageURL, seriesID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}

	m := titlePattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("%w: series title not found on media page", shared.ErrParse)
	}

	return html.UnescapeString(string(m[1])), nil
}
