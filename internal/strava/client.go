package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mlaverdet/velodash/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL   = "https://www.strava.com/api/v3"
	defaultAuthURL  = "https://www.strava.com/oauth/authorize"
	defaultTokenURL = "https://www.strava.com/oauth/token"

	// per page limit imposed by the API
	MaxPerPage = 200
)

var ErrNotFound = errors.New("not found")

// Client talks to the Strava v3 API. API calls authenticate with an
// access token obtained from the configured refresh token; the token
// source caches it and refreshes on expiry.
type Client struct {
	oauthCfg   *oauth2.Config
	apiURL     string
	httpClient *http.Client

	mu          sync.Mutex
	tokenSource oauth2.TokenSource
}

type NewClientParams struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RedirectURI  string
	APIURL       string // leave empty for the real API
	HTTPClient   *http.Client
}

func NewClient(params NewClientParams) *Client {
	apiURL := params.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     params.ClientID,
		ClientSecret: params.ClientSecret,
		RedirectURL:  params.RedirectURI,
		Scopes:       []string{"read,activity:read_all"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  defaultAuthURL,
			TokenURL: apiURL + "/oauth/token",
		},
	}
	if params.APIURL == "" {
		oauthCfg.Endpoint.TokenURL = defaultTokenURL
	}

	c := &Client{
		oauthCfg:   oauthCfg,
		apiURL:     apiURL,
		httpClient: httpClient,
	}

	if params.RefreshToken != "" {
		refreshCtx := context.WithValue(
			context.Background(), oauth2.HTTPClient, httpClient,
		)
		c.tokenSource = oauth2.ReuseTokenSource(nil, oauthCfg.TokenSource(
			refreshCtx,
			&oauth2.Token{RefreshToken: params.RefreshToken},
		))
	}

	return c
}

// AuthCodeURL returns the URL to send the browser to for the OAuth
// authorization step.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauthCfg.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
	)
}

// ExchangeCode trades the authorization code from the OAuth redirect
// for a token. The athlete owning the authorization comes back in the
// token response extras.
func (c *Client) ExchangeCode(ctx context.Context, code string) (_ *oauth2.Token, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stravaClient.exchangeCode")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	return token, nil
}

func (c *Client) accessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenSource == nil {
		return "", errors.New("no refresh token configured")
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token.AccessToken, nil
}

// ListActivities returns one page of the athlete's activities, newest
// first. Activities that started at or before `after` are excluded by
// the API.
func (c *Client) ListActivities(
	ctx context.Context,
	after time.Time,
	page, perPage int,
) (_ []SummaryActivity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stravaClient.listActivities")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", page))

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}

	reqURL := fmt.Sprintf("%s/athlete/activities?%s", c.apiURL, params.Encode())
	log.Tracef("strava: list activities: %s", reqURL)

	var activities []SummaryActivity
	if err := c.getJSON(ctx, reqURL, &activities); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("activities.count", len(activities)))
	return activities, nil
}

// GetAthleteStats returns the recent / YTD / all-time ride totals for
// the given athlete.
func (c *Client) GetAthleteStats(ctx context.Context, athleteID int64) (_ *AthleteStats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stravaClient.getAthleteStats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	reqURL := fmt.Sprintf("%s/athletes/%d/stats", c.apiURL, athleteID)
	stats := &AthleteStats{}
	if err := c.getJSON(ctx, reqURL, stats); err != nil {
		return nil, err
	}

	return stats, nil
}

// GetActivityStreams fetches the requested stream channels for one
// activity. Returns ErrNotFound when the activity has no streams (e.g.
// a manual or trainer entry).
func (c *Client) GetActivityStreams(
	ctx context.Context,
	activityID int64,
	keys []string,
) (_ *StreamSet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stravaClient.getActivityStreams")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", activityID))

	params := url.Values{}
	for _, key := range keys {
		params.Add("keys", key)
	}
	params.Set("key_by_type", "true")

	reqURL := fmt.Sprintf(
		"%s/activities/%d/streams?%s",
		c.apiURL, activityID, params.Encode(),
	)

	streams := &StreamSet{}
	if err := c.getJSON(ctx, reqURL, streams); err != nil {
		return nil, err
	}

	return streams, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, dest interface{}) error {
	accessToken, err := c.accessToken()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response bytes: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		log.Errorf("strava: %s -> %d: %s", reqURL, resp.StatusCode, respBytes)
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBytes, dest); err != nil {
		return fmt.Errorf("unmarshal response bytes: %w", err)
	}

	return nil
}
