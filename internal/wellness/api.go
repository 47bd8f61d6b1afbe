package wellness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/mlaverdet/velodash/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultAPIURL = "https://intervals.icu/api/v1"

	oneHour             = 60 * 60
	wellnessCacheExpire = oneHour * 1 // expire in hours

	dayLayout = "2006-01-02"
)

// Sample is one day of the wellness feed. CTL and ATL are the
// exponentially weighted training loads, weight comes from whatever
// scale syncs into the wellness provider. All of them can be absent on
// any given day.
type Sample struct {
	Day    string   `json:"id"` // "2006-01-02"
	CTL    *float64 `json:"ctl"`
	ATL    *float64 `json:"atl"`
	Weight *float64 `json:"weight"`
}

func (s Sample) Date() (time.Time, error) {
	return time.Parse(dayLayout, s.Day)
}

// Api fetches the wellness feed, basic-auth'd with the athlete's API
// key. Responses get cached for an hour, the feed changes at most a
// few times a day.
type Api struct {
	cache     *freecache.Cache
	apiURL    string
	athleteID string
	apiKey    string

	httpClient *http.Client
}

func NewApi(apiURL, athleteID, apiKey string, httpClient *http.Client) *Api {
	megabyte := 1024 * 1024
	cacheSize := 10 * megabyte

	return &Api{
		cache:      freecache.NewCache(cacheSize),
		apiURL:     apiURL,
		athleteID:  athleteID,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// GetWellness returns the samples of [oldest, newest], oldest first.
func (a *Api) GetWellness(ctx context.Context, oldest, newest time.Time) (_ []Sample, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "wellnessApi.getWellness")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	oldestDay := oldest.Format(dayLayout)
	newestDay := newest.Format(dayLayout)
	span.SetAttributes(attribute.String("oldest", oldestDay))
	span.SetAttributes(attribute.String("newest", newestDay))

	var samples []Sample

	cacheKey := fmt.Sprintf("wellness::%s::%s", oldestDay, newestDay)
	if wellnessBytes, err := a.cache.Get([]byte(cacheKey)); err == nil {
		log.Tracef("found wellness window %s in cache", cacheKey)
		if err = json.Unmarshal(wellnessBytes, &samples); err == nil {
			sortByDay(samples)
			return samples, nil
		}
		log.Errorf("failed to unmarshal cached wellness window %s: %s", cacheKey, err)
	} else {
		log.Debugf("wellness window %s not cached: %s; will ask the wellness api", cacheKey, err)
	}

	reqURL := fmt.Sprintf(
		"%s/athlete/%s/wellness?oldest=%s&newest=%s",
		a.apiURL, a.athleteID, oldestDay, newestDay,
	)
	log.Debugf("calling wellness api: %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("API_KEY", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read wellness api response bytes: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Errorf("wellness api: %s -> %d: %s", reqURL, resp.StatusCode, respBytes)
		return nil, fmt.Errorf("wellness api status code %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBytes, &samples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wellness api response bytes: %w", err)
	}

	sortByDay(samples)

	// set cache
	if err = a.cache.Set([]byte(cacheKey), respBytes, wellnessCacheExpire); err != nil {
		log.Errorf("failed to write wellness cache for %s: %s", cacheKey, err)
	} else {
		log.Debugf("wellness cache set for: %s", cacheKey)
	}

	return samples, nil
}

func sortByDay(samples []Sample) {
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Day < samples[j].Day
	})
}
