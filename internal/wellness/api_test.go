package wellness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApi_GetWellness(t *testing.T) {
	apiCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
		require.Equal(t, "/athlete/i12345/wellness", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("oldest"))
		assert.Equal(t, "2024-06-12", r.URL.Query().Get("newest"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "API_KEY", user)
		assert.Equal(t, "secret-key", pass)

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`[
			{"id": "2024-06-12", "ctl": 82.6, "atl": 90.4, "weight": 70.8},
			{"id": "2024-06-10", "ctl": 80.1, "atl": 94.0},
			{"id": "2024-06-11", "ctl": 81.0, "atl": 92.2, "weight": null}
		]`))
		require.NoError(t, err)
	}))
	defer server.Close()

	api := NewApi(server.URL, "i12345", "secret-key", server.Client())

	oldest := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)

	samples, err := api.GetWellness(context.Background(), oldest, newest)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	// sorted oldest first regardless of feed order
	assert.Equal(t, "2024-06-10", samples[0].Day)
	assert.Equal(t, "2024-06-11", samples[1].Day)
	assert.Equal(t, "2024-06-12", samples[2].Day)

	require.NotNil(t, samples[2].CTL)
	assert.InDelta(t, 82.6, *samples[2].CTL, 0.001)
	require.NotNil(t, samples[2].Weight)
	assert.InDelta(t, 70.8, *samples[2].Weight, 0.001)
	assert.Nil(t, samples[1].Weight)

	// the same window comes from cache, no second api call
	samples, err = api.GetWellness(context.Background(), oldest, newest)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 1, apiCalls)
}

func TestApi_GetWellness_apiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	api := NewApi(server.URL, "i12345", "wrong-key", server.Client())

	samples, err := api.GetWellness(
		context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 403")
	assert.Nil(t, samples)
}

func TestSample_Date(t *testing.T) {
	s := Sample{Day: "2024-06-12"}
	date, err := s.Date()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), date)

	_, err = Sample{Day: "12.06.2024"}.Date()
	require.Error(t, err)
}
