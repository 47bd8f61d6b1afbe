package weight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceMock struct {
	points []Sample
	err    error
}

func (s *sourceMock) WeightPoints(_ context.Context, from, to time.Time) ([]Sample, error) {
	if s.err != nil {
		return nil, s.err
	}
	var inRange []Sample
	for _, p := range s.points {
		if !p.Day.Before(from) && !p.Day.After(to) {
			inRange = append(inRange, p)
		}
	}
	return inRange, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIngestor_Ingest(t *testing.T) {
	source := &sourceMock{points: []Sample{
		{Day: day(2024, 6, 10), Kilograms: 71.2},
		{Day: day(2024, 6, 11), Kilograms: 70.9},
		{Day: day(2024, 6, 12), Kilograms: 70.8},
	}}
	repo := NewRepoMock()
	ingestor := NewIngestor(source, repo, nil)

	ctx := context.Background()
	stored, err := ingestor.Ingest(ctx, day(2024, 6, 1), day(2024, 6, 12))
	require.NoError(t, err)
	assert.Equal(t, 3, stored)

	history, err := repo.History(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, day(2024, 6, 10), history[0].Day)
	assert.InDelta(t, 70.8, history[2].Kilograms, 0.001)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, day(2024, 6, 12), latest.Day)
}

func TestIngestor_Ingest_upsertSameDay(t *testing.T) {
	repo := NewRepoMock()
	ingestor := NewIngestor(&sourceMock{points: []Sample{
		{Day: day(2024, 6, 12), Kilograms: 71.5},
	}}, repo, nil)

	ctx := context.Background()
	_, err := ingestor.Ingest(ctx, day(2024, 6, 1), day(2024, 6, 12))
	require.NoError(t, err)

	// a later measurement on the same day overwrites
	ingestor = NewIngestor(&sourceMock{points: []Sample{
		{Day: day(2024, 6, 12), Kilograms: 70.8},
	}}, repo, nil)
	_, err = ingestor.Ingest(ctx, day(2024, 6, 1), day(2024, 6, 12))
	require.NoError(t, err)

	history, err := repo.History(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 70.8, history[0].Kilograms, 0.001)
}

func TestIngestor_Ingest_sourceError(t *testing.T) {
	repo := NewRepoMock()
	ingestor := NewIngestor(&sourceMock{err: errors.New("quota exceeded")}, repo, nil)

	stored, err := ingestor.Ingest(context.Background(), day(2024, 6, 1), day(2024, 6, 12))
	require.Error(t, err)
	assert.Zero(t, stored)
	assert.Empty(t, repo.Samples)
}
