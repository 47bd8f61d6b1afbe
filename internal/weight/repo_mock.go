package weight

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ ingestRepo = (*repoMock)(nil)

type repoMock struct {
	// day (formatted 2006-01-02) to Sample
	Samples map[string]Sample
	mutex   sync.Mutex
}

func NewRepoMock() *repoMock {
	return &repoMock{
		Samples: map[string]Sample{},
	}
}

func (r *repoMock) Upsert(_ context.Context, sample Sample) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Samples[sample.Day.Format("2006-01-02")] = sample
	return nil
}

func (r *repoMock) History(_ context.Context, from time.Time) ([]Sample, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	samples := make([]Sample, 0)
	for day := range r.Samples {
		s := r.Samples[day]
		if !s.Day.Before(from) {
			samples = append(samples, s)
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Day.Before(samples[j].Day)
	})
	return samples, nil
}

func (r *repoMock) Latest(_ context.Context) (*Sample, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var latest *Sample
	for day := range r.Samples {
		s := r.Samples[day]
		if latest == nil || s.Day.After(latest.Day) {
			latest = &s
		}
	}
	return latest, nil
}
