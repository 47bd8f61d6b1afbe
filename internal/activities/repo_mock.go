package activities

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ syncRepo = (*repoMock)(nil)

type repoMock struct {
	// activity ID to Activity
	Activities map[int64]Activity
	// year to per-month totals
	Monthly map[int][12]float64
	mutex   sync.Mutex
}

func NewRepoMock() *repoMock {
	return &repoMock{
		Activities: map[int64]Activity{},
		Monthly:    map[int][12]float64{},
	}
}

func (r *repoMock) InsertBatch(_ context.Context, batch []Activity) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	inserted := 0
	for _, a := range batch {
		if _, ok := r.Activities[a.ID]; ok {
			continue
		}
		r.Activities[a.ID] = a
		inserted++
	}
	return inserted, nil
}

func (r *repoMock) Exists(_ context.Context, id int64) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.Activities[id]
	return ok, nil
}

func (r *repoMock) LatestStartDate(_ context.Context) (time.Time, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var latest time.Time
	for _, a := range r.Activities {
		if a.StartDate.After(latest) {
			latest = a.StartDate
		}
	}
	return latest, nil
}

func (r *repoMock) Get(_ context.Context, id int64) (*Activity, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	a, ok := r.Activities[id]
	if !ok {
		return nil, ErrActivityNotFound
	}
	return &a, nil
}

func (r *repoMock) ListRecent(_ context.Context, limit int) ([]Activity, error) {
	all := r.allSorted(false)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *repoMock) ListSince(_ context.Context, from time.Time) ([]Activity, error) {
	var found []Activity
	for _, a := range r.allSorted(false) {
		if !a.StartDate.Before(from) {
			found = append(found, a)
		}
	}
	if found == nil {
		found = make([]Activity, 0)
	}
	return found, nil
}

func (r *repoMock) ListAll(_ context.Context) ([]Activity, error) {
	return r.allSorted(true), nil
}

func (r *repoMock) ListYear(_ context.Context, year int) ([]Activity, error) {
	var found []Activity
	for _, a := range r.allSorted(true) {
		if a.StartDate.Year() == year {
			found = append(found, a)
		}
	}
	if found == nil {
		found = make([]Activity, 0)
	}
	return found, nil
}

func (r *repoMock) SetPolyline(_ context.Context, id int64, polyline string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	a, ok := r.Activities[id]
	if !ok {
		return ErrActivityNotFound
	}
	a.Polyline = polyline
	r.Activities[id] = a
	return nil
}

func (r *repoMock) UpsertMonthlyStats(_ context.Context, year int, totals [12]float64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Monthly[year] = totals
	return nil
}

func (r *repoMock) MonthlyStats(_ context.Context, year int) ([12]float64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.Monthly[year], nil
}

func (r *repoMock) allSorted(ascending bool) []Activity {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	all := make([]Activity, 0, len(r.Activities))
	for id := range r.Activities {
		all = append(all, r.Activities[id])
	}
	sort.Slice(all, func(i, j int) bool {
		if ascending {
			return all[i].StartDate.Before(all[j].StartDate)
		}
		return all[i].StartDate.After(all[j].StartDate)
	})
	return all
}
