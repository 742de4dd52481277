package data

import (
	"context"
	"sort"
	"sync"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/pagination"
)

// MemoryHistoryRepo is a process-local biz.HistoryRepo.
type MemoryHistoryRepo struct {
	mu    sync.RWMutex
	items map[string]*biz.Analysis
}

// NewMemoryHistoryRepo creates an empty MemoryHistoryRepo.
func NewMemoryHistoryRepo() *MemoryHistoryRepo {
	return &MemoryHistoryRepo{items: make(map[string]*biz.Analysis)}
}

func (r *MemoryHistoryRepo) Save(ctx context.Context, a *biz.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; !ok {
		r.items[a.ID] = a
	}
	return nil
}

func (r *MemoryHistoryRepo) Get(ctx context.Context, id string) (*biz.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, biz.ErrAnalysisNotFound
	}
	return a, nil
}

func (r *MemoryHistoryRepo) List(ctx context.Context, req *pagination.OffsetRequest) ([]*biz.Analysis, int64, error) {
	r.mu.RLock()
	all := r.sorted(req.GetSortOrder())
	r.mu.RUnlock()

	start := min(req.GetOffset(), len(all))
	end := min(start+req.GetPageSize(), len(all))
	return all[start:end], int64(len(all)), nil
}

func (r *MemoryHistoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return biz.ErrAnalysisNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryHistoryRepo) Clear(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.items))
	r.items = make(map[string]*biz.Analysis)
	return n, nil
}

func (r *MemoryHistoryRepo) FindSimilar(ctx context.Context, fp hash.Fingerprint, maxDistance, limit int) ([]*biz.Analysis, error) {
	r.mu.RLock()
	all := r.sorted(pagination.DESC)
	r.mu.RUnlock()

	found := make([]*biz.Analysis, 0)
	for _, a := range all {
		if a.PHash != nil && a.PHash.IsSimilar(fp, maxDistance) {
			found = append(found, a)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].PHash.Distance(fp) < found[j].PHash.Distance(fp)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// sorted returns all items by creation time, ties broken by id. Callers hold the lock.
func (r *MemoryHistoryRepo) sorted(order pagination.SortOrder) []*biz.Analysis {
	all := make([]*biz.Analysis, 0, len(r.items))
	for _, a := range r.items {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if order == pagination.ASC {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if order == pagination.ASC {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return all
}
