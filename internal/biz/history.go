package biz

import (
	"context"

	"deepfake/internal/conf"
	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultSimilarMaxDistance = 10
	defaultSimilarLimit       = 10
)

// HistoryRepo persists completed analyses.
type HistoryRepo interface {
	Save(ctx context.Context, a *Analysis) error
	// Get returns ErrAnalysisNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Analysis, error)
	List(ctx context.Context, req *pagination.OffsetRequest) ([]*Analysis, int64, error)
	// Delete returns ErrAnalysisNotFound for unknown ids.
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	// FindSimilar returns image analyses whose pHash is within maxDistance of fp,
	// closest first.
	FindSimilar(ctx context.Context, fp hash.Fingerprint, maxDistance, limit int) ([]*Analysis, error)
}

// HistoryUsecase serves the analysis history.
type HistoryUsecase struct {
	repo        HistoryRepo
	maxDistance int
	log         *log.Helper
}

// NewHistoryUsecase creates a new HistoryUsecase.
func NewHistoryUsecase(repo HistoryRepo, c *conf.Analysis, logger log.Logger) *HistoryUsecase {
	uc := &HistoryUsecase{
		repo:        repo,
		maxDistance: defaultSimilarMaxDistance,
		log:         log.NewHelper(logger),
	}
	if c != nil && c.SimilarMaxDistance > 0 {
		uc.maxDistance = c.SimilarMaxDistance
	}
	return uc
}

// List returns one page of analyses ordered by creation time.
func (uc *HistoryUsecase) List(ctx context.Context, req *pagination.OffsetRequest) (*pagination.OffsetResponse[*Analysis], error) {
	if req == nil {
		req = pagination.NewOffsetRequest(1, pagination.DefaultLimit)
	}
	items, total, err := uc.repo.List(ctx, req)
	if err != nil {
		uc.log.Errorf("failed to list history: %v", err)
		return nil, toUserError(err)
	}
	return pagination.BuildOffsetResponse(items, req, total), nil
}

// Get returns a single analysis.
func (uc *HistoryUsecase) Get(ctx context.Context, id string) (*Analysis, error) {
	a, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, toUserError(err)
	}
	return a, nil
}

// Delete removes a single analysis.
func (uc *HistoryUsecase) Delete(ctx context.Context, id string) error {
	if err := uc.repo.Delete(ctx, id); err != nil {
		return toUserError(err)
	}
	uc.log.Infof("deleted analysis %s", id)
	return nil
}

// Clear removes every analysis and reports how many were deleted.
func (uc *HistoryUsecase) Clear(ctx context.Context) (int64, error) {
	n, err := uc.repo.Clear(ctx)
	if err != nil {
		uc.log.Errorf("failed to clear history: %v", err)
		return 0, toUserError(err)
	}
	uc.log.Infof("cleared %d analyses from history", n)
	return n, nil
}

// Similar returns earlier image analyses that look like the one with id.
// Analyses without a pHash have no neighbours.
func (uc *HistoryUsecase) Similar(ctx context.Context, id string) ([]*Analysis, error) {
	a, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, toUserError(err)
	}
	if a.PHash == nil {
		return []*Analysis{}, nil
	}
	found, err := uc.repo.FindSimilar(ctx, *a.PHash, uc.maxDistance, defaultSimilarLimit+1)
	if err != nil {
		uc.log.Errorf("failed to find analyses similar to %s: %v", id, err)
		return nil, toUserError(err)
	}
	similar := make([]*Analysis, 0, len(found))
	for _, s := range found {
		if s.ID == id {
			continue
		}
		similar = append(similar, s)
		if len(similar) == defaultSimilarLimit {
			break
		}
	}
	return similar, nil
}
