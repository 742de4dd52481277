package service

import (
	"context"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/pagination"
)

// HistoryService exposes the analysis history.
type HistoryService struct {
	uc *biz.HistoryUsecase
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(uc *biz.HistoryUsecase) *HistoryService {
	return &HistoryService{uc: uc}
}

// ListHistory returns one page of past analyses, newest first by default.
func (s *HistoryService) ListHistory(ctx context.Context, in *HistoryRequest) (*HistoryReply, error) {
	page, err := s.uc.List(ctx, pagination.ParseOffsetRequest(in.Page, in.PageSize, in.Order))
	if err != nil {
		return nil, err
	}
	return &HistoryReply{
		Items:      toAnalysisReplies(page.Items),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
	}, nil
}

// GetAnalysis returns a single analysis.
func (s *HistoryService) GetAnalysis(ctx context.Context, in *IDRequest) (*AnalysisReply, error) {
	a, err := s.uc.Get(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	return NewAnalysisReply(a), nil
}

// ListSimilar returns earlier images that look like the analysis.
func (s *HistoryService) ListSimilar(ctx context.Context, in *IDRequest) (*SimilarReply, error) {
	items, err := s.uc.Similar(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	return &SimilarReply{Items: toAnalysisReplies(items)}, nil
}

// DeleteAnalysis removes a single analysis.
func (s *HistoryService) DeleteAnalysis(ctx context.Context, in *IDRequest) (*DeleteReply, error) {
	if err := s.uc.Delete(ctx, in.ID); err != nil {
		return nil, err
	}
	return &DeleteReply{}, nil
}

// ClearHistory removes every analysis.
func (s *HistoryService) ClearHistory(ctx context.Context, _ *ClearRequest) (*ClearReply, error) {
	n, err := s.uc.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return &ClearReply{Deleted: n}, nil
}
