package service

import (
	"context"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/media"
)

// AnalysisService runs analyses for the HTTP API.
type AnalysisService struct {
	uc *biz.AnalysisUsecase
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(uc *biz.AnalysisUsecase) *AnalysisService {
	return &AnalysisService{uc: uc}
}

// AnalyzeUpload analyzes an uploaded file of the requested kind.
func (s *AnalysisService) AnalyzeUpload(ctx context.Context, in *UploadRequest) (*AnalysisReply, error) {
	kind, err := media.ParseKind(in.Kind)
	if err != nil {
		return nil, biz.ErrUnsupportedKind.WithCause(err)
	}

	var result *biz.Analysis
	switch kind {
	case media.KindImage:
		result, err = s.uc.AnalyzeImage(ctx, in.Input)
	case media.KindAudio:
		result, err = s.uc.AnalyzeAudio(ctx, in.Input)
	case media.KindVideo:
		result, err = s.uc.AnalyzeVideo(ctx, in.Input)
	}
	if err != nil {
		return nil, err
	}
	return NewAnalysisReply(result), nil
}

// AnalyzeURL fetches a URL and analyzes it.
func (s *AnalysisService) AnalyzeURL(ctx context.Context, in *AnalyzeURLRequest) (*AnalysisReply, error) {
	kind, err := media.ParseKind(in.Kind)
	if err != nil {
		return nil, biz.ErrUnsupportedKind.WithCause(err)
	}
	result, err := s.uc.AnalyzeURL(ctx, in.URL, kind)
	if err != nil {
		return nil, err
	}
	return NewAnalysisReply(result), nil
}
