package service

import (
	"time"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/detector"
)

// AnalysisReply is the JSON form of an analysis.
type AnalysisReply struct {
	ID             string                 `json:"id"`
	Kind           string                 `json:"kind"`
	Name           string                 `json:"name"`
	SourceURL      string                 `json:"source_url,omitempty"`
	FileSize       int64                  `json:"file_size"`
	FileType       string                 `json:"file_type"`
	Score          float64                `json:"score"`
	Classification string                 `json:"classification"`
	Justification  string                 `json:"justification"`
	Video          *detector.VideoVerdict `json:"video,omitempty"`
	PHash          string                 `json:"phash,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// AnalyzeURLRequest is the body of POST /v1/analyze/url.
type AnalyzeURLRequest struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// UploadRequest is a multipart upload after decoding.
type UploadRequest struct {
	Kind  string
	Input biz.MediaInput
}

// HistoryRequest selects one history page.
type HistoryRequest struct {
	Page     string
	PageSize string
	Order    string
}

// HistoryReply is one history page.
type HistoryReply struct {
	Items      []*AnalysisReply `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int64            `json:"total_items"`
	TotalPages int              `json:"total_pages"`
	HasNext    bool             `json:"has_next"`
	HasPrev    bool             `json:"has_prev"`
}

// IDRequest addresses a single analysis.
type IDRequest struct {
	ID string
}

// SimilarReply lists analyses similar to one image.
type SimilarReply struct {
	Items []*AnalysisReply `json:"items"`
}

// ClearRequest clears the whole history.
type ClearRequest struct{}

// DeleteReply is the empty result of a single delete.
type DeleteReply struct{}

// ClearReply reports how many analyses were removed.
type ClearReply struct {
	Deleted int64 `json:"deleted"`
}

// NewAnalysisReply converts an analysis to its JSON form.
func NewAnalysisReply(a *biz.Analysis) *AnalysisReply {
	reply := &AnalysisReply{
		ID:             a.ID,
		Kind:           a.Kind.String(),
		Name:           a.Name,
		SourceURL:      a.SourceURL,
		FileSize:       a.FileSize,
		FileType:       a.FileType,
		Score:          a.Score,
		Classification: string(a.Classification),
		Justification:  a.Justification,
		Video:          a.Video,
		CreatedAt:      a.CreatedAt,
	}
	if a.PHash != nil {
		reply.PHash = a.PHash.String()
	}
	return reply
}

func toAnalysisReplies(items []*biz.Analysis) []*AnalysisReply {
	replies := make([]*AnalysisReply, len(items))
	for i, a := range items {
		replies[i] = NewAnalysisReply(a)
	}
	return replies
}
