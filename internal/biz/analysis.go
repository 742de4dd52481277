package biz

import (
	"context"
	"time"

	"deepfake/internal/conf"
	"deepfake/internal/pkg/detector"
	"deepfake/internal/pkg/fetch"
	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/media"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Analysis is the stored result of one analysis.
type Analysis struct {
	ID             string
	Kind           media.Kind
	Name           string
	SourceURL      string
	FileSize       int64
	FileType       string
	Score          float64
	Classification detector.Classification
	Justification  string
	Video          *detector.VideoVerdict // nil for image and audio
	PHash          *hash.Fingerprint      // images only
	CreatedAt      time.Time
}

// MediaInput is an uploaded payload.
type MediaInput struct {
	Data     []byte
	MIMEType string // may be empty
	Name     string // original file name, used only for display and container hints
	Size     int64  // 0 means len(Data)
}

// MediaDetector runs the assessments.
type MediaDetector interface {
	AssessMedia(ctx context.Context, blob media.Blob) (detector.Assessment, error)
	AnalyzeVideo(ctx context.Context, blob media.Blob, nameHint string) (*detector.VideoVerdict, error)
}

// MediaFetcher retrieves media by URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string, kind media.Kind) (*fetch.Result, error)
}

// AnalysisUsecase is the entry point for analyses.
type AnalysisUsecase struct {
	detector       MediaDetector
	fetcher        MediaFetcher
	history        HistoryRepo
	maxUploadBytes int64
	log            *log.Helper
}

// NewAnalysisUsecase creates a new AnalysisUsecase.
func NewAnalysisUsecase(det MediaDetector, fetcher MediaFetcher, history HistoryRepo, c *conf.Analysis, logger log.Logger) *AnalysisUsecase {
	uc := &AnalysisUsecase{
		detector: det,
		fetcher:  fetcher,
		history:  history,
		log:      log.NewHelper(logger),
	}
	if c != nil {
		uc.maxUploadBytes = c.MaxUploadBytes
	}
	return uc
}

// AnalyzeImage assesses an uploaded image.
func (uc *AnalysisUsecase) AnalyzeImage(ctx context.Context, in MediaInput) (*Analysis, error) {
	return uc.Analyze(ctx, media.KindImage, in)
}

// AnalyzeAudio assesses an uploaded audio file.
func (uc *AnalysisUsecase) AnalyzeAudio(ctx context.Context, in MediaInput) (*Analysis, error) {
	return uc.Analyze(ctx, media.KindAudio, in)
}

// AnalyzeVideo assesses an uploaded video.
func (uc *AnalysisUsecase) AnalyzeVideo(ctx context.Context, in MediaInput) (*Analysis, error) {
	return uc.Analyze(ctx, media.KindVideo, in)
}

// Analyze assesses an uploaded payload of the declared kind.
func (uc *AnalysisUsecase) Analyze(ctx context.Context, kind media.Kind, in MediaInput) (*Analysis, error) {
	return uc.analyze(ctx, kind, in, "")
}

// AnalyzeURL fetches rawURL and assesses it as kind.
func (uc *AnalysisUsecase) AnalyzeURL(ctx context.Context, rawURL string, kind media.Kind) (*Analysis, error) {
	if rawURL == "" {
		return nil, ErrInputMissing
	}
	if _, err := media.ParseKind(kind.String()); err != nil {
		return nil, ErrUnsupportedKind.WithCause(err)
	}
	res, err := uc.fetcher.Fetch(ctx, rawURL, kind)
	if err != nil {
		uc.log.Warnf("fetch %s failed: %v", rawURL, err)
		return nil, toUserError(err)
	}
	return uc.analyze(ctx, kind, MediaInput{
		Data:     res.Blob.Data,
		MIMEType: res.Blob.MIMEType,
		Name:     res.Name,
		Size:     res.Size,
	}, rawURL)
}

func (uc *AnalysisUsecase) analyze(ctx context.Context, kind media.Kind, in MediaInput, sourceURL string) (*Analysis, error) {
	if len(in.Data) == 0 {
		return nil, ErrInputMissing
	}
	if uc.maxUploadBytes > 0 && int64(len(in.Data)) > uc.maxUploadBytes {
		return nil, ErrInputTooLarge
	}
	blob, err := blobFor(kind, in)
	if err != nil {
		return nil, err
	}

	result := &Analysis{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      displayName(in.Name, kind),
		SourceURL: sourceURL,
		FileSize:  in.Size,
		FileType:  blob.MIMEType,
		CreatedAt: time.Now().UTC(),
	}
	if result.FileSize <= 0 {
		result.FileSize = int64(blob.Size())
	}

	start := time.Now()
	switch kind {
	case media.KindVideo:
		verdict, err := uc.detector.AnalyzeVideo(ctx, blob, in.Name)
		if err != nil {
			uc.log.Errorf("video analysis failed: %v", err)
			return nil, toUserError(err)
		}
		result.Score = verdict.OverallScore
		result.Classification = verdict.Classification
		result.Justification = verdict.OverallJustification
		result.Video = verdict
	default:
		assessment, err := uc.detector.AssessMedia(ctx, blob)
		if err != nil {
			uc.log.Errorf("%s analysis failed: %v", kind, err)
			return nil, toUserError(err)
		}
		result.Score = assessment.Score
		result.Classification = detector.Classify(assessment.Score)
		result.Justification = assessment.Justification
	}
	uc.log.Infof("analyzed %s %s: score=%.2f classification=%s took=%s",
		kind, result.ID, result.Score, result.Classification, time.Since(start).Round(time.Millisecond))

	if kind == media.KindImage {
		if fp, err := hash.PerceptualHash(blob.Data); err != nil {
			uc.log.Warnf("failed to compute pHash for %s: %v", result.ID, err)
		} else {
			result.PHash = &fp
		}
	}

	if err := uc.history.Save(ctx, result); err != nil {
		uc.log.Warnf("failed to save analysis %s to history: %v", result.ID, err)
	}
	return result, nil
}

// blobFor builds the payload for kind. Uploads whose declared type disagrees with
// kind are sniffed; images and audio must be recognisable as such.
func blobFor(kind media.Kind, in MediaInput) (media.Blob, error) {
	blob := media.NewBlob(in.Data, in.MIMEType)
	if blob.Family() == kind.String() {
		return blob, nil
	}
	if sniffed := media.SniffMIME(in.Data); familyOf(sniffed) == kind.String() {
		return media.Blob{Data: in.Data, MIMEType: sniffed}, nil
	}
	switch kind {
	case media.KindVideo:
		// ffmpeg probes the container itself.
		return blob, nil
	case media.KindImage, media.KindAudio:
		return media.Blob{}, ErrUnsupportedKind
	default:
		return media.Blob{}, ErrUnsupportedKind
	}
}

func familyOf(mimeType string) string {
	return media.Blob{MIMEType: mimeType}.Family()
}

func displayName(name string, kind media.Kind) string {
	if name == "" {
		return "media." + kind.String()
	}
	return name
}
