package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"deepfake/internal/pkg/media"

	"github.com/go-kratos/kratos/v2/log"
)

// Classification is the label derived from an overall score.
type Classification string

const (
	ClassificationAuthentic Classification = "Authentic"
	ClassificationUncertain Classification = "Uncertain"
	ClassificationDeepfake  Classification = "Deepfake"
)

// Classification thresholds, inclusive at the lower bound.
const (
	DeepfakeThreshold  = 70.0
	UncertainThreshold = 20.0
)

// Classify maps a score in [0,100] to its label.
func Classify(score float64) Classification {
	switch {
	case score >= DeepfakeThreshold:
		return ClassificationDeepfake
	case score >= UncertainThreshold:
		return ClassificationUncertain
	default:
		return ClassificationAuthentic
	}
}

// Assessment is one model judgement of one media payload.
type Assessment struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// Assessor judges a single image or audio payload.
// Implementations receive only bytes and a MIME type.
type Assessor interface {
	Assess(ctx context.Context, blob media.Blob) (Assessment, error)
}

// AssessorFunc adapts a function to Assessor.
type AssessorFunc func(ctx context.Context, blob media.Blob) (Assessment, error)

// Assess implements Assessor.
func (f AssessorFunc) Assess(ctx context.Context, blob media.Blob) (Assessment, error) {
	return f(ctx, blob)
}

// VideoAssessor judges a whole video in one model call, without demuxing.
type VideoAssessor interface {
	AssessVideo(ctx context.Context, blob media.Blob) (*VideoVerdict, error)
}

// Demuxer splits a video file into frames and an optional audio track inside workDir.
type Demuxer interface {
	Demux(ctx context.Context, inputPath, workDir string) (*media.DemuxResult, error)
}

// ErrUnsupportedMedia is wrapped by assessors that cannot judge a MIME type.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// AssessmentError reports a failed, timed out or incomplete model call.
type AssessmentError struct {
	Modality string
	Err      error
}

func (e *AssessmentError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s assessment: timed out", e.Modality)
	}
	return fmt.Sprintf("%s assessment: %v", e.Modality, e.Err)
}

func (e *AssessmentError) Unwrap() error {
	return e.Err
}

// VideoMode selects how videos are analyzed.
type VideoMode string

const (
	// VideoModePipeline demuxes and assesses frames and audio separately.
	VideoModePipeline VideoMode = "pipeline"
	// VideoModeDirect hands the whole file to a VideoAssessor.
	VideoModeDirect VideoMode = "direct"
)

// Config holds configuration for the detector.
type Config struct {
	AssessTimeout time.Duration // bound on each model call, 0 disables
	Concurrency   int           // max in-flight frame assessments, 0 means unbounded
	WorkDir       string        // parent of per-analysis workspaces, os.TempDir when empty
	VideoMode     VideoMode
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		AssessTimeout: 60 * time.Second,
		Concurrency:   0,
		VideoMode:     VideoModePipeline,
	}
}

// Detector runs deepfake assessments for the three supported media kinds.
type Detector struct {
	config        Config
	assessor      Assessor
	videoAssessor VideoAssessor
	demuxer       Demuxer
	logger        log.Logger
	log           *log.Helper
}

// New creates a new Detector. videoAssessor may be nil, in which case direct mode
// falls back to the pipeline.
func New(config Config, assessor Assessor, videoAssessor VideoAssessor, demuxer Demuxer, logger log.Logger) *Detector {
	if config.VideoMode == "" {
		config.VideoMode = VideoModePipeline
	}
	return &Detector{
		config:        config,
		assessor:      withTimeout(assessor, config.AssessTimeout),
		videoAssessor: videoAssessor,
		demuxer:       demuxer,
		logger:        logger,
		log:           log.NewHelper(logger),
	}
}

// AssessMedia runs a single-shot assessment of an image or audio payload.
func (d *Detector) AssessMedia(ctx context.Context, blob media.Blob) (Assessment, error) {
	d.log.Debugf("AssessMedia: mime=%s size=%d", blob.MIMEType, blob.Size())
	return assess(ctx, d.assessor, blob)
}

// withTimeout bounds every call of next by timeout.
func withTimeout(next Assessor, timeout time.Duration) Assessor {
	if timeout <= 0 {
		return next
	}
	return AssessorFunc(func(ctx context.Context, blob media.Blob) (Assessment, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next.Assess(ctx, blob)
	})
}

// assess calls a and normalizes its result: errors become *AssessmentError and
// the score is clamped to [0,100].
func assess(ctx context.Context, a Assessor, blob media.Blob) (Assessment, error) {
	result, err := a.Assess(ctx, blob)
	if err != nil {
		var assessErr *AssessmentError
		if errors.As(err, &assessErr) {
			return Assessment{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return Assessment{}, &AssessmentError{Modality: modalityOf(blob), Err: err}
	}
	if math.IsNaN(result.Score) || math.IsInf(result.Score, 0) {
		return Assessment{}, &AssessmentError{Modality: modalityOf(blob), Err: fmt.Errorf("invalid score %v", result.Score)}
	}
	result.Score = clampScore(result.Score)
	return result, nil
}

func modalityOf(blob media.Blob) string {
	if family := blob.Family(); family != "" {
		return family
	}
	return "media"
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
