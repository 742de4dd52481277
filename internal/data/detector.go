package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deepfake/internal/biz"
	"deepfake/internal/conf"
	"deepfake/internal/pkg/bloom"
	"deepfake/internal/pkg/detector"
	"deepfake/internal/pkg/fetch"
	"deepfake/internal/pkg/llm"
	"deepfake/internal/pkg/media"
	"deepfake/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// DetectorSet builds the analysis pipeline without storage.
var DetectorSet = wire.NewSet(
	NewJudge,
	NewDemuxer,
	NewDetector,
	NewFetcher,
	wire.Bind(new(biz.MediaDetector), new(*detector.Detector)),
	wire.Bind(new(biz.MediaFetcher), new(*fetch.Fetcher)),
)

// Judge is a model backend that rates one image or audio payload.
type Judge interface {
	Judge(ctx context.Context, blob media.Blob) (*llm.Judgement, error)
	Ping(ctx context.Context) error
}

type videoJudge interface {
	JudgeVideo(ctx context.Context, blob media.Blob) (*llm.VideoJudgement, error)
}

// NewJudge creates the configured model backend.
func NewJudge(c *conf.LLM, logger log.Logger) (Judge, error) {
	helper := log.NewHelper(logger)
	if c == nil {
		c = &conf.LLM{}
	}
	switch strings.ToLower(c.Provider) {
	case "", "openai", "gemini":
		config := llm.DefaultOpenAIConfig()
		if c.BaseURL != "" {
			config.BaseURL = c.BaseURL
		}
		if c.Model != "" {
			config.Model = c.Model
		}
		if c.Temperature > 0 {
			config.Temperature = c.Temperature
		}
		if c.Timeout > 0 {
			config.Timeout = c.Timeout.AsDuration()
		}
		if c.MaxRetries > 0 {
			config.MaxRetries = c.MaxRetries
		}
		config.APIKey = c.APIKey
		if config.APIKey == "" {
			helper.Warn("llm api key is empty, model calls will be rejected")
		}
		helper.Infof("using OpenAI-compatible model %s at %s", config.Model, config.BaseURL)
		return llm.NewOpenAIClient(config), nil
	case "ollama":
		config := llm.DefaultOllamaConfig()
		if c.BaseURL != "" {
			config.BaseURL = c.BaseURL
		}
		if c.Model != "" {
			config.Model = c.Model
		}
		if c.Timeout > 0 {
			config.Timeout = c.Timeout.AsDuration()
		}
		helper.Infof("using Ollama model %s at %s (images only)", config.Model, config.BaseURL)
		return llm.NewOllamaClient(config), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}

// judgeAssessor adapts a Judge to detector.Assessor.
type judgeAssessor struct {
	judge Judge
}

func (a *judgeAssessor) Assess(ctx context.Context, blob media.Blob) (detector.Assessment, error) {
	j, err := a.judge.Judge(ctx, blob)
	if err != nil {
		var unsupported *llm.UnsupportedMediaError
		if errors.As(err, &unsupported) {
			return detector.Assessment{}, fmt.Errorf("%w: %v", detector.ErrUnsupportedMedia, err)
		}
		return detector.Assessment{}, err
	}
	return detector.Assessment{Score: j.Confidence, Justification: j.Justification}, nil
}

// videoAssessor adapts a whole-video model call to detector.VideoAssessor.
type videoAssessor struct {
	judge videoJudge
}

func (a *videoAssessor) AssessVideo(ctx context.Context, blob media.Blob) (*detector.VideoVerdict, error) {
	v, err := a.judge.JudgeVideo(ctx, blob)
	if err != nil {
		return nil, err
	}
	verdict := &detector.VideoVerdict{
		OverallScore:         v.OverallConfidence,
		OverallJustification: v.OverallJustification,
		HasAudio:             v.HasAudio,
		Visual: detector.VisualAssessment{
			Score:         v.VisualConfidence,
			Justification: v.VisualJustification,
		},
		Audio: detector.AudioAssessment{
			Score:         v.AudioConfidence,
			Justification: v.AudioJustification,
		},
	}
	verdict.Classification = detector.Classify(verdict.OverallScore)
	return verdict, nil
}

// NewAssessor wraps judge as a detector.Assessor, adding the assessment cache
// when it is enabled and at least one cache layer is available.
func NewAssessor(judge Judge, c *conf.Analysis, cache redis.Cache, store detector.AssessmentStore, logger log.Logger) detector.Assessor {
	var assessor detector.Assessor = &judgeAssessor{judge: judge}
	if c == nil || c.Cache == nil || !c.Cache.Enabled {
		return assessor
	}
	if cache == nil && store == nil {
		return assessor
	}

	config := detector.DefaultCacheConfig()
	if c.Cache.TTL > 0 {
		config.TTL = c.Cache.TTL.AsDuration()
	}
	if c.Cache.BloomBits > 0 {
		config.BloomBits = c.Cache.BloomBits
	}
	if c.Cache.BloomHashFuncs > 0 {
		config.BloomHashFuncs = c.Cache.BloomHashFuncs
	}

	var (
		hot    detector.HotCache
		filter detector.MembershipFilter
	)
	if cache != nil {
		hot = cache
		filter = bloom.NewRedis(cache, config.BloomKey, config.BloomBits, config.BloomHashFuncs)
	}
	log.NewHelper(logger).Infof("assessment cache enabled: hot=%t store=%t", hot != nil, store != nil)
	return detector.NewCachedAssessor(assessor, hot, filter, store, config, logger)
}

// NewVideoAssessor returns the whole-video assessor when the backend supports
// it, otherwise nil.
func NewVideoAssessor(judge Judge) detector.VideoAssessor {
	vj, ok := judge.(videoJudge)
	if !ok {
		return nil
	}
	return &videoAssessor{judge: vj}
}

// NewDemuxer creates the ffmpeg demuxer.
func NewDemuxer(c *conf.Analysis, logger log.Logger) detector.Demuxer {
	config := media.DefaultDemuxConfig()
	if c != nil {
		if c.FFmpeg != "" {
			config.FFmpegBinary = c.FFmpeg
		}
		if c.FFprobe != "" {
			config.FFprobeBinary = c.FFprobe
		}
		if c.FrameRate > 0 {
			config.FrameRate = c.FrameRate
		}
		if c.MaxFrames > 0 {
			config.MaxFrames = c.MaxFrames
		}
		if c.DemuxTimeout > 0 {
			config.Timeout = c.DemuxTimeout.AsDuration()
		}
	}
	return media.NewFFmpegDemuxer(config, logger)
}

// NewDetector creates the detector from configuration.
func NewDetector(c *conf.Analysis, assessor detector.Assessor, video detector.VideoAssessor, demuxer detector.Demuxer, logger log.Logger) (*detector.Detector, error) {
	config := detector.DefaultConfig()
	if c != nil {
		if c.AssessTimeout > 0 {
			config.AssessTimeout = c.AssessTimeout.AsDuration()
		}
		if c.Concurrency > 0 {
			config.Concurrency = c.Concurrency
		}
		config.WorkDir = c.WorkDir
		switch mode := detector.VideoMode(strings.ToLower(c.VideoMode)); mode {
		case "":
		case detector.VideoModePipeline, detector.VideoModeDirect:
			config.VideoMode = mode
		default:
			return nil, fmt.Errorf("unknown video mode %q", c.VideoMode)
		}
	}
	if config.VideoMode == detector.VideoModeDirect && video == nil {
		log.NewHelper(logger).Warn("llm backend cannot judge whole videos, using the frame pipeline")
	}
	return detector.New(config, assessor, video, demuxer, logger), nil
}

// NewFetcher creates the URL fetcher.
func NewFetcher(c *conf.Analysis, logger log.Logger) *fetch.Fetcher {
	config := fetch.DefaultConfig()
	if c != nil {
		if c.FetchTimeout > 0 {
			config.Timeout = c.FetchTimeout.AsDuration()
		}
		if c.MaxUploadBytes > 0 {
			config.MaxBytes = c.MaxUploadBytes
		}
	}
	return fetch.New(config, logger)
}
