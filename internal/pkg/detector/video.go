package detector

import (
	"context"
	"errors"
	"fmt"

	"deepfake/internal/pkg/media"

	"golang.org/x/sync/errgroup"
)

// Pipeline stages named in wrapped errors.
const (
	StageDemux  = "demux"
	StageVisual = "visual"
	StageAudio  = "audio"
)

// AnalyzeVideo produces a verdict for a video payload. In pipeline mode the
// file is written to a private workspace, demuxed, and its frames and audio are
// assessed concurrently. The workspace is removed before returning.
func (d *Detector) AnalyzeVideo(ctx context.Context, blob media.Blob, nameHint string) (*VideoVerdict, error) {
	if d.config.VideoMode == VideoModeDirect && d.videoAssessor != nil {
		return d.analyzeDirect(ctx, blob)
	}
	if d.demuxer == nil {
		return nil, fmt.Errorf("%s stage: no demuxer configured", StageDemux)
	}
	return media.WithWorkspace(d.config.WorkDir, d.logger, func(ws *media.Workspace) (*VideoVerdict, error) {
		return d.runPipeline(ctx, ws, blob, nameHint)
	})
}

func (d *Detector) runPipeline(ctx context.Context, ws *media.Workspace, blob media.Blob, nameHint string) (*VideoVerdict, error) {
	input, err := ws.WriteInput(blob, nameHint)
	if err != nil {
		return nil, fmt.Errorf("failed to stage video: %w", err)
	}

	demuxed, err := d.demuxer.Demux(ctx, input, ws.Root)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", StageDemux, err)
	}
	d.log.Infof("demuxed video: frames=%d has_audio=%t", len(demuxed.Frames), demuxed.HasAudio)

	var (
		visual VisualAssessment
		audio  AudioAssessment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := AggregateVisual(gctx, d.assessor, demuxed.Frames, d.config.Concurrency)
		if err != nil {
			return fmt.Errorf("%s stage: %w", StageVisual, err)
		}
		visual = v
		return nil
	})
	g.Go(func() error {
		var track *media.Blob
		if demuxed.HasAudio {
			b, err := demuxed.AudioBlob()
			if err != nil {
				return fmt.Errorf("%s stage: %w", StageAudio, &AssessmentError{Modality: "audio", Err: err})
			}
			track = &b
		}
		a, err := AggregateAudio(gctx, d.assessor, demuxed.HasAudio, track)
		if err != nil {
			return fmt.Errorf("%s stage: %w", StageAudio, err)
		}
		audio = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verdict := Combine(visual, audio, demuxed.HasAudio)
	return &verdict, nil
}

func (d *Detector) analyzeDirect(ctx context.Context, blob media.Blob) (*VideoVerdict, error) {
	if d.config.AssessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.AssessTimeout)
		defer cancel()
	}
	verdict, err := d.videoAssessor.AssessVideo(ctx, blob)
	if err != nil {
		var assessErr *AssessmentError
		if errors.As(err, &assessErr) {
			return nil, err
		}
		return nil, &AssessmentError{Modality: "video", Err: err}
	}
	verdict.OverallScore = clampScore(verdict.OverallScore)
	verdict.Visual.Score = clampScore(verdict.Visual.Score)
	if verdict.HasAudio {
		verdict.Audio.Score = clampScore(verdict.Audio.Score)
	} else {
		verdict.Audio = NoAudio()
	}
	verdict.Classification = Classify(verdict.OverallScore)
	return verdict, nil
}
