package detector

import (
	"context"
	"errors"
	"sort"
	"time"

	"deepfake/internal/pkg/media"

	"golang.org/x/sync/errgroup"
)

// NoAudioJustification is reported when a video carries no audio stream.
const NoAudioJustification = "No audio track was detected in the video."

// FrameAssessment is the verdict for one sampled frame.
type FrameAssessment struct {
	Index         int           `json:"index"`
	Timestamp     time.Duration `json:"timestamp"`
	Score         float64       `json:"score"`
	Justification string        `json:"justification"`
}

// VisualAssessment summarizes every sampled frame of a video.
type VisualAssessment struct {
	Score         float64           `json:"score"`
	Justification string            `json:"justification"`
	Frames        []FrameAssessment `json:"frames,omitempty"`
}

// FrameCount returns how many frames contributed to the score.
func (v VisualAssessment) FrameCount() int {
	return len(v.Frames)
}

// AudioAssessment is the verdict for the audio track.
type AudioAssessment struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// NoAudio returns the assessment used when a video has no audio.
func NoAudio() AudioAssessment {
	return AudioAssessment{Score: 0, Justification: NoAudioJustification}
}

// AggregateVisual assesses every frame concurrently and combines the results.
// The score is the arithmetic mean and the justification comes from the first
// frame, in sequence order, holding the highest score. limit bounds in-flight
// assessments, 0 means unbounded. The first failure cancels the rest and is
// returned.
func AggregateVisual(ctx context.Context, assessor Assessor, frames []media.Frame, limit int) (VisualAssessment, error) {
	if len(frames) == 0 {
		return VisualAssessment{}, &AssessmentError{Modality: "image", Err: media.ErrNoFrames}
	}

	ordered := make([]media.Frame, len(frames))
	copy(ordered, frames)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	results := make([]FrameAssessment, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, frame := range ordered {
		i, frame := i, frame
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			blob, err := frame.Blob()
			if err != nil {
				return &AssessmentError{Modality: "image", Err: err}
			}
			assessment, err := assess(gctx, assessor, blob)
			if err != nil {
				return err
			}
			results[i] = FrameAssessment{
				Index:         frame.Index,
				Timestamp:     frame.Timestamp,
				Score:         assessment.Score,
				Justification: assessment.Justification,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var assessErr *AssessmentError
		if !errors.As(err, &assessErr) {
			err = &AssessmentError{Modality: "image", Err: err}
		}
		return VisualAssessment{}, err
	}

	return summarizeFrames(results), nil
}

// summarizeFrames expects results in sequence order.
func summarizeFrames(results []FrameAssessment) VisualAssessment {
	var sum float64
	best := 0
	for i, r := range results {
		sum += r.Score
		if r.Score > results[best].Score {
			best = i
		}
	}
	return VisualAssessment{
		Score:         sum / float64(len(results)),
		Justification: results[best].Justification,
		Frames:        results,
	}
}

// AggregateAudio assesses the audio track, or returns the no-audio assessment
// without calling the assessor when hasAudio is false.
func AggregateAudio(ctx context.Context, assessor Assessor, hasAudio bool, blob *media.Blob) (AudioAssessment, error) {
	if !hasAudio {
		return NoAudio(), nil
	}
	if blob == nil {
		return AudioAssessment{}, &AssessmentError{Modality: "audio", Err: errors.New("audio track reported but not provided")}
	}
	assessment, err := assess(ctx, assessor, *blob)
	if err != nil {
		return AudioAssessment{}, err
	}
	return AudioAssessment{Score: assessment.Score, Justification: assessment.Justification}, nil
}
