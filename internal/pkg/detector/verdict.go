package detector

import (
	"fmt"
	"strings"
)

// Weights for combining modalities when audio is present.
const (
	VisualWeight = 0.7
	AudioWeight  = 0.3
)

// VideoVerdict is the final result for a video.
type VideoVerdict struct {
	OverallScore         float64          `json:"overall_score"`
	OverallJustification string           `json:"overall_justification"`
	Classification       Classification   `json:"classification"`
	HasAudio             bool             `json:"has_audio"`
	Visual               VisualAssessment `json:"visual"`
	Audio                AudioAssessment  `json:"audio"`
}

// Combine merges the visual and audio assessments into a verdict.
func Combine(visual VisualAssessment, audio AudioAssessment, hasAudio bool) VideoVerdict {
	if !hasAudio {
		audio = NoAudio()
	}
	overall := visual.Score
	if hasAudio {
		overall = VisualWeight*visual.Score + AudioWeight*audio.Score
	}
	overall = clampScore(overall)

	return VideoVerdict{
		OverallScore:         overall,
		OverallJustification: overallJustification(visual, audio, hasAudio),
		Classification:       Classify(overall),
		HasAudio:             hasAudio,
		Visual:               visual,
		Audio:                audio,
	}
}

func overallJustification(visual VisualAssessment, audio AudioAssessment, hasAudio bool) string {
	var b strings.Builder
	frames := visual.FrameCount()
	noun := "frames"
	if frames == 1 {
		noun = "frame"
	}
	if hasAudio {
		b.WriteString("Overall assessment combines the visual and audio analyses. ")
	} else {
		b.WriteString("Overall assessment is based on the visual analysis only. ")
	}
	fmt.Fprintf(&b, "Visual analysis of %d sampled %s: %s", frames, noun, sentence(visual.Justification))
	if hasAudio {
		fmt.Fprintf(&b, " Audio analysis: %s", sentence(audio.Justification))
	} else {
		b.WriteString(" ")
		b.WriteString(NoAudioJustification)
	}
	return b.String()
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no justification provided."
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
