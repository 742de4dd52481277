package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"deepfake/internal/pkg/filter"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// UnsupportedMediaError is returned for payloads a backend cannot judge.
type UnsupportedMediaError struct {
	MIMEType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported media type %q", e.MIMEType)
}

// RefusalError is returned when the model declined to assess the media.
type RefusalError struct {
	Phrase string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("model declined the assessment (%q)", e.Phrase)
}

// refusals are phrases that only appear when a model declines to answer.
var refusals = filter.NewMatcher([]filter.Phrase{
	{Text: "I'm sorry, but I can't", Reason: "apology"},
	{Text: "I'm sorry, but I cannot", Reason: "apology"},
	{Text: "I can't help with", Reason: "refusal"},
	{Text: "I cannot help with", Reason: "refusal"},
	{Text: "I can't assist with", Reason: "refusal"},
	{Text: "I cannot assist with", Reason: "refusal"},
	{Text: "I'm unable to analyze", Reason: "refusal"},
	{Text: "I am unable to analyze", Reason: "refusal"},
	{Text: "I'm not able to analyze", Reason: "refusal"},
	{Text: "as an AI language model", Reason: "disclaimer"},
})

func checkRefusal(text string) error {
	if p, ok := refusals.Find(text); ok {
		return &RefusalError{Phrase: p.Text}
	}
	return nil
}

// Judgement is a parsed single-modality model answer.
type Judgement struct {
	Confidence    float64
	Justification string
	Raw           string
	Model         string
}

// VideoJudgement is a parsed whole-video model answer.
type VideoJudgement struct {
	HasAudio             bool
	VisualConfidence     float64
	VisualJustification  string
	AudioConfidence      float64
	AudioJustification   string
	OverallConfidence    float64
	OverallJustification string
	Raw                  string
	Model                string
}

type judgementPayload struct {
	Confidence    *float64 `json:"confidence"`
	Justification *string  `json:"justification"`
}

type videoPayload struct {
	HasAudio             *bool    `json:"hasAudio"`
	VisualConfidence     *float64 `json:"visualConfidence"`
	VisualJustification  *string  `json:"visualJustification"`
	AudioConfidence      *float64 `json:"audioConfidence"`
	AudioJustification   *string  `json:"audioJustification"`
	OverallConfidence    *float64 `json:"overallConfidence"`
	OverallJustification *string  `json:"overallJustification"`
}

// ParseJudgement decodes {"confidence","justification"} from model output.
// Surrounding prose and code fences are tolerated. Missing fields are errors.
// The confidence is clamped to [0,100].
func ParseJudgement(raw string) (*Judgement, error) {
	var p judgementPayload
	if err := decodeObject(raw, &p); err != nil {
		return nil, err
	}
	if p.Confidence == nil {
		return nil, errors.New("response is missing confidence")
	}
	if p.Justification == nil {
		return nil, errors.New("response is missing justification")
	}
	if err := checkRefusal(*p.Justification); err != nil {
		return nil, err
	}
	confidence, err := clampConfidence(*p.Confidence)
	if err != nil {
		return nil, err
	}
	return &Judgement{
		Confidence:    confidence,
		Justification: normalizeText(*p.Justification),
		Raw:           raw,
	}, nil
}

// ParseVideoJudgement decodes a whole-video answer. Audio fields may be absent
// when hasAudio is false.
func ParseVideoJudgement(raw string) (*VideoJudgement, error) {
	var p videoPayload
	if err := decodeObject(raw, &p); err != nil {
		return nil, err
	}
	missing := []string{}
	if p.VisualConfidence == nil {
		missing = append(missing, "visualConfidence")
	}
	if p.VisualJustification == nil {
		missing = append(missing, "visualJustification")
	}
	if p.OverallConfidence == nil {
		missing = append(missing, "overallConfidence")
	}
	if p.OverallJustification == nil {
		missing = append(missing, "overallJustification")
	}
	hasAudio := p.HasAudio != nil && *p.HasAudio
	if hasAudio && (p.AudioConfidence == nil || p.AudioJustification == nil) {
		missing = append(missing, "audioConfidence/audioJustification")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("response is missing %s", strings.Join(missing, ", "))
	}
	if err := checkRefusal(*p.OverallJustification); err != nil {
		return nil, err
	}

	v := &VideoJudgement{
		HasAudio:             hasAudio,
		VisualJustification:  normalizeText(*p.VisualJustification),
		OverallJustification: normalizeText(*p.OverallJustification),
		Raw:                  raw,
	}
	var err error
	if v.VisualConfidence, err = clampConfidence(*p.VisualConfidence); err != nil {
		return nil, err
	}
	if v.OverallConfidence, err = clampConfidence(*p.OverallConfidence); err != nil {
		return nil, err
	}
	if hasAudio {
		if v.AudioConfidence, err = clampConfidence(*p.AudioConfidence); err != nil {
			return nil, err
		}
		v.AudioJustification = normalizeText(*p.AudioJustification)
	}
	return v, nil
}

func decodeObject(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrEmptyResponse
	}
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	fixed := extractFirstJSONObject(raw)
	if fixed == "" {
		if refusal := checkRefusal(raw); refusal != nil {
			return refusal
		}
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

// extractFirstJSONObject returns the first balanced {...} in s, honouring strings.
func extractFirstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clampConfidence(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid confidence %v", v)
	}
	return math.Max(0, math.Min(100, v)), nil
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
