package llm

import (
	"errors"
	"testing"
)

func TestParseJudgement(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantJust  string
		wantErr   bool
	}{
		{name: "plain", raw: `{"confidence": 55, "justification": "Soft edges."}`, wantScore: 55, wantJust: "Soft edges."},
		{name: "fenced", raw: "```json\n{\"confidence\": 5, \"justification\": \"Clean.\"}\n```", wantScore: 5, wantJust: "Clean."},
		{name: "prose around", raw: `Here you go: {"confidence": 30, "justification": "Odd {brace} text"} thanks`, wantScore: 30, wantJust: "Odd {brace} text"},
		{name: "clamped high", raw: `{"confidence": 130, "justification": "x"}`, wantScore: 100, wantJust: "x"},
		{name: "clamped low", raw: `{"confidence": -4, "justification": "x"}`, wantScore: 0, wantJust: "x"},
		{name: "nfc", raw: `{"confidence": 1, "justification": "cafe\u0301"}`, wantScore: 1, wantJust: "caf\u00e9"},
		{name: "missing confidence", raw: `{"justification": "x"}`, wantErr: true},
		{name: "missing justification", raw: `{"confidence": 1}`, wantErr: true},
		{name: "not json", raw: `no idea`, wantErr: true},
		{name: "empty", raw: `  `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJudgement(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseJudgement(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJudgement(%q) error = %v", tt.raw, err)
			}
			if got.Confidence != tt.wantScore || got.Justification != tt.wantJust {
				t.Errorf("ParseJudgement(%q) = {%v %q}; want {%v %q}", tt.raw, got.Confidence, got.Justification, tt.wantScore, tt.wantJust)
			}
		})
	}
}

func TestParseJudgement_EmptyIsSentinel(t *testing.T) {
	if _, err := ParseJudgement(""); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}
}

func TestParseVideoJudgement_NoAudioFieldsOptional(t *testing.T) {
	v, err := ParseVideoJudgement(`{"hasAudio": false, "visualConfidence": 20, "visualJustification": "ok",
"overallConfidence": 20, "overallJustification": "ok"}`)
	if err != nil {
		t.Fatalf("ParseVideoJudgement error = %v", err)
	}
	if v.HasAudio || v.AudioConfidence != 0 {
		t.Errorf("Expected no audio, got %+v", v)
	}
}

func TestParseVideoJudgement_MissingAudioWhenPresent(t *testing.T) {
	_, err := ParseVideoJudgement(`{"hasAudio": true, "visualConfidence": 20, "visualJustification": "ok",
"overallConfidence": 20, "overallJustification": "ok"}`)
	if err == nil {
		t.Fatal("Expected error when audio fields are missing")
	}
}

func TestPromptFor(t *testing.T) {
	for _, family := range []string{"image", "audio", "video"} {
		if p, err := PromptFor(family); err != nil || p == "" {
			t.Errorf("PromptFor(%q) = %q, %v", family, p, err)
		}
	}
	if _, err := PromptFor("text"); err == nil {
		t.Error("Expected error for unsupported family")
	}
}

func TestParseJudgement_Refusal(t *testing.T) {
	tests := []string{
		`I'm sorry, but I can't help with identifying whether this person is real.`,
		`{"confidence": 0, "justification": "As an AI language model I am not able to say."}`,
	}
	for _, raw := range tests {
		_, err := ParseJudgement(raw)
		var refusal *RefusalError
		if !errors.As(err, &refusal) {
			t.Errorf("Expected RefusalError for %q, got %v", raw, err)
		}
	}

	j, err := ParseJudgement(`{"confidence": 3, "justification": "I cannot find any blending seams."}`)
	if err != nil {
		t.Fatalf("Expected a negative finding to parse, got %v", err)
	}
	if j.Confidence != 3 {
		t.Errorf("Expected confidence 3, got %v", j.Confidence)
	}
}
