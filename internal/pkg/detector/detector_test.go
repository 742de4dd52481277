package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deepfake/internal/pkg/media"
	"deepfake/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

// scriptedAssessor scores payloads by their content.
type scriptedAssessor struct {
	scores map[string]Assessment
	fail   map[string]error
	calls  atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (s *scriptedAssessor) Assess(ctx context.Context, blob media.Blob) (Assessment, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Assessment{}, ctx.Err()
		}
	}
	key := string(blob.Data)
	if err, ok := s.fail[key]; ok {
		return Assessment{}, err
	}
	if a, ok := s.scores[key]; ok {
		return a, nil
	}
	return Assessment{}, fmt.Errorf("unexpected payload %q", key)
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func writeFrame(t *testing.T, dir string, index int, content string) media.Frame {
	t.Helper()
	path := media.FramePath(dir, index)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return media.Frame{Index: index, Timestamp: time.Duration(index-1) * 2 * time.Second, Path: path}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		want  Classification
	}{
		{0, ClassificationAuthentic},
		{19.99, ClassificationAuthentic},
		{20, ClassificationUncertain},
		{69.99, ClassificationUncertain},
		{70, ClassificationDeepfake},
		{100, ClassificationDeepfake},
	}
	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCombine_WithAudio(t *testing.T) {
	visual := VisualAssessment{Score: 80, Justification: "Warped jawline.", Frames: make([]FrameAssessment, 3)}
	audio := AudioAssessment{Score: 40, Justification: "Natural breathing"}

	v := Combine(visual, audio, true)

	if !approx(v.OverallScore, 68) {
		t.Errorf("Expected overall 68, got %v", v.OverallScore)
	}
	if v.Classification != ClassificationUncertain {
		t.Errorf("Expected Uncertain, got %s", v.Classification)
	}
	if !strings.Contains(v.OverallJustification, "3 sampled frames") {
		t.Errorf("Expected frame count in justification, got %q", v.OverallJustification)
	}
	if !strings.Contains(v.OverallJustification, "Warped jawline.") || !strings.Contains(v.OverallJustification, "Natural breathing.") {
		t.Errorf("Expected both justifications, got %q", v.OverallJustification)
	}
}

func TestCombine_WithoutAudio(t *testing.T) {
	visual := VisualAssessment{Score: 75, Justification: "Flicker", Frames: make([]FrameAssessment, 1)}

	v := Combine(visual, AudioAssessment{Score: 99, Justification: "ignored"}, false)

	if v.OverallScore != 75 {
		t.Errorf("Expected overall 75, got %v", v.OverallScore)
	}
	if v.Audio != NoAudio() {
		t.Errorf("Expected no-audio assessment, got %+v", v.Audio)
	}
	if v.Classification != ClassificationDeepfake {
		t.Errorf("Expected Deepfake, got %s", v.Classification)
	}
	if strings.Contains(v.OverallJustification, "ignored") {
		t.Errorf("Audio justification leaked: %q", v.OverallJustification)
	}
}

func TestCombine_OverallIsDeterministic(t *testing.T) {
	visual := VisualAssessment{Score: 10, Justification: "ok", Frames: make([]FrameAssessment, 2)}
	audio := AudioAssessment{Score: 10, Justification: "ok"}
	first, second := Combine(visual, audio, true), Combine(visual, audio, true)
	if first.OverallScore != second.OverallScore || first.OverallJustification != second.OverallJustification {
		t.Error("Expected identical verdicts for identical inputs")
	}
}

func TestAggregateVisual_MeanAndFirstMax(t *testing.T) {
	dir := t.TempDir()
	// Supplied out of order; index 2 and 3 tie on the maximum.
	frames := []media.Frame{
		writeFrame(t, dir, 3, "c"),
		writeFrame(t, dir, 1, "a"),
		writeFrame(t, dir, 2, "b"),
	}
	a := &scriptedAssessor{scores: map[string]Assessment{
		"a": {Score: 30, Justification: "first"},
		"b": {Score: 90, Justification: "second"},
		"c": {Score: 90, Justification: "third"},
	}}

	v, err := AggregateVisual(context.Background(), a, frames, 0)
	if err != nil {
		t.Fatalf("AggregateVisual: %v", err)
	}
	if v.Score != 70 {
		t.Errorf("Expected mean 70, got %v", v.Score)
	}
	if v.Justification != "second" {
		t.Errorf("Expected justification of frame 2, got %q", v.Justification)
	}
	if v.FrameCount() != 3 || v.Frames[0].Index != 1 || v.Frames[2].Index != 3 {
		t.Errorf("Expected frames in sequence order, got %+v", v.Frames)
	}
	if a.calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", a.calls.Load())
	}
}

func TestAggregateVisual_FailFast(t *testing.T) {
	dir := t.TempDir()
	frames := []media.Frame{writeFrame(t, dir, 1, "a"), writeFrame(t, dir, 2, "b")}
	a := &scriptedAssessor{
		scores: map[string]Assessment{"a": {Score: 10, Justification: "fine"}},
		fail:   map[string]error{"b": errors.New("model unavailable")},
	}

	_, err := AggregateVisual(context.Background(), a, frames, 0)
	var assessErr *AssessmentError
	if !errors.As(err, &assessErr) {
		t.Fatalf("Expected AssessmentError, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("Expected cause in error, got %q", err)
	}
}

func TestAggregateVisual_Limit(t *testing.T) {
	dir := t.TempDir()
	scores := map[string]Assessment{}
	var frames []media.Frame
	for i := 1; i <= 8; i++ {
		content := fmt.Sprintf("f%d", i)
		frames = append(frames, writeFrame(t, dir, i, content))
		scores[content] = Assessment{Score: 50, Justification: content}
	}
	a := &scriptedAssessor{scores: scores, delay: 20 * time.Millisecond}

	if _, err := AggregateVisual(context.Background(), a, frames, 2); err != nil {
		t.Fatalf("AggregateVisual: %v", err)
	}
	if got := a.maxInFlight.Load(); got > 2 {
		t.Errorf("Expected at most 2 concurrent assessments, got %d", got)
	}
}

func TestAggregateVisual_ClampsScores(t *testing.T) {
	dir := t.TempDir()
	frames := []media.Frame{writeFrame(t, dir, 1, "a")}
	a := &scriptedAssessor{scores: map[string]Assessment{"a": {Score: 140, Justification: "x"}}}

	v, err := AggregateVisual(context.Background(), a, frames, 0)
	if err != nil {
		t.Fatalf("AggregateVisual: %v", err)
	}
	if v.Score != 100 {
		t.Errorf("Expected clamped score 100, got %v", v.Score)
	}
}

func TestAggregateAudio_NoAudioSkipsAssessor(t *testing.T) {
	a := &scriptedAssessor{}

	got, err := AggregateAudio(context.Background(), a, false, nil)
	if err != nil {
		t.Fatalf("AggregateAudio: %v", err)
	}
	if got.Score != 0 || got.Justification != NoAudioJustification {
		t.Errorf("Expected no-audio assessment, got %+v", got)
	}
	if a.calls.Load() != 0 {
		t.Errorf("Expected assessor not to be called, got %d calls", a.calls.Load())
	}
}

func TestAggregateAudio_PropagatesError(t *testing.T) {
	a := &scriptedAssessor{fail: map[string]error{"mp3": errors.New("bad json")}}
	blob := media.NewBlob([]byte("mp3"), "audio/mp3")

	_, err := AggregateAudio(context.Background(), a, true, &blob)
	var assessErr *AssessmentError
	if !errors.As(err, &assessErr) || assessErr.Modality != "audio" {
		t.Fatalf("Expected audio AssessmentError, got %v", err)
	}
}

// fakeDemuxer writes frames (and optionally audio) into the workspace.
type fakeDemuxer struct {
	frames   []string
	audio    string
	err      error
	workDirs []string
	mu       sync.Mutex
}

func (f *fakeDemuxer) Demux(ctx context.Context, inputPath, workDir string) (*media.DemuxResult, error) {
	f.mu.Lock()
	f.workDirs = append(f.workDirs, workDir)
	f.mu.Unlock()
	if _, err := os.Stat(inputPath); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	frameDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(frameDir, 0o700); err != nil {
		return nil, err
	}
	res := &media.DemuxResult{FrameDir: frameDir}
	for i, content := range f.frames {
		path := media.FramePath(frameDir, i+1)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return nil, err
		}
		res.Frames = append(res.Frames, media.Frame{Index: i + 1, Path: path})
	}
	if f.audio != "" {
		res.HasAudio = true
		res.AudioPath = filepath.Join(workDir, "audio.mp3")
		if err := os.WriteFile(res.AudioPath, []byte(f.audio), 0o600); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected workspace root to be empty, found %d entries", len(entries))
	}
}

func newTestDetector(t *testing.T, a Assessor, d Demuxer) (*Detector, string) {
	t.Helper()
	root := t.TempDir()
	config := DefaultConfig()
	config.WorkDir = root
	config.AssessTimeout = time.Second
	return New(config, a, nil, d, log.DefaultLogger), root
}

func TestAnalyzeVideo_WithAudio(t *testing.T) {
	a := &scriptedAssessor{scores: map[string]Assessment{
		"a":     {Score: 60, Justification: "soft edges"},
		"b":     {Score: 100, Justification: "face swap seam"},
		"track": {Score: 20, Justification: "clean voice"},
	}}
	dm := &fakeDemuxer{frames: []string{"a", "b"}, audio: "track"}
	det, root := newTestDetector(t, a, dm)

	v, err := det.AnalyzeVideo(context.Background(), media.NewBlob([]byte("mp4"), "video/mp4"), "clip.mp4")
	if err != nil {
		t.Fatalf("AnalyzeVideo: %v", err)
	}
	// visual 80, audio 20 -> 62
	if !approx(v.OverallScore, 62) {
		t.Errorf("Expected overall 62, got %v", v.OverallScore)
	}
	if !v.HasAudio || v.Audio.Justification != "clean voice" {
		t.Errorf("Expected audio assessment, got %+v", v.Audio)
	}
	if v.Visual.Justification != "face swap seam" {
		t.Errorf("Expected max-frame justification, got %q", v.Visual.Justification)
	}
	assertEmpty(t, root)
}

func TestAnalyzeVideo_WithoutAudio(t *testing.T) {
	a := &scriptedAssessor{scores: map[string]Assessment{"a": {Score: 90, Justification: "gan artifacts"}}}
	dm := &fakeDemuxer{frames: []string{"a"}}
	det, root := newTestDetector(t, a, dm)

	v, err := det.AnalyzeVideo(context.Background(), media.NewBlob([]byte("mp4"), "video/mp4"), "")
	if err != nil {
		t.Fatalf("AnalyzeVideo: %v", err)
	}
	if v.OverallScore != 90 || v.Classification != ClassificationDeepfake {
		t.Errorf("Expected 90/Deepfake, got %v/%s", v.OverallScore, v.Classification)
	}
	if v.HasAudio || v.Audio.Score != 0 {
		t.Errorf("Expected no audio, got %+v", v.Audio)
	}
	if a.calls.Load() != 1 {
		t.Errorf("Expected only the frame to be assessed, got %d calls", a.calls.Load())
	}
	assertEmpty(t, root)
}

func TestAnalyzeVideo_DemuxFailure(t *testing.T) {
	demuxErr := &media.DemuxError{Stage: "frames", Err: media.ErrNoFrames}
	a := &scriptedAssessor{}
	det, root := newTestDetector(t, a, &fakeDemuxer{err: demuxErr})

	_, err := det.AnalyzeVideo(context.Background(), media.NewBlob([]byte("mp4"), "video/mp4"), "")
	var got *media.DemuxError
	if !errors.As(err, &got) {
		t.Fatalf("Expected DemuxError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), StageDemux+" stage") {
		t.Errorf("Expected stage annotation, got %q", err)
	}
	if a.calls.Load() != 0 {
		t.Errorf("Expected no assessments, got %d", a.calls.Load())
	}
	assertEmpty(t, root)
}

func TestAnalyzeVideo_AudioFailureIsFatal(t *testing.T) {
	a := &scriptedAssessor{
		scores: map[string]Assessment{"a": {Score: 10, Justification: "fine"}},
		fail:   map[string]error{"track": errors.New("upstream 500")},
	}
	det, root := newTestDetector(t, a, &fakeDemuxer{frames: []string{"a"}, audio: "track"})

	_, err := det.AnalyzeVideo(context.Background(), media.NewBlob([]byte("mp4"), "video/mp4"), "")
	var assessErr *AssessmentError
	if !errors.As(err, &assessErr) {
		t.Fatalf("Expected AssessmentError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), StageAudio+" stage") {
		t.Errorf("Expected audio stage annotation, got %q", err)
	}
	assertEmpty(t, root)
}

func TestAnalyzeVideo_UniqueWorkspaces(t *testing.T) {
	a := &scriptedAssessor{scores: map[string]Assessment{"a": {Score: 10, Justification: "fine"}}}
	dm := &fakeDemuxer{frames: []string{"a"}}
	det, root := newTestDetector(t, a, dm)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := det.AnalyzeVideo(context.Background(), media.NewBlob([]byte("mp4"), "video/mp4"), ""); err != nil {
				t.Errorf("AnalyzeVideo: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, dir := range dm.workDirs {
		if seen[dir] {
			t.Errorf("Workspace %s reused", dir)
		}
		seen[dir] = true
	}
	assertEmpty(t, root)
}

func TestAssessMedia_Timeout(t *testing.T) {
	a := &scriptedAssessor{delay: time.Second, scores: map[string]Assessment{"img": {Score: 1}}}
	config := DefaultConfig()
	config.AssessTimeout = 20 * time.Millisecond
	det := New(config, a, nil, nil, log.DefaultLogger)

	_, err := det.AssessMedia(context.Background(), media.NewBlob([]byte("img"), "image/png"))
	var assessErr *AssessmentError
	if !errors.As(err, &assessErr) {
		t.Fatalf("Expected AssessmentError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Expected timed out message, got %q", err)
	}
}

type fakeVideoAssessor struct {
	verdict *VideoVerdict
}

func (f *fakeVideoAssessor) AssessVideo(ctx context.Context, blob media.Blob) (*VideoVerdict, error) {
	v := *f.verdict
	return &v, nil
}

func TestAnalyzeVideo_DirectMode(t *testing.T) {
	config := DefaultConfig()
	config.VideoMode = VideoModeDirect
	va := &fakeVideoAssessor{verdict: &VideoVerdict{
		OverallScore: 85,
		Visual:       VisualAssessment{Score: 85, Justification: "lip sync drift"},
		Audio:        AudioAssessment{Score: 50, Justification: "stale"},
		HasAudio:     false,
	}}
	dm := &fakeDemuxer{}
	det := New(config, &scriptedAssessor{}, va, dm, log.DefaultLogger)

	v, err := det.AnalyzeVideo(context.Background(), media.NewBlob([]byte("mp4"), "video/mp4"), "")
	if err != nil {
		t.Fatalf("AnalyzeVideo: %v", err)
	}
	if v.Classification != ClassificationDeepfake {
		t.Errorf("Expected Deepfake, got %s", v.Classification)
	}
	if v.Audio != NoAudio() {
		t.Errorf("Expected no-audio assessment, got %+v", v.Audio)
	}
	if len(dm.workDirs) != 0 {
		t.Error("Expected direct mode to bypass the demuxer")
	}
}

type memoryHot struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryHot) GetString(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryHot) SetString(ctx context.Context, key, value string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type memoryFilter struct{ seen map[string]bool }

func (m *memoryFilter) MayContain(ctx context.Context, key string) (bool, error) {
	return m.seen[key], nil
}

func (m *memoryFilter) Add(ctx context.Context, key string) error {
	m.seen[key] = true
	return nil
}

type memoryStore struct{ rows map[string]Assessment }

func (m *memoryStore) FindAssessment(ctx context.Context, contentHash string) (*Assessment, error) {
	a, ok := m.rows[contentHash]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memoryStore) SaveAssessment(ctx context.Context, contentHash, mimeType string, a Assessment) error {
	m.rows[contentHash] = a
	return nil
}

func TestCachedAssessor(t *testing.T) {
	next := &scriptedAssessor{scores: map[string]Assessment{"img": {Score: 42, Justification: "cached"}}}
	hot := &memoryHot{data: map[string]string{}}
	filter := &memoryFilter{seen: map[string]bool{}}
	store := &memoryStore{rows: map[string]Assessment{}}
	c := NewCachedAssessor(next, hot, filter, store, DefaultCacheConfig(), log.DefaultLogger)
	blob := media.NewBlob([]byte("img"), "image/png")

	for i := 0; i < 2; i++ {
		got, err := c.Assess(context.Background(), blob)
		if err != nil {
			t.Fatalf("Assess: %v", err)
		}
		if got.Score != 42 || got.Justification != "cached" {
			t.Errorf("Unexpected assessment %+v", got)
		}
	}
	if next.calls.Load() != 1 {
		t.Errorf("Expected one model call, got %d", next.calls.Load())
	}
	if len(store.rows) != 1 || len(filter.seen) != 1 {
		t.Errorf("Expected store and filter to be populated")
	}

	// Hot cache evicted: store answers through the filter.
	hot.data = map[string]string{}
	if _, err := c.Assess(context.Background(), blob); err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if next.calls.Load() != 1 {
		t.Errorf("Expected store hit, got %d model calls", next.calls.Load())
	}
	if len(hot.data) != 1 {
		t.Error("Expected hot cache to be refilled")
	}
}

func TestCachedAssessor_DistinguishesMIME(t *testing.T) {
	next := &scriptedAssessor{scores: map[string]Assessment{"raw": {Score: 5, Justification: "x"}}}
	c := NewCachedAssessor(next, &memoryHot{data: map[string]string{}}, nil, nil, DefaultCacheConfig(), log.DefaultLogger)

	for _, mime := range []string{"image/png", "audio/mp3"} {
		if _, err := c.Assess(context.Background(), media.NewBlob([]byte("raw"), mime)); err != nil {
			t.Fatalf("Assess: %v", err)
		}
	}
	if next.calls.Load() != 2 {
		t.Errorf("Expected separate entries per MIME type, got %d calls", next.calls.Load())
	}
}
