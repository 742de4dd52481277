package biz

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sort"
	"sync"
	"testing"

	"deepfake/internal/conf"
	"deepfake/internal/pkg/detector"
	"deepfake/internal/pkg/fetch"
	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/media"
	"deepfake/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

type fakeDetector struct {
	assessment detector.Assessment
	verdict    *detector.VideoVerdict
	err        error
	lastBlob   media.Blob
}

func (f *fakeDetector) AssessMedia(ctx context.Context, blob media.Blob) (detector.Assessment, error) {
	f.lastBlob = blob
	return f.assessment, f.err
}

func (f *fakeDetector) AnalyzeVideo(ctx context.Context, blob media.Blob, nameHint string) (*detector.VideoVerdict, error) {
	f.lastBlob = blob
	return f.verdict, f.err
}

type fakeFetcher struct {
	result *fetch.Result
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, kind media.Kind) (*fetch.Result, error) {
	return f.result, f.err
}

type memoryHistory struct {
	mu    sync.Mutex
	items map[string]*Analysis
	err   error
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{items: make(map[string]*Analysis)}
}

func (m *memoryHistory) Save(ctx context.Context, a *Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items[a.ID] = a
	return nil
}

func (m *memoryHistory) Get(ctx context.Context, id string) (*Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return a, nil
}

func (m *memoryHistory) List(ctx context.Context, req *pagination.OffsetRequest) ([]*Analysis, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Analysis, 0, len(m.items))
	for _, a := range m.items {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := min(req.GetOffset(), len(all))
	end := min(start+req.GetPageSize(), len(all))
	return all[start:end], int64(len(all)), nil
}

func (m *memoryHistory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrAnalysisNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryHistory) Clear(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.items))
	m.items = make(map[string]*Analysis)
	return n, nil
}

func (m *memoryHistory) FindSimilar(ctx context.Context, fp hash.Fingerprint, maxDistance, limit int) ([]*Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Analysis
	for _, a := range m.items {
		if a.PHash != nil && a.PHash.IsSimilar(fp, maxDistance) {
			out = append(out, a)
		}
	}
	return out, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestUsecase(det MediaDetector, fetcher MediaFetcher, history HistoryRepo) *AnalysisUsecase {
	return NewAnalysisUsecase(det, fetcher, history, &conf.Analysis{MaxUploadBytes: 1 << 20}, log.DefaultLogger)
}

func TestAnalyzeImage(t *testing.T) {
	det := &fakeDetector{assessment: detector.Assessment{Score: 81, Justification: "Warped earrings."}}
	history := newMemoryHistory()
	uc := newTestUsecase(det, &fakeFetcher{}, history)

	result, err := uc.AnalyzeImage(context.Background(), MediaInput{Data: pngBytes(t), Name: "cat.png"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Classification != detector.ClassificationDeepfake {
		t.Errorf("Expected Deepfake, got %s", result.Classification)
	}
	if result.FileType != "image/png" {
		t.Errorf("Expected sniffed image/png, got %s", result.FileType)
	}
	if det.lastBlob.MIMEType != "image/png" {
		t.Errorf("Expected assessor to receive image/png, got %s", det.lastBlob.MIMEType)
	}
	if result.PHash == nil {
		t.Error("Expected pHash for image analysis")
	}
	if result.ID == "" || result.Name != "cat.png" {
		t.Errorf("Unexpected identity %q %q", result.ID, result.Name)
	}
	if _, err := history.Get(context.Background(), result.ID); err != nil {
		t.Errorf("Expected analysis to be saved: %v", err)
	}
}

func TestAnalyze_InputMissing(t *testing.T) {
	uc := newTestUsecase(&fakeDetector{}, &fakeFetcher{}, newMemoryHistory())

	_, err := uc.AnalyzeAudio(context.Background(), MediaInput{})
	if errors.Reason(err) != ReasonInputMissing {
		t.Errorf("Expected %s, got %v", ReasonInputMissing, err)
	}

	_, err = uc.AnalyzeURL(context.Background(), "", media.KindImage)
	if errors.Reason(err) != ReasonInputMissing {
		t.Errorf("Expected %s for empty URL, got %v", ReasonInputMissing, err)
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	uc := NewAnalysisUsecase(&fakeDetector{}, &fakeFetcher{}, newMemoryHistory(), &conf.Analysis{MaxUploadBytes: 4}, log.DefaultLogger)

	_, err := uc.AnalyzeVideo(context.Background(), MediaInput{Data: []byte("0123456789")})
	if errors.Code(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %v", err)
	}
}

func TestAnalyze_KindMismatch(t *testing.T) {
	uc := newTestUsecase(&fakeDetector{}, &fakeFetcher{}, newMemoryHistory())

	_, err := uc.AnalyzeAudio(context.Background(), MediaInput{Data: pngBytes(t), MIMEType: "image/png"})
	if errors.Reason(err) != ReasonUnsupportedKind {
		t.Errorf("Expected %s, got %v", ReasonUnsupportedKind, err)
	}
}

func TestAnalyze_HistoryFailureIsNotFatal(t *testing.T) {
	history := newMemoryHistory()
	history.err = stderrors.New("db down")
	det := &fakeDetector{assessment: detector.Assessment{Score: 5, Justification: "Natural room tone."}}
	uc := newTestUsecase(det, &fakeFetcher{}, history)

	result, err := uc.AnalyzeAudio(context.Background(), MediaInput{Data: []byte("ID3 audio"), MIMEType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Classification != detector.ClassificationAuthentic {
		t.Errorf("Expected Authentic, got %s", result.Classification)
	}
}

func TestAnalyzeVideo_UsesVerdict(t *testing.T) {
	combined := detector.Combine(
		detector.VisualAssessment{Score: 80, Justification: "Blink rate is off.", Frames: []detector.FrameAssessment{{Score: 80}}},
		detector.AudioAssessment{Score: 20, Justification: "Clean speech."},
		true,
	)
	verdict := &combined
	det := &fakeDetector{verdict: verdict}
	uc := newTestUsecase(det, &fakeFetcher{}, newMemoryHistory())

	result, err := uc.AnalyzeVideo(context.Background(), MediaInput{Data: []byte("not sniffable"), MIMEType: "video/mp4", Name: "clip.mp4"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Video != verdict {
		t.Error("Expected the detector verdict to be attached")
	}
	if result.Score != verdict.OverallScore || result.Classification != detector.ClassificationUncertain {
		t.Errorf("Unexpected score %v classification %s", result.Score, result.Classification)
	}
	if result.PHash != nil {
		t.Error("Expected no pHash for video")
	}
}

func TestAnalyzeURL(t *testing.T) {
	fetcher := &fakeFetcher{result: &fetch.Result{
		Blob: media.Blob{Data: []byte("ID3 audio"), MIMEType: "audio/mpeg"},
		Name: "speech.mp3",
		Size: 9,
	}}
	det := &fakeDetector{assessment: detector.Assessment{Score: 70, Justification: "Robotic prosody."}}
	uc := newTestUsecase(det, fetcher, newMemoryHistory())

	result, err := uc.AnalyzeURL(context.Background(), "https://example.com/speech.mp3", media.KindAudio)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.SourceURL != "https://example.com/speech.mp3" || result.Name != "speech.mp3" {
		t.Errorf("Unexpected source %q name %q", result.SourceURL, result.Name)
	}
	if result.Classification != detector.ClassificationDeepfake {
		t.Errorf("Expected Deepfake at the 70 boundary, got %s", result.Classification)
	}
}

func TestAnalyzeURL_FetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: &fetch.Error{URL: "https://example.com/x", StatusCode: 404}}
	uc := newTestUsecase(&fakeDetector{}, fetcher, newMemoryHistory())

	_, err := uc.AnalyzeURL(context.Background(), "https://example.com/x", media.KindImage)
	se := errors.FromError(err)
	if se.Reason != ReasonFetchFailed || se.Message != fetch.UserMessage {
		t.Errorf("Expected fetch failure message, got %v", err)
	}
	if se.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", se.Code)
	}
}

func TestToUserError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		reason string
	}{
		{"demux", &media.DemuxError{Stage: "frames", Err: stderrors.New("boom")}, http.StatusUnprocessableEntity, ReasonDemuxFailed},
		{"demux timeout", &media.DemuxError{Stage: "frames", Err: context.DeadlineExceeded}, http.StatusUnprocessableEntity, ReasonDemuxFailed},
		{"assessment", &detector.AssessmentError{Modality: "image", Err: stderrors.New("bad json")}, http.StatusServiceUnavailable, ReasonAssessmentFailed},
		{"assessment timeout", &detector.AssessmentError{Modality: "audio", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, ReasonAssessmentFailed},
		{"unsupported", &detector.AssessmentError{Modality: "audio", Err: detector.ErrUnsupportedMedia}, http.StatusBadRequest, ReasonUnsupportedKind},
		{"kratos passthrough", ErrAnalysisNotFound, http.StatusNotFound, ReasonNotFound},
		{"unexpected", stderrors.New("nil pointer"), http.StatusInternalServerError, ReasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := errors.FromError(toUserError(tt.err))
			if int(se.Code) != tt.code || se.Reason != tt.reason {
				t.Errorf("Expected %d %s, got %d %s", tt.code, tt.reason, se.Code, se.Reason)
			}
		})
	}

	if toUserError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
	se := errors.FromError(toUserError(&media.DemuxError{Stage: "frames", Err: context.DeadlineExceeded}))
	if se.Message != "Video processing timed out." {
		t.Errorf("Unexpected timeout message %q", se.Message)
	}
}

func TestHistoryUsecase(t *testing.T) {
	ctx := context.Background()
	history := newMemoryHistory()
	uc := NewHistoryUsecase(history, &conf.Analysis{SimilarMaxDistance: 5}, log.DefaultLogger)

	fp := hash.Fingerprint(0xF0F0F0F0F0F0F0F0)
	near := fp ^ 0x3
	far := ^fp
	for _, a := range []*Analysis{
		{ID: "a", PHash: &fp},
		{ID: "b", PHash: &near},
		{ID: "c", PHash: &far},
		{ID: "d"},
	} {
		history.Save(ctx, a)
	}

	page, err := uc.List(ctx, pagination.NewOffsetRequest(1, 3))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 3 || page.TotalItems != 4 || !page.HasNext {
		t.Errorf("Unexpected page %+v", page)
	}

	similar, err := uc.Similar(ctx, "a")
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if len(similar) != 1 || similar[0].ID != "b" {
		t.Errorf("Expected only b to be similar to a, got %v", similar)
	}

	similar, err = uc.Similar(ctx, "d")
	if err != nil || len(similar) != 0 {
		t.Errorf("Expected no neighbours for an analysis without pHash, got %v %v", similar, err)
	}

	if err := uc.Delete(ctx, "c"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := uc.Get(ctx, "c"); !errors.IsNotFound(err) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	if err := uc.Delete(ctx, "c"); !errors.IsNotFound(err) {
		t.Errorf("Expected not found deleting twice, got %v", err)
	}

	n, err := uc.Clear(ctx)
	if err != nil || n != 3 {
		t.Errorf("Expected 3 cleared, got %d %v", n, err)
	}
}
