package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deepfake/internal/pkg/media"

	"github.com/go-kratos/kratos/v2/log"
)

func TestFetcher_Fetch_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "deepfake-analyzer/1.0" {
			t.Errorf("Expected user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegbytes"))
	}))
	defer server.Close()

	f := New(DefaultConfig(), log.DefaultLogger)
	res, err := f.Fetch(context.Background(), server.URL+"/photos/portrait%20one.jpg", media.KindImage)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Blob.MIMEType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", res.Blob.MIMEType)
	}
	if res.Name != "portrait one.jpg" {
		t.Errorf("Expected name from path, got %q", res.Name)
	}
	if res.Size != 9 {
		t.Errorf("Expected size 9, got %d", res.Size)
	}
}

func TestFetcher_Fetch_NonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := New(DefaultConfig(), log.DefaultLogger)
	_, err := f.Fetch(context.Background(), server.URL+"/missing.png", media.KindImage)
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected fetch Error, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", fetchErr.StatusCode)
	}
}

func TestFetcher_Fetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	f := New(DefaultConfig(), log.DefaultLogger)
	_, err := f.Fetch(context.Background(), addr+"/a.png", media.KindImage)
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected fetch Error, got %v", err)
	}
}

func TestFetcher_Fetch_RejectsScheme(t *testing.T) {
	f := New(DefaultConfig(), log.DefaultLogger)
	for _, u := range []string{"file:///etc/passwd", "ftp://example.com/a.png", "::bad"} {
		_, err := f.Fetch(context.Background(), u, media.KindImage)
		var fetchErr *Error
		if !errors.As(err, &fetchErr) {
			t.Errorf("Fetch(%q): expected fetch Error, got %v", u, err)
		}
	}
}

func TestFetcher_Fetch_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	config := DefaultConfig()
	config.MaxBytes = 16
	f := New(config, log.DefaultLogger)
	_, err := f.Fetch(context.Background(), server.URL+"/a.mp3", media.KindAudio)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
}

func TestFetcher_Fetch_SniffsMissingType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write(png)
	}))
	defer server.Close()

	f := New(DefaultConfig(), log.DefaultLogger)
	res, err := f.Fetch(context.Background(), server.URL+"/", media.KindImage)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Blob.MIMEType != "image/png" {
		t.Errorf("Expected sniffed image/png, got %q", res.Blob.MIMEType)
	}
	if res.Name != "media.image" {
		t.Errorf("Expected fallback name, got %q", res.Name)
	}
}

func TestFetcher_Fetch_ResolvesOpenGraph(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
<meta property="og:image" content="/media/cover.png">
<meta property="og:video" content="/media/clip.mp4">
</head><body></body></html>`))
	})
	mux.HandleFunc("/media/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := New(DefaultConfig(), log.DefaultLogger)
	res, err := f.Fetch(context.Background(), server.URL+"/post", media.KindVideo)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Blob.MIMEType != "video/mp4" || res.Name != "clip.mp4" {
		t.Errorf("Expected resolved video, got %q %q", res.Blob.MIMEType, res.Name)
	}
}

func TestFetcher_Fetch_PageWithoutMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>nothing</title></head></html>`))
	}))
	defer server.Close()

	f := New(DefaultConfig(), log.DefaultLogger)
	_, err := f.Fetch(context.Background(), server.URL+"/post", media.KindAudio)
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected fetch Error, got %v", err)
	}
}

func TestResolveMediaURL_PrefersSecureURL(t *testing.T) {
	html := []byte(`<meta property="og:image" content="http://cdn.example.com/a.png">
<meta property="og:image:secure_url" content="https://cdn.example.com/a.png">`)
	got, err := ResolveMediaURL("https://example.com/post", html, media.KindImage)
	if err != nil {
		t.Fatalf("ResolveMediaURL: %v", err)
	}
	if got != "https://cdn.example.com/a.png" {
		t.Errorf("Expected secure URL, got %q", got)
	}
}

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		kind media.Kind
		want string
	}{
		{"https://example.com/a/b/voice.wav", media.KindAudio, "voice.wav"},
		{"https://example.com/", media.KindVideo, "media.video"},
		{"https://example.com", media.KindImage, "media.image"},
		{"https://example.com/x.png?sig=1", media.KindImage, "x.png"},
	}
	for _, tt := range tests {
		if got := NameFromURL(tt.url, tt.kind); got != tt.want {
			t.Errorf("NameFromURL(%q) = %q; want %q", tt.url, got, tt.want)
		}
	}
}
