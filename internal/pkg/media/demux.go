package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const (
	frameDirName  = "frames"
	framePrefix   = "frame-"
	frameSuffix   = ".png"
	audioFileName = "audio.mp3"
	audioMIMEType = "audio/mp3"
	frameMIMEType = "image/png"
)

// DemuxError reports a failed or empty extraction. It is fatal for the analysis.
type DemuxError struct {
	Stage string // "frames" or "audio"
	Err   error
}

func (e *DemuxError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("demux %s: timed out", e.Stage)
	}
	return fmt.Sprintf("demux %s: %v", e.Stage, e.Err)
}

func (e *DemuxError) Unwrap() error {
	return e.Err
}

// ErrNoFrames is wrapped by DemuxError when extraction produced no images.
var ErrNoFrames = errors.New("could not extract any frames from the video")

// Frame is one sampled still image on disk.
type Frame struct {
	Index     int           // 1-based sequence number assigned by ffmpeg
	Timestamp time.Duration // approximate capture time
	Path      string
}

// Blob reads the frame from disk.
func (f Frame) Blob() (Blob, error) {
	return ReadBlob(f.Path, frameMIMEType)
}

// DemuxResult describes the artifacts written into the workspace.
type DemuxResult struct {
	HasAudio  bool
	FrameDir  string
	Frames    []Frame // sorted by Index
	AudioPath string  // empty when HasAudio is false
}

// AudioBlob reads the extracted audio track.
func (r *DemuxResult) AudioBlob() (Blob, error) {
	if !r.HasAudio || r.AudioPath == "" {
		return Blob{}, errors.New("no audio track extracted")
	}
	return ReadBlob(r.AudioPath, audioMIMEType)
}

// DemuxConfig holds configuration for the ffmpeg adapter.
type DemuxConfig struct {
	FFmpegBinary  string
	FFprobeBinary string
	FrameRate     float64       // sampled frames per second
	MaxFrames     int           // 0 means no limit
	Timeout       time.Duration // bound on the whole demux step
}

// DefaultDemuxConfig returns default configuration: one frame every two seconds.
func DefaultDemuxConfig() DemuxConfig {
	return DemuxConfig{
		FFmpegBinary:  "ffmpeg",
		FFprobeBinary: "ffprobe",
		FrameRate:     0.5,
		MaxFrames:     0,
		Timeout:       5 * time.Minute,
	}
}

// CommandRunner runs an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// ProbeFunc inspects a media file.
type ProbeFunc func(ctx context.Context, binary, path string) (ProbeResult, error)

// DemuxOption customizes the demuxer.
type DemuxOption func(*FFmpegDemuxer)

// WithCommandRunner overrides how ffmpeg is executed.
func WithCommandRunner(run CommandRunner) DemuxOption {
	return func(d *FFmpegDemuxer) {
		if run != nil {
			d.run = run
		}
	}
}

// WithProbe overrides how streams are inspected.
func WithProbe(probe ProbeFunc) DemuxOption {
	return func(d *FFmpegDemuxer) {
		if probe != nil {
			d.probe = probe
		}
	}
}

// FFmpegDemuxer splits a video into sampled frames and an audio track using ffmpeg.
type FFmpegDemuxer struct {
	config DemuxConfig
	run    CommandRunner
	probe  ProbeFunc
	log    *log.Helper
}

// NewFFmpegDemuxer creates a new FFmpegDemuxer.
func NewFFmpegDemuxer(config DemuxConfig, logger log.Logger, opts ...DemuxOption) *FFmpegDemuxer {
	defaults := DefaultDemuxConfig()
	if config.FFmpegBinary == "" {
		config.FFmpegBinary = defaults.FFmpegBinary
	}
	if config.FFprobeBinary == "" {
		config.FFprobeBinary = defaults.FFprobeBinary
	}
	if config.FrameRate <= 0 {
		config.FrameRate = defaults.FrameRate
	}
	d := &FFmpegDemuxer{
		config: config,
		run:    runCommand,
		probe:  Probe,
		log:    log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Demux probes inputPath for audio, then extracts frames and audio into workDir concurrently.
func (d *FFmpegDemuxer) Demux(ctx context.Context, inputPath, workDir string) (*DemuxResult, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	result := &DemuxResult{FrameDir: filepath.Join(workDir, frameDirName)}
	if err := os.MkdirAll(result.FrameDir, 0o700); err != nil {
		return nil, &DemuxError{Stage: "frames", Err: err}
	}

	probe, err := d.probe(ctx, d.config.FFprobeBinary, inputPath)
	if err != nil {
		d.log.Warnf("audio probe failed, continuing without audio: %v", err)
	} else {
		result.HasAudio = probe.HasAudio()
	}
	if result.HasAudio {
		result.AudioPath = filepath.Join(workDir, audioFileName)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := d.run(gctx, d.config.FFmpegBinary, d.frameArgs(inputPath, result.FrameDir)...); err != nil {
			return &DemuxError{Stage: "frames", Err: contextErr(gctx, err)}
		}
		return nil
	})
	if result.HasAudio {
		g.Go(func() error {
			if err := d.run(gctx, d.config.FFmpegBinary, d.audioArgs(inputPath, result.AudioPath)...); err != nil {
				return &DemuxError{Stage: "audio", Err: contextErr(gctx, err)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frames, err := ListFrames(result.FrameDir, d.config.FrameRate)
	if err != nil {
		return nil, &DemuxError{Stage: "frames", Err: err}
	}
	if len(frames) == 0 {
		return nil, &DemuxError{Stage: "frames", Err: ErrNoFrames}
	}
	result.Frames = frames
	d.log.Debugf("demuxed %d frames, audio=%t", len(frames), result.HasAudio)
	return result, nil
}

func (d *FFmpegDemuxer) frameArgs(inputPath, frameDir string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", inputPath,
		"-vf", "fps=" + strconv.FormatFloat(d.config.FrameRate, 'f', -1, 64)}
	if d.config.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(d.config.MaxFrames))
	}
	return append(args, filepath.Join(frameDir, framePrefix+"%06d"+frameSuffix))
}

func (d *FFmpegDemuxer) audioArgs(inputPath, audioPath string) []string {
	return []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", inputPath,
		"-vn", "-map", "0:a:0", "-q:a", "0", audioPath}
}

// ListFrames returns the extracted frames in dir ordered by sequence number.
// Files not produced by the extractor are ignored.
func ListFrames(dir string, frameRate float64) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameSuffix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, framePrefix), frameSuffix))
		if err != nil || index <= 0 {
			continue
		}
		frame := Frame{Index: index, Path: filepath.Join(dir, name)}
		if frameRate > 0 {
			frame.Timestamp = time.Duration(float64(index-1) / frameRate * float64(time.Second))
		}
		frames = append(frames, frame)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

// FramePath returns the conventional path of the frame with the given sequence number.
func FramePath(frameDir string, index int) string {
	return filepath.Join(frameDir, fmt.Sprintf("%s%06d%s", framePrefix, index, frameSuffix))
}

func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	return nil
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
