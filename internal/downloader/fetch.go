package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	chunkSize = 256 << 10

	// maxToolOutput bounds how much tool output ends up in an error message.
	maxToolOutput = 300

	DefaultStreamTimeout = 60 * time.Second
)

// Transcoder converts an input file to the output path's format.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// Fetcher materializes streams on disk and applies the audio transcode.
type Fetcher struct {
	workDir       string
	transcoder    Transcoder
	streamTimeout time.Duration
	logger        *zap.Logger
}

func NewFetcher(workDir string, transcoder Transcoder, streamTimeout time.Duration, logger *zap.Logger) *Fetcher {
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		workDir:       workDir,
		transcoder:    transcoder,
		streamTimeout: streamTimeout,
		logger:        logger.Named("fetch"),
	}
}

// FromStream copies the chosen stream to <workdir>/<id>.<ext> and finishes it.
func (f *Fetcher) FromStream(ctx context.Context, src StreamSource, videoID string, d StreamDescriptor, s Strategy) (string, error) {
	streamCtx, cancel := context.WithTimeout(ctx, f.streamTimeout)
	defer cancel()

	path, err := f.streamPath(videoID, d.Ext)
	if err != nil {
		return "", err
	}

	body, err := src.OpenStream(streamCtx, videoID, d)
	if err != nil {
		return "", err
	}
	defer body.Close()

	n, err := writeChunked(path, body)
	if err != nil {
		return "", &BackendError{Backend: src.Name(), Err: err}
	}
	f.logger.Debug("stream saved", zap.String("path", path), zap.String("size", humanize.IBytes(uint64(n))))

	return f.Finish(ctx, path, s)
}

// streamPath builds <workdir>/<id>.<ext> and refuses anything that would land
// outside workdir.
func (f *Fetcher) streamPath(videoID, ext string) (string, error) {
	if ext = cleanExt(ext); ext == "" {
		ext = "bin"
	}
	path := filepath.Join(f.workDir, videoID+"."+ext)
	if filepath.Dir(path) != filepath.Clean(f.workDir) {
		return "", fmt.Errorf("refusing to write %q outside %s", videoID+"."+ext, f.workDir)
	}
	return path, nil
}

// Finish transcodes path to the strategy's container when the strategy asks
// for it and the file is not already in that container. The pre-transcode
// file is removed whatever the outcome.
func (f *Fetcher) Finish(ctx context.Context, path string, s Strategy) (string, error) {
	if !s.Transcode || hasExt(path, s.Container) {
		return path, nil
	}
	defer os.Remove(path)

	if f.transcoder == nil {
		return "", fmt.Errorf("no transcoder configured for %s", s.Container)
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + s.Container
	f.logger.Info("transcoding", zap.String("input", path), zap.String("output", out))
	if err := f.transcoder.Transcode(ctx, path, out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

func writeChunked(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	// Hide ReaderFrom/WriterTo so the copy really goes through the fixed buffer.
	n, err := io.CopyBuffer(struct{ io.Writer }{file}, struct{ io.Reader }{r}, make([]byte, chunkSize))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return n, fmt.Errorf("failed to download stream: %w", err)
	}
	return n, nil
}

func hasExt(path, ext string) bool {
	return strings.EqualFold(strings.TrimPrefix(filepath.Ext(path), "."), ext)
}

// leftover suffixes written by yt-dlp while it works.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".info.json"}

// locateArtifact finds the file a backend produced for videoID. yt-dlp may
// change the extension after post-processing, so the name is matched by id.
func locateArtifact(dir, videoID, preferExt string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, globEscape(videoID)+".*"))
	if err != nil {
		return "", err
	}

	var found []string
	for _, m := range matches {
		partial := false
		for _, suffix := range partialSuffixes {
			if strings.HasSuffix(m, suffix) {
				partial = true
				break
			}
		}
		if !partial {
			found = append(found, m)
		}
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no file found for %s in %s", videoID, dir)
	}
	for _, m := range found {
		if hasExt(m, preferExt) {
			return m, nil
		}
	}
	return found[0], nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

// FFmpeg is the audio transcoder backed by the ffmpeg binary.
type FFmpeg struct {
	binary string
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, run: combinedOutput}
}

func (f *FFmpeg) Transcode(ctx context.Context, input, output string) error {
	out, err := f.run(ctx, f.binary, transcodeArgs(input, output)...)
	if err != nil {
		return &TranscodeError{Output: tail(string(out), maxToolOutput), Err: err}
	}
	return nil
}

func transcodeArgs(input, output string) []string {
	return []string{"-y", "-i", input, "-vn", "-ar", "44100", "-ac", "2", "-b:a", "192k", output}
}

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// tail keeps the last n runes of s.
func tail(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[len(r)-n:])
}
