package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Backend identifies where a strategy gets its streams from.
type Backend int

const (
	BackendPrimary Backend = iota
	BackendEmbedded
	BackendRelay
)

func (b Backend) String() string {
	switch b {
	case BackendEmbedded:
		return "embedded"
	case BackendRelay:
		return "relay"
	default:
		return "primary"
	}
}

// Strategy is one declarative attempt in the fallback chain.
type Strategy struct {
	Name    string
	Backend Backend
	// Filter is a yt-dlp format expression; only the primary backend reads it.
	Filter string
	// Merge means separate video and audio streams are muxed by the primary backend.
	Merge bool
	// Transcode means the artifact must be converted to Container if it isn't already.
	Transcode bool
	Container string
}

// Strategies returns the ordered chain for a quality. Cheapest and most
// compatible first, muxing last among the primary attempts, then the fallback
// backends.
func Strategies(q Quality) []Strategy {
	if q.Audio {
		return []Strategy{
			{Name: "primary-audio", Backend: BackendPrimary, Filter: "bestaudio/best", Transcode: true, Container: "mp3"},
			{Name: "embedded-audio", Backend: BackendEmbedded, Transcode: true, Container: "mp3"},
			{Name: "relay-audio", Backend: BackendRelay, Transcode: true, Container: "mp3"},
		}
	}
	h := q.Height
	return []Strategy{
		{Name: "primary-single-mp4", Backend: BackendPrimary, Filter: fmt.Sprintf("best[height<=%d][ext=mp4]", h), Container: "mp4"},
		{Name: "primary-single", Backend: BackendPrimary, Filter: fmt.Sprintf("best[height<=%d]", h), Container: "mp4"},
		{Name: "primary-merge", Backend: BackendPrimary, Filter: fmt.Sprintf("bestvideo[height<=%d]+bestaudio", h), Merge: true, Container: "mp4"},
		{Name: "embedded-combined", Backend: BackendEmbedded, Container: "mp4"},
		{Name: "relay-combined", Backend: BackendRelay, Container: "mp4"},
	}
}

// Extractor downloads a request itself and returns the artifact path.
type Extractor interface {
	Extract(ctx context.Context, req Request, s Strategy) (string, error)
}

// StreamSource lists stream descriptors and opens the chosen one.
type StreamSource interface {
	Name() string
	ListStreams(ctx context.Context, videoID string) ([]StreamDescriptor, error)
	OpenStream(ctx context.Context, videoID string, d StreamDescriptor) (io.ReadCloser, error)
}

// Engine runs the strategy chain for one request at a time. It keeps no
// per-request state, so one Engine serves concurrent requests.
type Engine struct {
	primary  Extractor
	embedded StreamSource
	relays   StreamSource
	fetcher  *Fetcher
	workDir  string
	logger   *zap.Logger

	strategies func(Quality) []Strategy
}

// NewEngine wires the backends. Nil sources are skipped as format-unavailable.
func NewEngine(primary Extractor, embedded, relays StreamSource, fetcher *Fetcher, workDir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		primary:    primary,
		embedded:   embedded,
		relays:     relays,
		fetcher:    fetcher,
		workDir:    workDir,
		logger:     logger.Named("engine"),
		strategies: Strategies,
	}
}

// Acquire walks the chain: success stops, recoverable errors advance, anything
// else stops with that error.
func (e *Engine) Acquire(ctx context.Context, req Request) (*AcquisitionResult, error) {
	if err := os.MkdirAll(e.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}

	chain := e.strategies(req.Quality)
	var lastErr error
	for i, s := range chain {
		log := e.logger.With(
			zap.String("video_id", req.VideoID),
			zap.String("strategy", s.Name),
			zap.Int("index", i),
		)
		log.Info("trying strategy")

		path, err := e.run(ctx, req, s)
		if err == nil {
			info, statErr := os.Stat(path)
			if statErr != nil {
				err = fmt.Errorf("artifact missing after download: %w", statErr)
			} else {
				log.Info("strategy succeeded", zap.String("path", path), zap.Int64("bytes", info.Size()))
				return &AcquisitionResult{
					Path:     path,
					Size:     info.Size(),
					Kind:     req.Quality.Kind(),
					Strategy: s.Name,
				}, nil
			}
		}

		lastErr = &StrategyError{Strategy: s.Name, Err: err}
		removeArtifacts(e.workDir, req.VideoID)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("download cancelled: %w", lastErr)
		}
		if !IsRecoverable(err) {
			log.Warn("strategy failed, giving up", zap.Error(err))
			return nil, lastErr
		}
		log.Info("strategy failed, trying next", zap.Error(err))
	}

	if lastErr == nil {
		lastErr = errors.New("no strategies configured")
	}
	return nil, fmt.Errorf("all strategies failed: %w", lastErr)
}

func (e *Engine) run(ctx context.Context, req Request, s Strategy) (string, error) {
	switch s.Backend {
	case BackendPrimary:
		if e.primary == nil {
			return "", fmt.Errorf("primary backend disabled: %w", ErrBackendBlocked)
		}
		path, err := e.primary.Extract(ctx, req, s)
		if err != nil {
			return "", err
		}
		return e.fetcher.Finish(ctx, path, s)
	case BackendEmbedded:
		return e.fromSource(ctx, e.embedded, req, s)
	case BackendRelay:
		return e.fromSource(ctx, e.relays, req, s)
	}
	return "", fmt.Errorf("unknown backend %d", s.Backend)
}

func (e *Engine) fromSource(ctx context.Context, src StreamSource, req Request, s Strategy) (string, error) {
	if src == nil {
		return "", fmt.Errorf("%s backend disabled: %w", s.Backend, ErrBackendBlocked)
	}
	descriptors, err := src.ListStreams(ctx, req.VideoID)
	if err != nil {
		return "", err
	}
	d, err := Select(descriptors, req.Quality)
	if err != nil {
		return "", err
	}
	e.logger.Debug("selected stream",
		zap.String("source", src.Name()),
		zap.String("format_id", d.FormatID),
		zap.String("ext", d.Ext),
		zap.Int("height", d.Height),
		zap.Int("bitrate", d.Bitrate),
	)
	return e.fetcher.FromStream(ctx, src, req.VideoID, d, s)
}

// removeArtifacts deletes whatever a failed strategy left behind for this id.
func removeArtifacts(dir, videoID string) {
	matches, _ := filepath.Glob(filepath.Join(dir, globEscape(videoID)+".*"))
	for _, m := range matches {
		os.Remove(m)
	}
}
