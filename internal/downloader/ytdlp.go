package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

// YtDlpConfig is the fixed identity every primary backend call runs with.
type YtDlpConfig struct {
	Binary        string
	WorkDir       string
	CookieFile    string
	UserAgent     string
	PlayerClients []string
}

// YtDlpBackend is the primary backend: yt-dlp talking to the origin directly.
type YtDlpBackend struct {
	cfg    YtDlpConfig
	next   atomic.Uint32
	logger *zap.Logger

	exec func(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error)
}

func NewYtDlpBackend(cfg YtDlpConfig, logger *zap.Logger) *YtDlpBackend {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.PlayerClients = append([]string(nil), cfg.PlayerClients...)
	return &YtDlpBackend{
		cfg:    cfg,
		logger: logger.Named("ytdlp"),
		exec:   runCommand,
	}
}

func runCommand(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error) {
	return cmd.Run(ctx, url)
}

// Extract downloads req with the strategy's filter and returns the file it produced.
func (b *YtDlpBackend) Extract(ctx context.Context, req Request, s Strategy) (string, error) {
	clients := b.rotateClients()
	cmd := b.command(req, s, clients)

	b.logger.Debug("running yt-dlp",
		zap.String("video_id", req.VideoID),
		zap.String("format", s.Filter),
		zap.Strings("player_clients", clients),
	)

	res, err := b.exec(ctx, cmd, req.URL)
	if err != nil {
		var stderr string
		if res != nil {
			stderr = res.Stderr
		}
		return "", classifyYtDlpError(stderr, err)
	}

	return locateArtifact(b.cfg.WorkDir, req.VideoID, s.Container)
}

func (b *YtDlpBackend) command(req Request, s Strategy, clients []string) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(b.cfg.Binary).
		NoPlaylist().
		NoProgress().
		Output(filepath.Join(b.cfg.WorkDir, req.VideoID+".%(ext)s")).
		Format(s.Filter)

	if b.cfg.CookieFile != "" {
		cmd = cmd.Cookies(b.cfg.CookieFile)
	}
	if b.cfg.UserAgent != "" {
		cmd = cmd.UserAgent(b.cfg.UserAgent)
	}
	if len(clients) > 0 {
		cmd = cmd.ExtractorArgs("youtube:player_client=" + strings.Join(clients, ","))
	}
	if s.Merge {
		cmd = cmd.MergeOutputFormat(s.Container)
	}
	if s.Transcode {
		cmd = cmd.ExtractAudio().AudioFormat(s.Container)
	}
	return cmd
}

// rotateClients returns the persona pool starting one further along on each call.
func (b *YtDlpBackend) rotateClients() []string {
	n := len(b.cfg.PlayerClients)
	if n == 0 {
		return nil
	}
	start := int(b.next.Add(1)-1) % n
	out := make([]string, 0, n)
	out = append(out, b.cfg.PlayerClients[start:]...)
	return append(out, b.cfg.PlayerClients[:start]...)
}

var (
	formatUnavailableMarkers = []string{
		"requested format is not available",
		"no video formats found",
	}
	blockedMarkers = []string{
		"sign in to confirm",
		"not a bot",
		"http error 403",
		"http error 429",
		"unable to download webpage",
		"unable to download api page",
		"login_required",
		"page needs to be reloaded",
	}
)

func classifyYtDlpError(stderr string, err error) error {
	text := strings.ToLower(stderr + "\n" + err.Error())
	for _, m := range formatUnavailableMarkers {
		if strings.Contains(text, m) {
			return fmt.Errorf("yt-dlp: %w", ErrFormatUnavailable)
		}
	}
	for _, m := range blockedMarkers {
		if strings.Contains(text, m) {
			return fmt.Errorf("yt-dlp: %s: %w", tail(lastLine(stderr), maxToolOutput), ErrBackendBlocked)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("yt-dlp timed out: %w", ErrBackendBlocked)
	}
	detail := tail(stderr, maxToolOutput)
	if detail == "" {
		return &BackendError{Backend: "yt-dlp", Err: err}
	}
	return &BackendError{Backend: "yt-dlp", Err: fmt.Errorf("%w: %s", err, detail)}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
