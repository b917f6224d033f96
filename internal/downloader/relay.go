package downloader

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMetadataTimeout = 15 * time.Second

	// maxListingBytes caps how much of a relay's metadata response is read.
	maxListingBytes = 10 * 1024 * 1024

	browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"
)

// NewHTTPClient returns a client with TLS 1.2+ and bounded idle connections.
// Request deadlines come from the caller's context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}
}

// flexInt decodes numbers that some relays send as JSON strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*f = flexInt(n)
	return nil
}

// relayVideo is the subset of /api/v1/videos/<id> we read.
type relayVideo struct {
	Title           string        `json:"title"`
	AdaptiveFormats []relayFormat `json:"adaptiveFormats"`
	FormatStreams   []relayFormat `json:"formatStreams"`
}

type relayFormat struct {
	Itag         flexInt `json:"itag"`
	Type         string  `json:"type"`
	Bitrate      flexInt `json:"bitrate"`
	URL          string  `json:"url"`
	Container    string  `json:"container"`
	Resolution   string  `json:"resolution"`
	QualityLabel string  `json:"qualityLabel"`
}

// FormatListing is one relay's answer, adaptive and combined streams kept apart.
type FormatListing struct {
	Relay    string
	Title    string
	Adaptive []StreamDescriptor
	Combined []StreamDescriptor
}

// Descriptors flattens the listing, combined streams first.
func (l *FormatListing) Descriptors() []StreamDescriptor {
	out := make([]StreamDescriptor, 0, len(l.Combined)+len(l.Adaptive))
	out = append(out, l.Combined...)
	return append(out, l.Adaptive...)
}

func (l *FormatListing) empty() bool {
	return len(l.Adaptive) == 0 && len(l.Combined) == 0
}

// RelayPool asks Invidious-compatible relays, in priority order, for stream URLs.
type RelayPool struct {
	relays          []string
	client          *http.Client
	metadataTimeout time.Duration
	logger          *zap.Logger
}

func NewRelayPool(relays []string, client *http.Client, metadataTimeout time.Duration, logger *zap.Logger) *RelayPool {
	if client == nil {
		client = NewHTTPClient()
	}
	if metadataTimeout <= 0 {
		metadataTimeout = DefaultMetadataTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaned := make([]string, 0, len(relays))
	for _, r := range relays {
		if r = strings.TrimRight(strings.TrimSpace(r), "/"); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &RelayPool{
		relays:          cleaned,
		client:          client,
		metadataTimeout: metadataTimeout,
		logger:          logger.Named("relay"),
	}
}

func (p *RelayPool) Name() string { return "relay" }

// ListFormats returns the first usable listing. Relays after the winner are not contacted.
func (p *RelayPool) ListFormats(ctx context.Context, videoID string) (*FormatListing, error) {
	var lastErr error
	for _, relay := range p.relays {
		listing, err := p.fetchListing(ctx, relay, videoID)
		if err == nil {
			p.logger.Info("relay answered",
				zap.String("relay", relay),
				zap.Int("combined", len(listing.Combined)),
				zap.Int("adaptive", len(listing.Adaptive)),
			)
			return listing, nil
		}
		lastErr = err
		p.logger.Warn("relay failed", zap.String("relay", relay), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no relays configured")
	}
	return nil, &AllRelaysExhaustedError{Tried: len(p.relays), Last: lastErr}
}

func (p *RelayPool) ListStreams(ctx context.Context, videoID string) ([]StreamDescriptor, error) {
	listing, err := p.ListFormats(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return listing.Descriptors(), nil
}

// OpenStream fetches the descriptor's URL. The caller's context bounds the transfer.
func (p *RelayPool) OpenStream(ctx context.Context, videoID string, d StreamDescriptor) (io.ReadCloser, error) {
	if d.URL == "" {
		return nil, fmt.Errorf("relay stream %s has no url", d.FormatID)
	}
	resp, err := p.get(ctx, d.URL, "*/*")
	if err != nil {
		return nil, &RelayError{Relay: hostOf(d.URL), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &RelayError{Relay: hostOf(d.URL), Status: resp.StatusCode, Err: errors.New("stream request rejected")}
	}
	return resp.Body, nil
}

func (p *RelayPool) fetchListing(ctx context.Context, relay, videoID string) (*FormatListing, error) {
	ctx, cancel := context.WithTimeout(ctx, p.metadataTimeout)
	defer cancel()

	resp, err := p.get(ctx, relay+"/api/v1/videos/"+videoID, "application/json")
	if err != nil {
		return nil, &RelayError{Relay: relay, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RelayError{Relay: relay, Status: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, &RelayError{Relay: relay, Err: fmt.Errorf("reading response: %w", err)}
	}

	var video relayVideo
	if err := json.Unmarshal(body, &video); err != nil {
		return nil, &RelayError{Relay: relay, Err: fmt.Errorf("parsing response: %w", err)}
	}

	listing := buildListing(relay, &video)
	if listing.empty() {
		return nil, &RelayError{Relay: relay, Err: errors.New("listing has no streams")}
	}
	return listing, nil
}

func (p *RelayPool) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	return p.client.Do(req)
}

func buildListing(relay string, video *relayVideo) *FormatListing {
	listing := &FormatListing{Relay: relay, Title: video.Title}

	for _, f := range video.FormatStreams {
		if f.URL == "" {
			continue
		}
		listing.Combined = append(listing.Combined, relayDescriptor(f, StreamCombined))
	}
	for _, f := range video.AdaptiveFormats {
		if f.URL == "" {
			continue
		}
		kind := kindFromMime(f.Type)
		if kind == StreamCombined {
			kind = StreamVideoOnly
		}
		listing.Adaptive = append(listing.Adaptive, relayDescriptor(f, kind))
	}
	return listing
}

func relayDescriptor(f relayFormat, kind StreamKind) StreamDescriptor {
	ext := extFromMime(f.Type)
	if container := cleanExt(f.Container); container != "" && kind != StreamAudioOnly {
		ext = container
	}

	var height int
	if kind != StreamAudioOnly {
		height = parseQualityNum(f.Resolution)
		if height == 0 {
			height = parseQualityNum(f.QualityLabel)
		}
	}

	return StreamDescriptor{
		FormatID: strconv.Itoa(int(f.Itag)),
		Ext:      ext,
		Height:   height,
		Bitrate:  int(f.Bitrate),
		Kind:     kind,
		URL:      f.URL,
	}
}

func hostOf(rawURL string) string {
	rest := rawURL
	if _, after, ok := strings.Cut(rawURL, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}
