package downloader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor plays the primary backend. Strategies without a scripted
// answer report the format as unavailable.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]func(req Request, s Strategy) (string, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, req Request, s Strategy) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, s.Name)
	answer := f.answers[s.Name]
	f.mu.Unlock()
	if answer == nil {
		return "", ErrFormatUnavailable
	}
	return answer(req, s)
}

// fakeSource lists fixed descriptors and serves a fixed body.
type fakeSource struct {
	name        string
	descriptors []StreamDescriptor
	listErr     error
	body        string
	listed      int
	opened      []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ListStreams(ctx context.Context, videoID string) ([]StreamDescriptor, error) {
	f.listed++
	return f.descriptors, f.listErr
}

func (f *fakeSource) OpenStream(ctx context.Context, videoID string, d StreamDescriptor) (io.ReadCloser, error) {
	f.opened = append(f.opened, d.FormatID)
	return io.NopCloser(strings.NewReader(f.body)), nil
}

// fakeTranscoder writes a small output file and remembers its inputs.
type fakeTranscoder struct {
	inputs []string
	err    error
}

func (f *fakeTranscoder) Transcode(ctx context.Context, input, output string) error {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(output, []byte("ID3"), 0644)
}

func writeFile(t *testing.T, path string, size int64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func producing(t *testing.T, dir, ext string, size int64) func(Request, Strategy) (string, error) {
	return func(req Request, s Strategy) (string, error) {
		path := filepath.Join(dir, req.VideoID+"."+ext)
		writeFile(t, path, size)
		return path, nil
	}
}

func newTestEngine(dir string, primary Extractor, embedded, relays StreamSource, tr Transcoder) *Engine {
	return NewEngine(primary, embedded, relays, NewFetcher(dir, tr, 0, nil), dir, nil)
}

func mustRequest(t *testing.T, url, quality string) Request {
	t.Helper()
	req, err := NewRequest(url, quality)
	require.NoError(t, err)
	return req
}

func TestStrategies_Order(t *testing.T) {
	var names []string
	for _, s := range Strategies(QualityMedium) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"primary-single-mp4", "primary-single", "primary-merge", "embedded-combined", "relay-combined"}, names)

	video := Strategies(QualityMedium)
	assert.Equal(t, "best[height<=480][ext=mp4]", video[0].Filter)
	assert.Equal(t, "bestvideo[height<=480]+bestaudio", video[2].Filter)
	for i, s := range video {
		assert.Equal(t, i == 2, s.Merge, "only the merge strategy muxes: %s", s.Name)
		assert.False(t, s.Transcode)
	}

	for _, s := range Strategies(QualityAudio) {
		assert.True(t, s.Transcode, s.Name)
		assert.Equal(t, "mp3", s.Container)
	}
}

func TestEngine_RetryLaw(t *testing.T) {
	dir := t.TempDir()
	primary := &fakeExtractor{}
	embedded := &fakeSource{name: "embedded", listErr: ErrBackendBlocked}
	relays := &fakeSource{name: "relay", descriptors: []StreamDescriptor{combined("18", 360)}, body: "video"}

	result, err := newTestEngine(dir, primary, embedded, relays, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "480"))
	require.NoError(t, err)

	assert.Equal(t, []string{"primary-single-mp4", "primary-single", "primary-merge"}, primary.calls)
	assert.Equal(t, 1, embedded.listed)
	assert.Equal(t, []string{"18"}, relays.opened)
	assert.Equal(t, "relay-combined", result.Strategy)
	assert.Equal(t, filepath.Join(dir, "abc12345678.mp4"), result.Path)
	assert.Equal(t, int64(len("video")), result.Size)
	assert.Equal(t, MediaVideo, result.Kind)
}

func TestEngine_FailFastLaw(t *testing.T) {
	dir := t.TempDir()
	primary := &fakeExtractor{answers: map[string]func(Request, Strategy) (string, error){
		"primary-single": func(Request, Strategy) (string, error) {
			return "", &BackendError{Backend: "yt-dlp", Err: errors.New("exit status 1: bad cookies file")}
		},
	}}
	relays := &fakeSource{name: "relay"}

	_, err := newTestEngine(dir, primary, nil, relays, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "720"))
	require.Error(t, err)

	assert.Equal(t, []string{"primary-single-mp4", "primary-single"}, primary.calls)
	assert.Zero(t, relays.listed, "no strategy may run after a terminal failure")

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	var strategyErr *StrategyError
	require.ErrorAs(t, err, &strategyErr)
	assert.Equal(t, "primary-single", strategyErr.Strategy)
}

func TestEngine_AllStrategiesFail(t *testing.T) {
	dir := t.TempDir()
	relays := &fakeSource{name: "relay", listErr: &AllRelaysExhaustedError{Tried: 3, Last: errors.New("status 503")}}

	_, err := newTestEngine(dir, &fakeExtractor{}, nil, relays, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "480"))
	require.Error(t, err)

	var exhausted *AllRelaysExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, err.Error(), "relay-combined")
	assert.Contains(t, err.Error(), "status 503")
}

func TestEngine_LastStrategyFormatUnavailable(t *testing.T) {
	dir := t.TempDir()
	relays := &fakeSource{name: "relay", descriptors: []StreamDescriptor{videoOnly("137", 480)}}

	_, err := newTestEngine(dir, &fakeExtractor{}, nil, relays, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "480"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStream)
	assert.Contains(t, err.Error(), "all strategies failed")
}

func TestEngine_MergeSucceedsAfterTwoUnavailable(t *testing.T) {
	dir := t.TempDir()
	primary := &fakeExtractor{answers: map[string]func(Request, Strategy) (string, error){
		"primary-merge": producing(t, dir, "mp4", 40<<20),
	}}

	result, err := newTestEngine(dir, primary, nil, nil, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "480"))
	require.NoError(t, err)

	assert.Equal(t, []string{"primary-single-mp4", "primary-single", "primary-merge"}, primary.calls)
	assert.Equal(t, "primary-merge", result.Strategy)
	assert.Equal(t, int64(40<<20), result.Size)
}

func TestEngine_AudioAlreadyMP3IsNotTranscoded(t *testing.T) {
	dir := t.TempDir()
	primary := &fakeExtractor{answers: map[string]func(Request, Strategy) (string, error){
		"primary-audio": producing(t, dir, "mp3", 1024),
	}}
	tr := &fakeTranscoder{}

	result, err := newTestEngine(dir, primary, nil, nil, tr).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "mp3"))
	require.NoError(t, err)

	assert.Empty(t, tr.inputs, "an mp3 artifact must not be transcoded again")
	assert.Equal(t, filepath.Join(dir, "abc12345678.mp3"), result.Path)
	assert.Equal(t, MediaAudio, result.Kind)
}

func TestEngine_AudioFromEmbeddedIsTranscoded(t *testing.T) {
	dir := t.TempDir()
	primary := &fakeExtractor{answers: map[string]func(Request, Strategy) (string, error){
		"primary-audio": func(Request, Strategy) (string, error) {
			return "", ErrBackendBlocked
		},
	}}
	embedded := &fakeSource{
		name:        "embedded",
		descriptors: []StreamDescriptor{videoOnly("137", 1080), audioOnly("139", 48000), audioOnly("140", 128000)},
		body:        "aac",
	}
	tr := &fakeTranscoder{}

	result, err := newTestEngine(dir, primary, embedded, nil, tr).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "mp3"))
	require.NoError(t, err)

	assert.Equal(t, []string{"140"}, embedded.opened)
	assert.Equal(t, []string{filepath.Join(dir, "abc12345678.m4a")}, tr.inputs)
	assert.Equal(t, filepath.Join(dir, "abc12345678.mp3"), result.Path)
	assert.NoFileExists(t, filepath.Join(dir, "abc12345678.m4a"), "intermediate must be removed")
}

func TestEngine_TranscodeFailureIsTerminal(t *testing.T) {
	dir := t.TempDir()
	embedded := &fakeSource{name: "embedded", descriptors: []StreamDescriptor{audioOnly("140", 128000)}, body: "aac"}
	relays := &fakeSource{name: "relay"}
	tr := &fakeTranscoder{err: &TranscodeError{Output: "Invalid data found", Err: errors.New("exit status 1")}}

	_, err := newTestEngine(dir, nil, embedded, relays, tr).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "mp3"))

	var transcodeErr *TranscodeError
	require.ErrorAs(t, err, &transcodeErr)
	assert.Zero(t, relays.listed)

	leftovers, _ := filepath.Glob(filepath.Join(dir, "abc12345678.*"))
	assert.Empty(t, leftovers)
}

func TestEngine_RemovesLeftoversBetweenStrategies(t *testing.T) {
	dir := t.TempDir()
	partial := filepath.Join(dir, "abc12345678.f137.mp4.part")
	primary := &fakeExtractor{answers: map[string]func(Request, Strategy) (string, error){
		"primary-single-mp4": func(Request, Strategy) (string, error) {
			writeFile(t, partial, 10)
			return "", ErrFormatUnavailable
		},
		"primary-single": func(Request, Strategy) (string, error) {
			if _, err := os.Stat(partial); err == nil {
				return "", errors.New("leftover from previous strategy")
			}
			return producing(t, dir, "webm", 5)(Request{VideoID: "abc12345678"}, Strategy{})
		},
	}}

	result, err := newTestEngine(dir, primary, nil, nil, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "480"))
	require.NoError(t, err)
	assert.Equal(t, "primary-single", result.Strategy)
}

func TestEngine_DisabledBackendsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	relays := &fakeSource{name: "relay", descriptors: []StreamDescriptor{combined("22", 720)}, body: "v"}

	result, err := newTestEngine(dir, nil, nil, relays, nil).Acquire(context.Background(), mustRequest(t, "https://youtu.be/abc12345678", "720"))
	require.NoError(t, err)
	assert.Equal(t, "relay-combined", result.Strategy)
}

func TestEngine_CancelledContextStops(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeExtractor{answers: map[string]func(Request, Strategy) (string, error){
		"primary-single-mp4": func(Request, Strategy) (string, error) {
			cancel()
			return "", ErrBackendBlocked
		},
	}}

	_, err := newTestEngine(dir, primary, nil, nil, nil).Acquire(ctx, mustRequest(t, "https://youtu.be/abc12345678", "480"))

	require.Error(t, err)
	assert.Equal(t, []string{"primary-single-mp4"}, primary.calls)
}
