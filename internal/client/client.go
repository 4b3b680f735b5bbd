package client

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/handiism/songmesh/internal/audio"
	"github.com/handiism/songmesh/internal/config"
	songhttp "github.com/handiism/songmesh/internal/http"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/songtitle"
)

// Default request budgets.
const (
	DefaultFileStoringTimeout     = 11 * time.Minute
	DefaultFileGettingTimeout     = 5 * time.Minute
	DefaultFileLinkGettingTimeout = 30 * time.Second
	DefaultFileRemovalTimeout     = 30 * time.Second
)

// Options configures a Client. Zero durations take the defaults.
type Options struct {
	FileStoringTimeout     time.Duration
	FileGettingTimeout     time.Duration
	FileLinkGettingTimeout time.Duration
	FileRemovalTimeout     time.Duration

	UserAgent string

	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64

	// Transport overrides the HTTP transport, mainly for tests.
	Transport *songhttp.Client
}

// Client talks to one node of the network.
//
// Title-addressed calls validate the title before sending anything, so
// an InvalidTitle error always means no request was made.
type Client struct {
	transport *songhttp.Client
	codec     *audio.Codec
	links     song.Links
	opts      Options
}

// CallOption adjusts a single call.
type CallOption func(*callConfig)

type callConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the call's overall budget.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

func applyCallOptions(def time.Duration, opts []CallOption) callConfig {
	cfg := callConfig{timeout: def}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New creates a client for the node at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.FileStoringTimeout <= 0 {
		opts.FileStoringTimeout = DefaultFileStoringTimeout
	}
	if opts.FileGettingTimeout <= 0 {
		opts.FileGettingTimeout = DefaultFileGettingTimeout
	}
	if opts.FileLinkGettingTimeout <= 0 {
		opts.FileLinkGettingTimeout = DefaultFileLinkGettingTimeout
	}
	if opts.FileRemovalTimeout <= 0 {
		opts.FileRemovalTimeout = DefaultFileRemovalTimeout
	}

	transport := opts.Transport
	if transport == nil {
		httpOpts := []songhttp.Option{
			songhttp.WithBaseURL(baseURL),
			songhttp.WithRateLimit(opts.RateLimit, 1),
		}
		if opts.UserAgent != "" {
			httpOpts = append(httpOpts, songhttp.WithUserAgent(opts.UserAgent))
		}
		transport = songhttp.NewClient(httpOpts...)
	}

	return &Client{
		transport: transport,
		codec:     audio.NewCodec(),
		links:     song.NewLinks(transport.BaseURL()),
		opts:      opts,
	}
}

// Options returns the effective options.
func (c *Client) Options() Options {
	return c.opts
}

// Transport returns the HTTP transport shared by every call.
func (c *Client) Transport() *songhttp.Client {
	return c.transport
}

// GetSongInfo returns every node's record for title, strongest first.
func (c *Client) GetSongInfo(ctx context.Context, title string, opts ...CallOption) ([]model.SongInfo, error) {
	if err := songtitle.Validate(title); err != nil {
		return nil, err
	}
	cfg := applyCallOptions(c.opts.FileLinkGettingTimeout, opts)

	var out song.InfoResponse
	if err := c.transport.PostJSON(ctx, song.ClientGetSongInfoPath, song.TitleRequest{Title: title}, &out, cfg.timeout); err != nil {
		return nil, err
	}
	return out.Info, nil
}

// GetSong returns the merged record for title, or nil when no node has it.
func (c *Client) GetSong(ctx context.Context, title string, opts ...CallOption) (*model.Song, error) {
	info, err := c.GetSongInfo(ctx, title, opts...)
	if err != nil {
		return nil, err
	}
	return song.Merge(info), nil
}

// GetSongLink returns a concrete link of the given type, or "" when no
// node has the file.
func (c *Client) GetSongLink(ctx context.Context, title string, typ model.LinkType, opts ...CallOption) (string, error) {
	if err := validate(title, typ); err != nil {
		return "", err
	}
	cfg := applyCallOptions(c.opts.FileLinkGettingTimeout, opts)
	return c.songLink(ctx, title, typ, cfg.timeout)
}

// GetSongAudioLink is GetSongLink for audio.
func (c *Client) GetSongAudioLink(ctx context.Context, title string, opts ...CallOption) (string, error) {
	return c.GetSongLink(ctx, title, model.LinkAudio, opts...)
}

// GetSongCoverLink is GetSongLink for the cover.
func (c *Client) GetSongCoverLink(ctx context.Context, title string, opts ...CallOption) (string, error) {
	return c.GetSongLink(ctx, title, model.LinkCover, opts...)
}

// GetSongToWriter streams the file of the given type into w.
//
// The whole call is bounded by the file getting timeout. The link lookup
// gets at most the link timeout out of it and the transfer gets what is
// left. A lookup that yields no link fails with LinkNotFound and nothing
// is transferred.
func (c *Client) GetSongToWriter(ctx context.Context, title string, typ model.LinkType, w io.Writer, onProgress func(written, total int64), opts ...CallOption) error {
	if err := validate(title, typ); err != nil {
		return err
	}
	cfg := applyCallOptions(c.opts.FileGettingTimeout, opts)
	timer := songhttp.RequestTimer(cfg.timeout)

	link, err := c.songLink(ctx, title, typ, timer(c.opts.FileLinkGettingTimeout))
	if err != nil {
		return err
	}
	if link == "" {
		return songerr.LinkNotFound(title)
	}

	left := timer()
	if left <= 0 {
		return songerr.Timeout("transfer", songhttp.ErrBudgetExhausted)
	}
	ctx, cancel := context.WithTimeout(ctx, left)
	defer cancel()

	return songerr.NormalizeTimeout(c.transport.Download(ctx, link, w, onProgress), "transfer")
}

// GetSongToBuffer returns the file of the given type in memory.
func (c *Client) GetSongToBuffer(ctx context.Context, title string, typ model.LinkType, opts ...CallOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.GetSongToWriter(ctx, title, typ, &buf, nil, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetSongAudioToBuffer is GetSongToBuffer for audio.
func (c *Client) GetSongAudioToBuffer(ctx context.Context, title string, opts ...CallOption) ([]byte, error) {
	return c.GetSongToBuffer(ctx, title, model.LinkAudio, opts...)
}

// GetSongCoverToBuffer is GetSongToBuffer for the cover.
func (c *Client) GetSongCoverToBuffer(ctx context.Context, title string, opts ...CallOption) ([]byte, error) {
	return c.GetSongToBuffer(ctx, title, model.LinkCover, opts...)
}

// GetSongToPath writes the file of the given type to path. The file is
// only created once a link is known, and removed if the transfer fails.
func (c *Client) GetSongToPath(ctx context.Context, title, path string, typ model.LinkType, opts ...CallOption) error {
	if err := validate(title, typ); err != nil {
		return err
	}

	pw := &lazyFile{path: path}
	err := c.GetSongToWriter(ctx, title, typ, pw, nil, opts...)
	if err == nil && pw.file == nil {
		_, err = pw.Write(nil)
	}
	if closeErr := pw.Close(); err == nil {
		err = closeErr
	}
	if err != nil && pw.file != nil {
		os.Remove(path)
	}
	return err
}

// GetSongAudioToPath is GetSongToPath for audio.
func (c *Client) GetSongAudioToPath(ctx context.Context, title, path string, opts ...CallOption) error {
	return c.GetSongToPath(ctx, title, path, model.LinkAudio, opts...)
}

// GetSongCoverToPath is GetSongToPath for the cover.
func (c *Client) GetSongCoverToPath(ctx context.Context, title, path string, opts ...CallOption) error {
	return c.GetSongToPath(ctx, title, path, model.LinkCover, opts...)
}

// AddSong uploads an MP3 file. The tag title is validated before anything
// is sent.
func (c *Client) AddSong(ctx context.Context, data []byte, opts ...CallOption) (*model.StoreResult, error) {
	tags, err := c.codec.ReadTags(data)
	if err != nil {
		return nil, err
	}
	title := tags.FullTitle()
	if title == "" {
		title = tags.Text(model.FrameTitle)
	}
	if err := songtitle.Validate(title); err != nil {
		return nil, err
	}

	info, err := c.codec.Probe(data)
	if err != nil {
		return nil, err
	}

	cfg := applyCallOptions(c.opts.FileStoringTimeout, opts)
	var out model.StoreResult
	err = c.transport.PostMultipart(ctx, song.ClientAddSongPath, song.UploadField, info.FileName(), info.MIMEType,
		bytes.NewReader(data), &out, cfg.timeout)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddSongFile reads path and uploads it.
func (c *Client) AddSongFile(ctx context.Context, path string, opts ...CallOption) (*model.StoreResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.AddSong(ctx, data, opts...)
}

// RemoveSong removes title from every node and reports whether any copy
// was removed.
func (c *Client) RemoveSong(ctx context.Context, title string, opts ...CallOption) (bool, error) {
	removed, err := c.RemoveSongCount(ctx, title, opts...)
	return removed > 0, err
}

// RemoveSongCount is RemoveSong reporting the number of removed copies.
func (c *Client) RemoveSongCount(ctx context.Context, title string, opts ...CallOption) (int, error) {
	if err := songtitle.Validate(title); err != nil {
		return 0, err
	}
	cfg := applyCallOptions(c.opts.FileRemovalTimeout, opts)

	var out song.RemoveResponse
	if err := c.transport.PostJSON(ctx, song.ClientRemoveSongPath, song.TitleRequest{Title: title}, &out, cfg.timeout); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// CreateRequestedSongLink returns a deferred link that resolves title when
// opened. It makes no request. typ must be audio or cover.
func (c *Client) CreateRequestedSongLink(title string, typ model.LinkType) string {
	return c.links.DeferredLink(title, typ)
}

// CreateRequestedSongAudioLink is CreateRequestedSongLink for audio.
func (c *Client) CreateRequestedSongAudioLink(title string) string {
	return c.CreateRequestedSongLink(title, model.LinkAudio)
}

// CreateRequestedSongCoverLink is CreateRequestedSongLink for the cover.
func (c *Client) CreateRequestedSongCoverLink(title string) string {
	return c.CreateRequestedSongLink(title, model.LinkCover)
}

func (c *Client) songLink(ctx context.Context, title string, typ model.LinkType, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", songerr.Timeout("link lookup", songhttp.ErrBudgetExhausted)
	}
	var out song.LinkResponse
	err := c.transport.PostJSON(ctx, song.ClientGetSongLinkPath, song.LinkRequest{Title: title, Type: typ}, &out, timeout)
	if err != nil {
		return "", err
	}
	return out.Link, nil
}

func validate(title string, typ model.LinkType) error {
	if err := songtitle.Validate(title); err != nil {
		return err
	}
	if _, err := model.ParseLinkType(string(typ)); err != nil {
		return err
	}
	return nil
}

// lazyFile creates its file on first write.
type lazyFile struct {
	path string
	file *os.File
}

func (f *lazyFile) Write(p []byte) (int, error) {
	if f.file == nil {
		file, err := os.Create(f.path)
		if err != nil {
			return 0, err
		}
		f.file = file
	}
	return f.file.Write(p)
}

func (f *lazyFile) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// NewFromSettings creates a Client for the node at s.Client.Address.
func NewFromSettings(s *config.Settings) *Client {
	return New(s.Client.Address, Options{
		FileStoringTimeout:     s.Client.FileStoringTimeout.Std(),
		FileGettingTimeout:     s.Client.FileGettingTimeout.Std(),
		FileLinkGettingTimeout: s.Client.FileLinkGettingTimeout.Std(),
		FileRemovalTimeout:     s.Client.FileRemovalTimeout.Std(),
		UserAgent:              s.Client.UserAgent,
	})
}
