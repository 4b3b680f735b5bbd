package download

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/songmesh/internal/audio"
	"github.com/handiism/songmesh/internal/client"
	"github.com/handiism/songmesh/internal/config"
	songhttp "github.com/handiism/songmesh/internal/http"
	ioutils "github.com/handiism/songmesh/internal/io"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/songtitle"
)

// Manager coordinates batch downloads of songs from the network.
type Manager struct {
	settings   *config.Settings
	pathCfg    *model.PathConfig
	client     *client.Client
	httpClient *songhttp.Client
	playlist   *audio.PlaylistCreator

	songs           []*model.Song
	saved           map[*model.Song]string
	totalBytes      int64
	receivedBytes   int64
	totalFiles      int32
	downloadedFiles int32

	onProgress func(model.ProgressEvent)
	mu         sync.Mutex
}

// NewManager creates a new download Manager resolving songs through c.
func NewManager(settings *config.Settings, c *client.Client, onProgress func(model.ProgressEvent)) *Manager {
	pathCfg := settings.ToPathConfig()

	return &Manager{
		settings: settings,
		pathCfg:  pathCfg,
		client:   c,
		httpClient: c.Transport(),
		playlist:   audio.NewPlaylistCreator(pathCfg.PlaylistFormat, settings.Download.M3UExtended),
		saved:      make(map[*model.Song]string),
		onProgress: onProgress,
	}
}

// SetDownloadsPath overrides the configured downloads path template.
func (m *Manager) SetDownloadsPath(dir string) {
	if dir != "" {
		m.pathCfg.DownloadsPath = dir
	}
}

// Initialize resolves every title in input, one per line.
//
// Invalid and unknown titles are reported and skipped.
func (m *Manager) Initialize(ctx context.Context, input string) error {
	for _, title := range ParseTitles(input) {
		if err := songtitle.Validate(title); err != nil {
			m.progress(model.ProgressEvent{Message: err.Error(), Level: model.LevelError})
			continue
		}

		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Resolving: %s", title), Level: model.LevelVerbose})
		s, err := m.client.GetSong(ctx, title)
		if err != nil {
			m.progress(model.ProgressEvent{Message: fmt.Sprintf("Error resolving %s: %v", title, err), Level: model.LevelError})
			continue
		}
		if s == nil || s.AudioLink == "" {
			m.progress(model.ProgressEvent{Message: fmt.Sprintf("Not found: %s", title), Level: model.LevelWarning})
			continue
		}

		m.songs = append(m.songs, s)
		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Found: %s", s.Title), Level: model.LevelInfo})
	}

	m.calculateTotals(ctx)
	return nil
}

// StartDownloads downloads every resolved song.
func (m *Manager) StartDownloads(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.settings.Download.MaxConcurrent))

	var successCount int32
	for _, s := range m.songs {
		g.Go(func() error {
			if err := m.downloadSong(ctx, s); err != nil {
				m.progress(model.ProgressEvent{Message: fmt.Sprintf("Error downloading %s: %v", s.Title, err), Level: model.LevelError})
				return nil // Continue with other songs
			}
			atomic.AddInt32(&successCount, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if m.settings.Download.CreatePlaylist && successCount > 0 {
		m.writePlaylist()
	}

	if int(successCount) == len(m.songs) {
		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Successfully downloaded %d songs", successCount), Level: model.LevelSuccess})
	} else {
		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Finished, %d of %d songs failed", len(m.songs)-int(successCount), len(m.songs)), Level: model.LevelWarning})
	}
	return nil
}

// Fetch resolves and downloads titles and returns the saved file paths.
// A non-empty dir replaces the configured downloads path.
func (m *Manager) Fetch(ctx context.Context, titles []string, dir string) ([]string, error) {
	m.SetDownloadsPath(dir)
	if err := m.Initialize(ctx, strings.Join(titles, "\n")); err != nil {
		return nil, err
	}
	if err := m.StartDownloads(ctx); err != nil {
		return nil, err
	}
	return m.SavedPaths(), nil
}

// SavedPaths returns the local paths written so far, in resolution order.
func (m *Manager) SavedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var paths []string
	for _, s := range m.songs {
		if p, ok := m.saved[s]; ok {
			paths = append(paths, p)
		}
	}
	return paths
}

// Songs returns the resolved songs.
func (m *Manager) Songs() []*model.Song {
	return m.songs
}

// GetProgress returns current download progress.
func (m *Manager) GetProgress() (received, total int64, filesReceived, filesTotal int32) {
	return atomic.LoadInt64(&m.receivedBytes), m.totalBytes,
		atomic.LoadInt32(&m.downloadedFiles), m.totalFiles
}

// ParseTitles splits input into trimmed, non-empty lines.
func ParseTitles(input string) []string {
	var titles []string
	for _, line := range strings.Split(input, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			titles = append(titles, line)
		}
	}
	return titles
}

func (m *Manager) calculateTotals(ctx context.Context) {
	for _, s := range m.songs {
		m.totalFiles++
		if size, err := m.fileSize(ctx, s.AudioLink); err == nil {
			m.totalBytes += size
		}
		if m.settings.Download.SaveCoverArtInFolder && s.HasCover() {
			m.totalFiles++
		}
	}
}

func (m *Manager) downloadSong(ctx context.Context, s *model.Song) error {
	path := s.LocalPath(m.pathCfg)
	if err := ioutils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	if m.skipExisting(ctx, s, path) {
		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Skipping existing: %s", filepath.Base(path)), Level: model.LevelVerbose})
	} else if err := m.downloadAudio(ctx, s, path); err != nil {
		return err
	}
	atomic.AddInt32(&m.downloadedFiles, 1)

	m.mu.Lock()
	m.saved[s] = path
	m.mu.Unlock()

	if m.settings.Download.SaveCoverArtInFolder && s.HasCover() {
		if err := m.downloadCover(ctx, s); err != nil {
			m.progress(model.ProgressEvent{Message: fmt.Sprintf("Error downloading cover for %s: %v", s.Title, err), Level: model.LevelWarning})
		}
	}

	m.progress(model.ProgressEvent{Message: fmt.Sprintf("Downloaded: %s", filepath.Base(path)), Level: model.LevelVerbose})
	return nil
}

// skipExisting reports whether path already holds a file of the expected size.
func (m *Manager) skipExisting(ctx context.Context, s *model.Song, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	expected, err := m.fileSize(ctx, s.AudioLink)
	return err == nil && expected == info.Size()
}

// fileSize asks for the size of link within the link lookup budget.
func (m *Manager) fileSize(ctx context.Context, link string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.client.Options().FileLinkGettingTimeout)
	defer cancel()
	size, err := m.httpClient.GetFileSize(ctx, link)
	return size, songerr.NormalizeTimeout(err, "size lookup")
}

// transfer runs one download attempt within the file getting budget.
func (m *Manager) transfer(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.client.Options().FileGettingTimeout)
	defer cancel()
	return songerr.NormalizeTimeout(fn(ctx), "transfer")
}

func (m *Manager) downloadAudio(ctx context.Context, s *model.Song, path string) error {
	var err error
	for tries := 0; tries <= m.settings.Download.MaxRetries; tries++ {
		var last int64
		err = m.transfer(ctx, func(ctx context.Context) error {
			return m.httpClient.DownloadFile(ctx, s.AudioLink, path, func(written, total int64) {
				atomic.AddInt64(&m.receivedBytes, written-last)
				last = written
			})
		})
		if err == nil {
			return nil
		}
		atomic.AddInt64(&m.receivedBytes, -last)
		if tries == m.settings.Download.MaxRetries || ctx.Err() != nil {
			break
		}
		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Retry %d/%d for %s", tries+1, m.settings.Download.MaxRetries, s.Title), Level: model.LevelWarning})
		m.waitForRetry(ctx, tries)
	}
	return err
}

func (m *Manager) downloadCover(ctx context.Context, s *model.Song) error {
	var (
		data []byte
		err  error
	)
	for tries := 0; tries <= m.settings.Download.MaxRetries; tries++ {
		err = m.transfer(ctx, func(ctx context.Context) error {
			var derr error
			data, derr = m.httpClient.DownloadBytes(ctx, s.CoverLink)
			return derr
		})
		if err == nil || tries == m.settings.Download.MaxRetries || ctx.Err() != nil {
			break
		}
		m.waitForRetry(ctx, tries)
	}
	if err != nil {
		return err
	}

	ext := ".jpg"
	if mime, err := ioutils.NewImageService().DetectCover(data); err == nil && mime == "image/png" {
		ext = ".png"
	}
	if err := ioutils.WriteFileAtomic(ctx, s.CoverPath(m.pathCfg, ext), data); err != nil {
		return err
	}
	atomic.AddInt32(&m.downloadedFiles, 1)
	return nil
}

func (m *Manager) writePlaylist() {
	dir := m.playlistDir()
	path := model.PlaylistPath(dir, m.pathCfg)

	m.mu.Lock()
	saved := make(map[*model.Song]string, len(m.saved))
	for s, p := range m.saved {
		saved[s] = p
	}
	m.mu.Unlock()

	content := m.playlist.WithLocator(func(s *model.Song) string {
		p, ok := saved[s]
		if !ok {
			return ""
		}
		if rel, err := filepath.Rel(dir, p); err == nil {
			return rel
		}
		return p
	}).CreatePlaylist(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), m.songs)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		m.progress(model.ProgressEvent{Message: fmt.Sprintf("Error creating playlist: %v", err), Level: model.LevelWarning})
		return
	}
	m.progress(model.ProgressEvent{Message: fmt.Sprintf("Created playlist %s", filepath.Base(path)), Level: model.LevelSuccess})
}

// playlistDir is the downloads path up to its first placeholder.
func (m *Manager) playlistDir() string {
	dir := m.pathCfg.DownloadsPath
	if i := strings.Index(dir, "{"); i >= 0 {
		dir = filepath.Dir(dir[:i] + "x")
	}
	return dir
}

func (m *Manager) waitForRetry(ctx context.Context, tries int) {
	cooldown := m.settings.Download.RetryCooldown * math.Pow(m.settings.Download.RetryExponent, float64(tries))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(cooldown * float64(time.Second))):
	}
}

func (m *Manager) progress(event model.ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
