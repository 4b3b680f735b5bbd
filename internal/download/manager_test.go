package download

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/songmesh/internal/client"
	"github.com/handiism/songmesh/internal/config"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/testsupport"
)

// fakeNetwork answers song lookups for a fixed set of titles.
type fakeNetwork struct {
	srv      *httptest.Server
	audio    []byte
	cover    []byte
	failures atomic.Int32 // GET /file requests to fail before succeeding
	stall    atomic.Bool  // GET /file holds the connection open
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	n := &fakeNetwork{
		audio: testsupport.SongMP3(t, "Artist - Song"),
		cover: testsupport.PNG(t, 4, 4),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(song.ClientGetSongInfoPath, func(w http.ResponseWriter, r *http.Request) {
		var req song.TitleRequest
		json.NewDecoder(r.Body).Decode(&req)

		out := song.InfoResponse{Info: []model.SongInfo{}}
		if req.Title == "Artist - Song" {
			out.Info = append(out.Info, model.SongInfo{
				Title:     req.Title,
				FileHash:  "abc",
				Priority:  1,
				AudioLink: n.srv.URL + "/file/abc",
				CoverLink: n.srv.URL + "/cover/abc",
				Tags:      model.Tags{"TALB": model.TagValue{Text: "Album"}},
			})
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/file/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && n.stall.Load() {
			<-r.Context().Done()
			return
		}
		if r.Method == http.MethodGet && n.failures.Load() > 0 {
			n.failures.Add(-1)
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		http.ServeContent(w, r, "abc.mp3", time.Time{}, bytes.NewReader(n.audio))
	})
	mux.HandleFunc("/cover/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(n.cover)
	})

	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)
	return n
}

func testSettings(dir string) *config.Settings {
	s := config.DefaultSettings()
	s.Download.DownloadsPath = filepath.Join(dir, "{artist}")
	s.Download.FileNameFormat = "{title}.mp3"
	s.Download.CoverArtFileNameFormat = "cover"
	s.Download.PlaylistFileNameFormat = "playlist"
	s.Download.RetryCooldown = 0.001
	s.Download.RetryExponent = 1
	return s
}

type eventLog struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (l *eventLog) add(e model.ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) contains(level model.ProgressLevel, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (l *eventLog) count(level model.ProgressLevel) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Level == level {
			n++
		}
	}
	return n
}

func TestParseTitles(t *testing.T) {
	got := ParseTitles("  A - B \n\n\tC - D\n")
	want := []string{"A - B", "C - D"}
	if len(got) != len(want) {
		t.Fatalf("ParseTitles() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseTitles()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestManager_Fetch(t *testing.T) {
	net := newFakeNetwork(t)
	dir := t.TempDir()
	s := testSettings(dir)
	s.Download.SaveCoverArtInFolder = true
	s.Download.CreatePlaylist = true

	var log eventLog
	m := NewManager(s, client.New(net.srv.URL, client.Options{}), log.add)

	paths, err := m.Fetch(context.Background(), []string{"Artist - Song", "Nobody - Nothing", "bad title"}, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := filepath.Join(dir, "Artist", "Song.mp3")
	if len(paths) != 1 || paths[0] != want {
		t.Fatalf("Fetch() = %q, want [%q]", paths, want)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, net.audio) {
		t.Errorf("saved %d bytes, want %d", len(got), len(net.audio))
	}

	if _, err := os.Stat(filepath.Join(dir, "Artist", "cover.png")); err != nil {
		t.Errorf("cover not saved: %v", err)
	}

	playlist, err := os.ReadFile(filepath.Join(dir, "playlist.m3u"))
	if err != nil {
		t.Fatalf("playlist not written: %v", err)
	}
	if !strings.Contains(string(playlist), filepath.Join("Artist", "Song.mp3")) {
		t.Errorf("playlist = %q, want a relative entry for the song", playlist)
	}

	if n := log.count(model.LevelWarning); n != 1 {
		t.Errorf("warnings = %d, want 1 for the unknown title", n)
	}
	if n := log.count(model.LevelError); n != 1 {
		t.Errorf("errors = %d, want 1 for the invalid title", n)
	}

	received, total, files, totalFiles := m.GetProgress()
	if received != total || total != int64(len(net.audio)) {
		t.Errorf("bytes = %d/%d, want %d", received, total, len(net.audio))
	}
	if files != totalFiles || totalFiles != 2 {
		t.Errorf("files = %d/%d, want 2/2", files, totalFiles)
	}
}

func TestManager_Retries(t *testing.T) {
	net := newFakeNetwork(t)
	net.failures.Store(2)
	s := testSettings(t.TempDir())
	s.Download.MaxRetries = 3

	m := NewManager(s, client.New(net.srv.URL, client.Options{}), nil)
	paths, err := m.Fetch(context.Background(), []string{"Artist - Song"}, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("Fetch() = %q, want one path after retries", paths)
	}
	if n := net.failures.Load(); n != 0 {
		t.Errorf("failures left = %d, want 0", n)
	}
}

func TestManager_GivesUpAfterMaxRetries(t *testing.T) {
	net := newFakeNetwork(t)
	net.failures.Store(10)
	dir := t.TempDir()
	s := testSettings(dir)
	s.Download.MaxRetries = 1

	var log eventLog
	m := NewManager(s, client.New(net.srv.URL, client.Options{}), log.add)
	paths, err := m.Fetch(context.Background(), []string{"Artist - Song"}, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("Fetch() = %q, want nothing saved", paths)
	}
	if n := net.failures.Load(); n != 8 {
		t.Errorf("failures left = %d, want 8 after two attempts", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "Artist", "Song.mp3")); err == nil {
		t.Error("partial file left behind")
	}
}

func TestManager_SkipsExistingFile(t *testing.T) {
	net := newFakeNetwork(t)
	dir := t.TempDir()
	s := testSettings(dir)

	path := filepath.Join(dir, "Artist", "Song.mp3")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, net.audio, 0644); err != nil {
		t.Fatal(err)
	}
	net.failures.Store(100)

	m := NewManager(s, client.New(net.srv.URL, client.Options{}), nil)
	paths, err := m.Fetch(context.Background(), []string{"Artist - Song"}, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("Fetch() = %q, want the existing file", paths)
	}
	if n := net.failures.Load(); n != 100 {
		t.Errorf("GET issued for an existing file")
	}
}

func TestManager_FetchIntoDir(t *testing.T) {
	net := newFakeNetwork(t)
	s := testSettings(t.TempDir())
	override := t.TempDir()

	m := NewManager(s, client.New(net.srv.URL, client.Options{}), nil)
	paths, err := m.Fetch(context.Background(), []string{"Artist - Song"}, override)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if want := filepath.Join(override, "Song.mp3"); len(paths) != 1 || paths[0] != want {
		t.Errorf("Fetch() = %q, want [%q]", paths, want)
	}
}

func TestManager_StalledTransferTimesOut(t *testing.T) {
	net := newFakeNetwork(t)
	net.stall.Store(true)
	dir := t.TempDir()
	s := testSettings(dir)
	s.Download.MaxRetries = 1

	var log eventLog
	c := client.New(net.srv.URL, client.Options{
		FileGettingTimeout:     300 * time.Millisecond,
		FileLinkGettingTimeout: 100 * time.Millisecond,
	})
	m := NewManager(s, c, log.add)

	type result struct {
		paths []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		paths, err := m.Fetch(context.Background(), []string{"Artist - Song"}, "")
		done <- result{paths, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Fetch() error = %v", res.err)
		}
		if len(res.paths) != 0 {
			t.Errorf("Fetch() = %q, want nothing saved", res.paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch() still blocked with a 300ms file getting timeout")
	}

	if !log.contains(model.LevelError, "timed out") {
		t.Errorf("events = %+v, want a timeout error", log.events)
	}
	if _, err := os.Stat(filepath.Join(dir, "Artist", "Song.mp3")); err == nil {
		t.Error("partial file left behind")
	}
}
