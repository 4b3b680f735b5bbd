package node

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/handiism/songmesh/internal/client"
	songhttp "github.com/handiism/songmesh/internal/http"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/storage"
	"github.com/handiism/songmesh/internal/testsupport"
	"github.com/handiism/songmesh/internal/upload"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// testNode is a node served by httptest with its stores in a temp dir.
type testNode struct {
	srv      *httptest.Server
	files    *storage.FileStore
	meta     storage.MetadataStore
	resolver *Resolver
	network  *Network
}

func newTestNode(t *testing.T, priority int, peers ...string) *testNode {
	t.Helper()

	var handler http.Handler = http.NotFoundHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	files, err := storage.OpenFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	meta, err := storage.OpenSQLite(context.Background(), filepath.Join(dir, "songs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	logger := zap.NewNop()
	resolver := NewResolver(meta, files, song.NewLinks(srv.URL), priority, logger)
	network := NewNetwork(resolver, peers, NetworkOptions{Concurrency: 2, Timeout: 2 * time.Second}, logger)
	handler = NewServer(network, 10<<20, logger).Handler()

	return &testNode{srv: srv, files: files, meta: meta, resolver: resolver, network: network}
}

func (n *testNode) store(t *testing.T, bin []byte) *model.StoreResult {
	t.Helper()
	res, err := n.resolver.Store(context.Background(), bin, "song.mp3")
	require.NoError(t, err)
	return res
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestResolver_ResolveAndAccess(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, 3)
	bin := testsupport.MP3(t, map[string]string{"TIT2": "Artist - Title", "TALB": "Album"}, testsupport.JPEG(t, 4, 4))
	stored := n.store(t, bin)

	info, err := n.resolver.Resolve(ctx, "Artist  -  Title")
	require.NoError(t, err)
	assert.Equal(t, "Artist - Title", info.Title)
	assert.Equal(t, 3, info.Priority)
	assert.Equal(t, n.srv.URL+"/file/"+stored.FileHash, info.AudioLink)
	assert.Equal(t, n.srv.URL+"/cover/"+stored.FileHash, info.CoverLink)
	assert.Equal(t, "Album", info.Tags.Text("TALB"))
	assert.False(t, info.Tags.Has(model.FramePicture), "APIC must not be returned")

	doc, err := n.meta.GetByTitle(ctx, "Artist - Title")
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc.AccessCount)
}

func TestResolver_NoCoverLinkWithoutPicture(t *testing.T) {
	n := newTestNode(t, 0)
	n.store(t, testsupport.SongMP3(t, "A - B"))

	info, err := n.resolver.Resolve(context.Background(), "A - B")
	require.NoError(t, err)
	assert.NotEmpty(t, info.AudioLink)
	assert.Empty(t, info.CoverLink)
}

func TestResolver_Unknown(t *testing.T) {
	n := newTestNode(t, 0)

	info, err := n.resolver.Resolve(context.Background(), "Nobody - Nothing")
	require.NoError(t, err)
	assert.False(t, info.Found())
	assert.Equal(t, 0, info.Priority)
	assert.NotNil(t, info.Tags)
	assert.Empty(t, info.Tags)

	_, err = n.resolver.Resolve(context.Background(), "nothing")
	assert.ErrorIs(t, err, songerr.ErrInvalidTitle)
}

func TestResolver_UnreadableStoredFileIsNotFound(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, 0)

	hash, err := n.files.Submit(ctx, []byte("not an mp3 any more"), "song.mp3")
	require.NoError(t, err)
	require.NoError(t, n.meta.Put(ctx, &model.Document{Title: "A - B", FileHash: hash}))

	info, err := n.resolver.Resolve(ctx, "A - B")
	require.NoError(t, err)
	assert.False(t, info.Found())
	assert.Empty(t, info.AudioLink)

	rec := postJSON(t, n.srv.Config.Handler, song.SlaveGetSongInfoPath, song.TitleRequest{Title: "A - B"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolver_Store(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, 0)

	_, err := n.resolver.Store(ctx, testsupport.SongMP3(t, "Title only"), "x.mp3")
	assert.ErrorIs(t, err, songerr.ErrInvalidTitle)

	_, err = n.resolver.Store(ctx, []byte("not audio at all"), "x.mp3")
	assert.ErrorIs(t, err, songerr.ErrUnsupportedContainer)

	first := n.store(t, testsupport.MP3(t, map[string]string{"TIT2": "A - B", "TALB": "One"}, nil))
	second := n.store(t, testsupport.MP3(t, map[string]string{"TIT2": "A - B", "TALB": "Two"}, nil))
	require.NotEqual(t, first.FileHash, second.FileHash)

	ok, err := n.files.HasFile(ctx, first.FileHash)
	require.NoError(t, err)
	assert.False(t, ok, "replaced file should be released")

	info, err := n.resolver.Resolve(ctx, "A - B")
	require.NoError(t, err)
	assert.Equal(t, "Two", info.Tags.Text("TALB"))
}

func TestResolver_Remove(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, 0)
	stored := n.store(t, testsupport.SongMP3(t, "A - B"))

	removed, err := n.resolver.Remove(ctx, "A - B")
	require.NoError(t, err)
	assert.True(t, removed)

	ok, _ := n.files.HasFile(ctx, stored.FileHash)
	assert.False(t, ok)

	removed, err = n.resolver.Remove(ctx, "A - B")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestServer_ErrorMapping(t *testing.T) {
	n := newTestNode(t, 0)
	h := n.srv.Config.Handler

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"invalid title", song.ClientGetSongInfoPath, song.TitleRequest{Title: "bad"}, 422, songerr.CodeWrongTitle},
		{"slave invalid title", song.SlaveGetSongInfoPath, song.TitleRequest{Title: ""}, 422, songerr.CodeWrongTitle},
		{"bad link type", song.ClientGetSongLinkPath, map[string]string{"title": "A - B", "type": "video"}, 400, CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body songhttp.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		})
	}

	req := httptest.NewRequest(http.MethodPost, song.ClientGetSongInfoPath, strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{songerr.InvalidTitle("x"), 422},
		{songerr.UnsupportedContainer("wav"), 422},
		{songerr.TagParse(io.ErrUnexpectedEOF), 422},
		{songerr.LinkNotFound("A - B"), 404},
		{songerr.Timeout("link", nil), 504},
		{storage.ErrNotFound, 404},
		{io.ErrUnexpectedEOF, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestServer_FilesAndRedirects(t *testing.T) {
	n := newTestNode(t, 0)
	h := n.srv.Config.Handler
	bin := testsupport.MP3(t, map[string]string{"TIT2": "A - B"}, testsupport.JPEG(t, 4, 4))
	stored := n.store(t, bin)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+stored.FileHash, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, bin, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cover/"+stored.FileHash, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+strings.Repeat("0", 64), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	link := song.NewLinks("").DeferredLink("A - B", model.LinkCover)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link, nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, n.srv.URL+"/cover/"+stored.FileHash, rec.Header().Get("Location"))

	link = song.NewLinks("").DeferredLink("C - D", model.LinkAudio)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), songerr.CodeNotFoundLink)
}

func TestNetwork_PriorityAndPeerFailures(t *testing.T) {
	ctx := context.Background()
	peer := newTestNode(t, 5)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	down.Close()

	local := newTestNode(t, 0, down.URL, peer.srv.URL)
	local.store(t, testsupport.MP3(t, map[string]string{"TIT2": "A - B", "TALB": "Local"}, nil))
	peer.store(t, testsupport.MP3(t, map[string]string{"TIT2": "A - B", "TCON": "Rock"}, testsupport.JPEG(t, 4, 4)))

	infos, err := local.network.SongInfo(ctx, "A - B")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 5, infos[0].Priority)
	assert.True(t, strings.HasPrefix(infos[0].AudioLink, peer.srv.URL))
	assert.True(t, strings.HasPrefix(infos[1].AudioLink, local.srv.URL))

	cover, err := local.network.Link(ctx, "A - B", model.LinkCover)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cover, peer.srv.URL))

	merged := song.Merge(infos)
	assert.Equal(t, "Local", merged.Tags.Text("TALB"))
	assert.Equal(t, "Rock", merged.Tags.Text("TCON"))

	removed, err := local.network.Remove(ctx, "A - B")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	infos, err = local.network.SongInfo(ctx, "A - B")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestNetwork_EqualPriorityKeepsLocalFirst(t *testing.T) {
	peer := newTestNode(t, 0)
	local := newTestNode(t, 0, peer.srv.URL)
	local.store(t, testsupport.SongMP3(t, "A - B"))
	peer.store(t, testsupport.SongMP3(t, "A - B"))

	infos, err := local.network.SongInfo(context.Background(), "A - B")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, strings.HasPrefix(infos[0].AudioLink, local.srv.URL))
}

func TestEndToEnd_UploadAndFetch(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, 1)
	c := client.New(n.srv.URL, client.Options{})

	p := upload.NewPipeline(upload.SubmitFunc(func(ctx context.Context, data []byte) (*model.StoreResult, error) {
		return c.AddSong(ctx, data)
	}), upload.Options{CoverMaxSize: 100, CoverToJPEG: true}, nil)

	res, err := p.Run(ctx, model.UploadRequest{
		File:      bytes.NewReader(testsupport.MP3(t, map[string]string{"TIT2": "Title", "TPE1": "Artist"}, nil)),
		Cover:     model.CoverReplace,
		CoverData: testsupport.PNG(t, 20, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, upload.StateSucceeded, res.State)
	assert.Equal(t, "Artist - Title", res.Title)

	s, err := c.GetSong(ctx, "Artist - Title")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, s.Priority)
	assert.True(t, s.HasCover())

	audio, err := c.GetSongAudioToBuffer(ctx, "Artist - Title")
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(audio, testsupport.AudioPayload()))

	cover, err := c.GetSongCoverToBuffer(ctx, "Artist - Title")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(cover, []byte{0xFF, 0xD8}), "cover should be JPEG")

	resp, err := http.Get(c.CreateRequestedSongAudioLink("Artist - Title"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, audio, body)

	removed, err := c.RemoveSong(ctx, "Artist - Title")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = c.GetSongAudioToBuffer(ctx, "Artist - Title")
	assert.ErrorIs(t, err, songerr.ErrLinkNotFound)
}

func TestRecoveryMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(requestID(), recovery(zap.NewNop()))
	engine.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), songerr.CodeTransfer)
}
