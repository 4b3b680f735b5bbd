package node

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	songhttp "github.com/handiism/songmesh/internal/http"
	ioutils "github.com/handiism/songmesh/internal/io"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/storage"
)

// CodeBadRequest marks malformed request bodies.
const CodeBadRequest = "ERR_SONG_BAD_REQUEST"

// Server is the gin transport of a node.
type Server struct {
	engine        *gin.Engine
	network       *Network
	logger        *zap.Logger
	maxUploadSize int64
}

// NewServer wires the routes of a node around network.
func NewServer(network *Network, maxUploadSize int64, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(requestID(), accessLog(logger), recovery(logger))

	s := &Server{
		engine:        engine,
		network:       network,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}

	slave := engine.Group("/api/slave")
	{
		slave.POST("/get-song-info", s.slaveGetSongInfo)
		slave.POST("/remove-song", s.slaveRemoveSong)
	}

	client := engine.Group("/client")
	{
		client.POST("/get-song-info", s.getSongInfo)
		client.POST("/get-song-link", s.getSongLink)
		client.POST("/add-song", s.addSong)
		client.POST("/remove-song", s.removeSong)
		client.GET("/request-song", s.requestSong)
	}

	engine.GET(song.FilePath+":hash", s.file)
	engine.HEAD(song.FilePath+":hash", s.file)
	engine.GET(song.CoverPath+":hash", s.cover)

	return s
}

// Handler returns the HTTP handler of the node.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("node listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) slaveGetSongInfo(c *gin.Context) {
	var req song.TitleRequest
	if !bind(c, &req) {
		return
	}
	info, err := s.network.Local().Resolve(c.Request.Context(), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) slaveRemoveSong(c *gin.Context) {
	var req song.TitleRequest
	if !bind(c, &req) {
		return
	}
	removed, err := s.network.Local().Remove(c.Request.Context(), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := song.RemoveResponse{}
	if removed {
		out.Removed = 1
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSongInfo(c *gin.Context) {
	var req song.TitleRequest
	if !bind(c, &req) {
		return
	}
	info, err := s.network.SongInfo(c.Request.Context(), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, song.InfoResponse{Info: info})
}

func (s *Server) getSongLink(c *gin.Context) {
	var req song.LinkRequest
	if !bind(c, &req) {
		return
	}
	if _, err := model.ParseLinkType(string(req.Type)); err != nil {
		badRequest(c, err)
		return
	}
	link, err := s.network.Link(c.Request.Context(), req.Title, req.Type)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, song.LinkResponse{Link: link})
}

func (s *Server) addSong(c *gin.Context) {
	if s.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize+1<<20)
	}

	header, err := c.FormFile(song.UploadField)
	if err != nil {
		badRequest(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer file.Close()

	data, err := ioutils.ReadAllLimit(file, s.maxUploadSize)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.network.Local().Store(c.Request.Context(), data, header.Filename)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) removeSong(c *gin.Context) {
	var req song.TitleRequest
	if !bind(c, &req) {
		return
	}
	removed, err := s.network.Remove(c.Request.Context(), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, song.RemoveResponse{Removed: removed})
}

// requestSong resolves a deferred link into a redirect.
func (s *Server) requestSong(c *gin.Context) {
	title := c.Query("title")
	typ, err := model.ParseLinkType(c.DefaultQuery("type", string(model.LinkAudio)))
	if err != nil {
		badRequest(c, err)
		return
	}

	link, err := s.network.Link(c.Request.Context(), title, typ)
	if err != nil {
		s.fail(c, err)
		return
	}
	if link == "" {
		s.fail(c, songerr.LinkNotFound(title))
		return
	}
	c.Redirect(http.StatusFound, link)
}

func (s *Server) file(c *gin.Context) {
	f, err := s.network.Local().Open(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "audio/mpeg")
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(c.Writer, c.Request, c.Param("hash")+".mp3", f.ModTime(), f)
}

func (s *Server) cover(c *gin.Context) {
	cover, err := s.network.Local().Cover(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, cover.MIMEType, cover.Data)
}

// fail writes err as an error body with the matching status.
func (s *Server) fail(c *gin.Context, err error) {
	c.Error(err) //nolint:errcheck
	c.AbortWithStatusJSON(StatusFor(err), songhttp.ErrorBody{
		Code:    codeFor(err),
		Message: err.Error(),
	})
}

// StatusFor maps an error onto an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	switch songerr.KindOf(err) {
	case songerr.KindInvalidTitle, songerr.KindUnsupportedContainer, songerr.KindTagParse:
		return http.StatusUnprocessableEntity
	case songerr.KindLinkNotFound:
		return http.StatusNotFound
	case songerr.KindTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func codeFor(err error) string {
	if errors.Is(err, storage.ErrNotFound) {
		return songerr.CodeNotFoundLink
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return songerr.CodeTimeout
	}
	return songerr.CodeOf(err)
}

func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func badRequest(c *gin.Context, err error) {
	c.Error(err) //nolint:errcheck
	c.AbortWithStatusJSON(http.StatusBadRequest, songhttp.ErrorBody{
		Code:    CodeBadRequest,
		Message: err.Error(),
	})
}
