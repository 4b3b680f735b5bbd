package upload

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/handiism/songmesh/internal/audio"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/testsupport"
)

type recordingSubmitter struct {
	calls int
	data  []byte
	err   error
}

func (s *recordingSubmitter) Submit(ctx context.Context, data []byte) (*model.StoreResult, error) {
	s.calls++
	s.data = data
	if s.err != nil {
		return nil, s.err
	}
	info, _ := audio.NewCodec().Probe(data)
	return &model.StoreResult{FileHash: info.Hash}, nil
}

type closeTracker struct {
	*bytes.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateTagsRewritten, "tags rewritten"},
		{StateFailed, "failed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPipeline_Run(t *testing.T) {
	original := testsupport.MP3(t, map[string]string{"TIT2": "Title", "TPE1": "Artist", "TALB": "Album"}, nil)
	input := append([]byte(nil), original...)
	sub := &recordingSubmitter{}

	var events []model.ProgressEvent
	p := NewPipeline(sub, Options{}, func(e model.ProgressEvent) { events = append(events, e) })

	src := &closeTracker{Reader: bytes.NewReader(input)}
	res, err := p.Run(context.Background(), model.UploadRequest{File: src})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.State != StateSucceeded || res.Title != "Artist - Title" {
		t.Errorf("result = %+v", res)
	}
	if !src.closed {
		t.Error("source should be closed")
	}
	if !bytes.Equal(input, original) {
		t.Error("input bytes were modified")
	}
	if sub.calls != 1 {
		t.Fatalf("Submit() calls = %d", sub.calls)
	}
	if !bytes.HasSuffix(sub.data, testsupport.AudioPayload()) {
		t.Error("audio payload not preserved")
	}

	tags, err := audio.NewCodec().ReadTags(sub.data)
	if err != nil {
		t.Fatalf("ReadTags(submitted) error = %v", err)
	}
	if tags.Text(model.FrameTitle) != "Artist - Title" || tags.Text(model.FrameAlbum) != "Album" {
		t.Errorf("submitted tags = %v", tags)
	}
	if res.FileName != res.FileHash+".mp3" {
		t.Errorf("FileName = %q, hash %q", res.FileName, res.FileHash)
	}
	if last := events[len(events)-1]; last.Level != model.LevelSuccess {
		t.Errorf("last event = %+v", last)
	}
}

func TestPipeline_TitleOverride(t *testing.T) {
	sub := &recordingSubmitter{}
	p := NewPipeline(sub, Options{}, nil)

	res, err := p.Run(context.Background(), model.UploadRequest{
		File:  bytes.NewReader(testsupport.SongMP3(t, "Old - Name")),
		Title: "  New   Artist - New Name ",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Title != "New Artist - New Name" {
		t.Errorf("Title = %q", res.Title)
	}
	if got := res.Tags.Text(model.FrameArtist); got != "New Artist" {
		t.Errorf("TPE1 = %q", got)
	}
}

func TestPipeline_InvalidTitleSubmitsNothing(t *testing.T) {
	tests := map[string]string{
		"no separator":      "No separator",
		"tab separated":     "Artist\t-\tTitle",
		"doubled separator": "Artist  -  Title - X",
		"blank artist":      " - Title",
	}

	for name, title := range tests {
		t.Run(name, func(t *testing.T) {
			sub := &recordingSubmitter{}
			p := NewPipeline(sub, Options{}, nil)
			src := &closeTracker{Reader: bytes.NewReader(testsupport.SongMP3(t, title))}

			res, err := p.Run(context.Background(), model.UploadRequest{File: src})
			if !errors.Is(err, songerr.ErrInvalidTitle) {
				t.Fatalf("error = %v, want invalid title", err)
			}
			if res.State != StateFailed || res.FailedAt != StateTagsRead {
				t.Errorf("state = %v, failed at %v", res.State, res.FailedAt)
			}
			if sub.calls != 0 {
				t.Error("nothing should be submitted")
			}
			if !src.closed {
				t.Error("source should be closed on failure")
			}
		})
	}
}

func TestPipeline_Failures(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) model.UploadRequest
		sub      *recordingSubmitter
		wantAt   State
		wantKind songerr.Kind
	}{
		{
			name:     "not mp3",
			req:      func(t *testing.T) model.UploadRequest { return model.UploadRequest{File: bytes.NewReader([]byte("plain text"))} },
			sub:      &recordingSubmitter{},
			wantAt:   StateIdle,
			wantKind: songerr.KindUnsupportedContainer,
		},
		{
			name: "submit error",
			req: func(t *testing.T) model.UploadRequest {
				return model.UploadRequest{File: bytes.NewReader(testsupport.SongMP3(t, "A - B"))}
			},
			sub:      &recordingSubmitter{err: songerr.Transfer("node down", nil)},
			wantAt:   StateSubmitted,
			wantKind: songerr.KindTransfer,
		},
		{
			name: "bad cover",
			req: func(t *testing.T) model.UploadRequest {
				return model.UploadRequest{
					File:      bytes.NewReader(testsupport.SongMP3(t, "A - B")),
					Cover:     model.CoverReplace,
					CoverData: []byte("GIF89a"),
				}
			},
			sub:    &recordingSubmitter{},
			wantAt: StateValidated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewPipeline(tt.sub, Options{}, nil).Run(context.Background(), tt.req(t))
			if err == nil {
				t.Fatal("Run() error = nil")
			}
			if res.State != StateFailed || res.FailedAt != tt.wantAt {
				t.Errorf("state = %v, failed at %v, want %v", res.State, res.FailedAt, tt.wantAt)
			}
			if tt.wantKind != "" && songerr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %q, want %q", songerr.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestPipeline_Covers(t *testing.T) {
	withCover := testsupport.MP3(t, map[string]string{"TIT2": "A - B"}, testsupport.JPEG(t, 8, 8))

	t.Run("replace with resized png", func(t *testing.T) {
		sub := &recordingSubmitter{}
		p := NewPipeline(sub, Options{CoverMaxSize: 16, CoverToJPEG: true}, nil)

		_, err := p.Run(context.Background(), model.UploadRequest{
			File:      bytes.NewReader(withCover),
			Cover:     model.CoverReplace,
			CoverData: testsupport.PNG(t, 64, 32),
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		tags, _ := audio.NewCodec().ReadTags(sub.data)
		cover, ok := audio.ExtractCover(tags)
		if !ok || cover.MIMEType != "image/jpeg" {
			t.Fatalf("cover = %v, %v", cover, ok)
		}
	})

	t.Run("remove", func(t *testing.T) {
		sub := &recordingSubmitter{}
		p := NewPipeline(sub, Options{}, nil)

		if _, err := p.Run(context.Background(), model.UploadRequest{
			File:  bytes.NewReader(withCover),
			Cover: model.CoverRemove,
		}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		tags, _ := audio.NewCodec().ReadTags(sub.data)
		if _, ok := audio.ExtractCover(tags); ok {
			t.Error("cover should be removed")
		}
	})

	t.Run("keep", func(t *testing.T) {
		sub := &recordingSubmitter{}
		p := NewPipeline(sub, Options{}, nil)

		if _, err := p.Run(context.Background(), model.UploadRequest{File: bytes.NewReader(withCover)}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		tags, _ := audio.NewCodec().ReadTags(sub.data)
		if _, ok := audio.ExtractCover(tags); !ok {
			t.Error("cover should be kept")
		}
	})
}

func TestPipeline_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, testsupport.SongMP3(t, "A - B"), 0644); err != nil {
		t.Fatal(err)
	}

	sub := &recordingSubmitter{}
	if _, err := NewPipeline(sub, Options{}, nil).Run(context.Background(), model.UploadRequest{Path: path}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := NewPipeline(sub, Options{}, nil).Run(context.Background(), model.UploadRequest{}); !errors.Is(err, ErrNoSource) {
		t.Errorf("empty request error = %v", err)
	}
}

func TestPipeline_MaxFileSize(t *testing.T) {
	sub := &recordingSubmitter{}
	p := NewPipeline(sub, Options{MaxFileSize: 100}, nil)

	if _, err := p.Run(context.Background(), model.UploadRequest{File: bytes.NewReader(testsupport.SongMP3(t, "A - B"))}); err == nil {
		t.Error("Run() should reject oversized input")
	}
}
