package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/handiism/songmesh/internal/audio"
	ioutils "github.com/handiism/songmesh/internal/io"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/songtitle"
)

// State is a step of one upload.
type State int

const (
	StateIdle State = iota
	StateTagsRead
	StateValidated
	StateTagsRewritten
	StateSubmitted
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagsRead:
		return "tags read"
	case StateValidated:
		return "validated"
	case StateTagsRewritten:
		return "tags rewritten"
	case StateSubmitted:
		return "submitted"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Submitter stores a finished MP3 somewhere, usually a node.
type Submitter interface {
	Submit(ctx context.Context, data []byte) (*model.StoreResult, error)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, data []byte) (*model.StoreResult, error)

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, data []byte) (*model.StoreResult, error) {
	return f(ctx, data)
}

// Options tune cover handling and input limits.
type Options struct {
	// CoverMaxSize bounds each side of a replacement cover. 0 keeps the size.
	CoverMaxSize int

	// CoverToJPEG re-encodes PNG covers as JPEG.
	CoverToJPEG bool

	// MaxFileSize rejects larger inputs. 0 means no limit.
	MaxFileSize int64
}

// Result describes a finished upload.
type Result struct {
	// State is StateSucceeded or StateFailed.
	State State

	// FailedAt is the last state reached before a failure.
	FailedAt State

	Title    string
	FileHash string
	FileName string

	// Tags are the tags written into the submitted file.
	Tags model.Tags
}

// Pipeline turns an UploadRequest into a stored song.
//
// Each Run walks Idle → TagsRead → Validated → TagsRewritten → Submitted
// → Succeeded, or drops to Failed from any step. The caller's bytes are
// never modified and nothing is submitted unless the title is valid.
type Pipeline struct {
	codec      *audio.Codec
	submitter  Submitter
	images     *ioutils.ImageService
	opts       Options
	onProgress func(model.ProgressEvent)
}

// NewPipeline creates a Pipeline submitting through s.
func NewPipeline(s Submitter, opts Options, onProgress func(model.ProgressEvent)) *Pipeline {
	return &Pipeline{
		codec:      audio.NewCodec(),
		submitter:  s,
		images:     ioutils.NewImageService(),
		opts:       opts,
		onProgress: onProgress,
	}
}

// run carries the state of one Run call.
type run struct {
	p     *Pipeline
	state State
	res   *Result
}

func (r *run) enter(s State, msg string) {
	r.state = s
	r.p.progress(model.ProgressEvent{Message: msg, Level: model.LevelVerbose})
}

func (r *run) fail(err error) (*Result, error) {
	r.res.FailedAt = r.state
	r.res.State = StateFailed
	r.state = StateFailed
	r.p.progress(model.ProgressEvent{Message: fmt.Sprintf("Upload failed after %s: %v", r.res.FailedAt, err), Level: model.LevelError})
	return r.res, err
}

// Run executes one upload.
//
// When req.Path is set the file is opened and closed here. When req.File
// is an io.Closer the pipeline owns it and closes it on every path.
// The returned Result is never nil; on failure its State is StateFailed
// and FailedAt names the step that did not complete.
func (p *Pipeline) Run(ctx context.Context, req model.UploadRequest) (*Result, error) {
	r := &run{p: p, state: StateIdle, res: &Result{State: StateIdle}}

	data, err := p.load(req)
	if err != nil {
		return r.fail(err)
	}

	tags, err := p.codec.ReadTags(data)
	if err != nil {
		return r.fail(err)
	}
	r.enter(StateTagsRead, fmt.Sprintf("Read %d tags", len(tags)))

	title := req.Title
	if title == "" {
		title = tags.FullTitle()
	}
	if err := songtitle.Validate(title); err != nil {
		return r.fail(err)
	}
	title = songtitle.Normalize(title)
	r.res.Title = title
	r.enter(StateValidated, fmt.Sprintf("Title: %s", title))

	over := model.Tags{}
	over.Set(model.KeyFullTitle, title)
	switch req.Cover {
	case model.CoverReplace:
		cover, mime, err := p.images.NormalizeCover(ctx, req.CoverData, p.opts.CoverMaxSize, p.opts.CoverToJPEG)
		if err != nil {
			return r.fail(fmt.Errorf("cover: %w", err))
		}
		over.SetBinary(model.FramePicture, cover, mime)
	case model.CoverRemove:
		over.Clear(model.FramePicture)
	}

	out, err := p.codec.WriteTags(data, over)
	if err != nil {
		return r.fail(err)
	}
	written, err := p.codec.ReadTags(out)
	if err != nil {
		return r.fail(err)
	}
	r.res.Tags = written
	r.enter(StateTagsRewritten, "Tags rewritten")

	info, err := p.codec.Probe(out)
	if err != nil {
		return r.fail(err)
	}
	r.res.FileName = info.FileName()

	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}
	r.enter(StateSubmitted, fmt.Sprintf("Submitting %s (%d bytes)", r.res.FileName, info.Size))
	stored, err := p.submitter.Submit(ctx, out)
	if err != nil {
		return r.fail(err)
	}

	r.res.FileHash = stored.FileHash
	if stored.Title != "" {
		r.res.Title = stored.Title
	}
	r.res.State = StateSucceeded
	r.state = StateSucceeded
	p.progress(model.ProgressEvent{Message: fmt.Sprintf("Uploaded: %s", r.res.Title), Level: model.LevelSuccess})
	return r.res, nil
}

// ErrNoSource is returned when a request has neither a path nor a reader.
var ErrNoSource = errors.New("upload request has no file")

func (p *Pipeline) load(req model.UploadRequest) ([]byte, error) {
	src := req.File
	if src == nil && req.Path != "" {
		f, err := os.Open(req.Path)
		if err != nil {
			return nil, err
		}
		src = f
	}
	if src == nil {
		return nil, ErrNoSource
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	return ioutils.ReadAllLimit(src, p.opts.MaxFileSize)
}

func (p *Pipeline) progress(event model.ProgressEvent) {
	if p.onProgress != nil {
		p.onProgress(event)
	}
}
