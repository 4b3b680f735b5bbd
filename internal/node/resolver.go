package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/handiism/songmesh/internal/audio"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/songtitle"
	"github.com/handiism/songmesh/internal/storage"
)

// Resolver answers for the songs stored on this node.
type Resolver struct {
	meta     storage.MetadataStore
	files    storage.ContentStore
	links    song.Links
	codec    *audio.Codec
	priority int
	logger   *zap.Logger
}

// NewResolver creates a Resolver over the given stores. Links handed out
// point at links.BaseURL; priority is stamped on newly stored songs.
func NewResolver(meta storage.MetadataStore, files storage.ContentStore, links song.Links, priority int, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		meta:     meta,
		files:    files,
		links:    links,
		codec:    audio.NewCodec(),
		priority: priority,
		logger:   logger,
	}
}

// lookup returns the document for title when its file is present.
func (r *Resolver) lookup(ctx context.Context, title string) (*model.Document, error) {
	if err := songtitle.Validate(title); err != nil {
		return nil, err
	}

	doc, err := r.meta.GetByTitle(ctx, songtitle.Normalize(title))
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil || doc.FileHash == "" {
		return nil, nil
	}

	ok, err := r.files.HasFile(ctx, doc.FileHash)
	if err != nil {
		return nil, fmt.Errorf("check file: %w", err)
	}
	if !ok {
		r.logger.Warn("document without file", zap.String("title", doc.Title), zap.String("hash", doc.FileHash))
		return nil, nil
	}
	return doc, nil
}

// Resolve returns this node's record for title.
//
// When the node holds the file, the access is recorded and the record
// carries the stored tags (APIC excluded), an audio link, a cover link if
// the file embeds a picture, and the document priority. Otherwise, and
// when the stored file no longer parses, the empty record is returned.
func (r *Resolver) Resolve(ctx context.Context, title string) (model.SongInfo, error) {
	doc, err := r.lookup(ctx, title)
	if err != nil || doc == nil {
		return model.EmptySongInfo(), err
	}

	if err := r.meta.Access(ctx, doc); err != nil {
		return model.EmptySongInfo(), fmt.Errorf("record access: %w", err)
	}

	data, err := r.files.ReadFile(ctx, doc.FileHash)
	if err != nil {
		return model.EmptySongInfo(), fmt.Errorf("read file: %w", err)
	}
	tags, err := r.codec.ReadTags(data)
	if err != nil {
		r.logger.Warn("stored file has unreadable tags", zap.String("title", doc.Title), zap.String("hash", doc.FileHash), zap.Error(err))
		return model.EmptySongInfo(), nil
	}

	info := model.SongInfo{
		Title:     doc.Title,
		FileHash:  doc.FileHash,
		Priority:  doc.Priority,
		AudioLink: r.links.AudioLink(doc.FileHash),
		Tags:      tags.Without(model.FramePicture),
	}
	if tags.Has(model.FramePicture) {
		info.CoverLink = r.links.CoverLink(doc.FileHash)
	}
	return info, nil
}

// Remove deletes title from this node and reports whether a stored song
// was removed. The file itself is kept while other titles reference it.
func (r *Resolver) Remove(ctx context.Context, title string) (bool, error) {
	if err := songtitle.Validate(title); err != nil {
		return false, err
	}

	key := songtitle.Normalize(title)
	doc, err := r.meta.GetByTitle(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return false, nil
	}

	present, err := r.files.HasFile(ctx, doc.FileHash)
	if err != nil {
		return false, fmt.Errorf("check file: %w", err)
	}
	if _, err := r.meta.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	if err := r.releaseFile(ctx, doc.FileHash); err != nil {
		return false, err
	}

	r.logger.Info("song removed", zap.String("title", doc.Title), zap.Bool("had_file", present))
	return present, nil
}

// Store ingests an uploaded MP3. The title comes from the file's own tags
// and must be valid; the stored document replaces any previous one with
// the same title.
func (r *Resolver) Store(ctx context.Context, data []byte, filename string) (*model.StoreResult, error) {
	tags, err := r.codec.ReadTags(data)
	if err != nil {
		return nil, err
	}
	title := tags.FullTitle()
	if err := songtitle.Validate(title); err != nil {
		return nil, err
	}
	title = songtitle.Normalize(title)

	prev, err := r.meta.GetByTitle(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	hash, err := r.files.Submit(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	doc := &model.Document{Title: title, FileHash: hash, Priority: r.priority}
	if err := r.meta.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("put document: %w", err)
	}

	if prev != nil && prev.FileHash != hash {
		if err := r.releaseFile(ctx, prev.FileHash); err != nil {
			r.logger.Warn("release replaced file", zap.String("hash", prev.FileHash), zap.Error(err))
		}
	}

	r.logger.Info("song stored", zap.String("title", title), zap.String("hash", hash), zap.Int("size", len(data)))
	return &model.StoreResult{FileHash: hash, Title: title}, nil
}

// Open returns the stored audio file for hash.
func (r *Resolver) Open(ctx context.Context, hash string) (storage.File, error) {
	return r.files.Open(ctx, hash)
}

// Cover returns the picture embedded in the stored file for hash.
func (r *Resolver) Cover(ctx context.Context, hash string) (*audio.Cover, error) {
	data, err := r.files.ReadFile(ctx, hash)
	if err != nil {
		return nil, err
	}
	tags, err := r.codec.ReadTags(data)
	if err != nil {
		return nil, err
	}
	cover, ok := audio.ExtractCover(tags)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cover, nil
}

// releaseFile removes hash from the content store once no title uses it.
func (r *Resolver) releaseFile(ctx context.Context, hash string) error {
	n, err := r.meta.CountByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := r.files.Remove(ctx, hash); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
