package node

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	songhttp "github.com/handiism/songmesh/internal/http"
	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/songtitle"
)

// NetworkOptions tune the peer fan-out.
type NetworkOptions struct {
	// Concurrency bounds simultaneous peer requests.
	Concurrency int

	// RateLimit caps requests per second to each peer. Zero disables it.
	RateLimit float64

	// Timeout bounds each peer request.
	Timeout time.Duration

	UserAgent string
}

// Network combines this node's answers with those of its static peers.
type Network struct {
	local  *Resolver
	peers  []*songhttp.Client
	opts   NetworkOptions
	logger *zap.Logger
}

// NewNetwork creates a Network over the local resolver and peer addresses.
func NewNetwork(local *Resolver, peers []string, opts NetworkOptions, logger *zap.Logger) *Network {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &Network{local: local, opts: opts, logger: logger}
	for _, addr := range peers {
		httpOpts := []songhttp.Option{
			songhttp.WithBaseURL(addr),
			songhttp.WithRateLimit(opts.RateLimit, opts.Concurrency),
		}
		if opts.UserAgent != "" {
			httpOpts = append(httpOpts, songhttp.WithUserAgent(opts.UserAgent))
		}
		n.peers = append(n.peers, songhttp.NewClient(httpOpts...))
	}
	return n
}

// Local returns the resolver for this node's own storage.
func (n *Network) Local() *Resolver {
	return n.local
}

// SongInfo returns every record that points at a file, strongest priority
// first. Ties keep the local record ahead of peers and peers in
// configuration order. Failing peers are logged and skipped.
func (n *Network) SongInfo(ctx context.Context, title string) ([]model.SongInfo, error) {
	if err := songtitle.Validate(title); err != nil {
		return nil, err
	}

	local, err := n.local.Resolve(ctx, title)
	if err != nil {
		return nil, err
	}

	results := make([]model.SongInfo, len(n.peers)+1)
	results[0] = local

	n.fanOut(ctx, "get-song-info", func(ctx context.Context, i int, peer *songhttp.Client) error {
		var info model.SongInfo
		if err := peer.PostJSON(ctx, song.SlaveGetSongInfoPath, song.TitleRequest{Title: title}, &info, n.opts.Timeout); err != nil {
			return err
		}
		results[i+1] = info
		return nil
	})

	found := make([]model.SongInfo, 0, len(results))
	for _, info := range results {
		if info.Found() {
			found = append(found, info)
		}
	}
	sort.SliceStable(found, func(a, b int) bool {
		return found[a].Priority > found[b].Priority
	})
	return found, nil
}

// Link returns the strongest concrete link of the given type, or "" when
// no node has one.
func (n *Network) Link(ctx context.Context, title string, typ model.LinkType) (string, error) {
	if _, err := model.ParseLinkType(string(typ)); err != nil {
		return "", err
	}
	infos, err := n.SongInfo(ctx, title)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		link := info.AudioLink
		if typ == model.LinkCover {
			link = info.CoverLink
		}
		if link != "" {
			return link, nil
		}
	}
	return "", nil
}

// Remove deletes title from this node and every peer and returns how many
// nodes removed a stored song.
func (n *Network) Remove(ctx context.Context, title string) (int, error) {
	if err := songtitle.Validate(title); err != nil {
		return 0, err
	}

	removed, err := n.local.Remove(ctx, title)
	if err != nil {
		return 0, err
	}

	var (
		mu    sync.Mutex
		total int
	)
	if removed {
		total = 1
	}

	n.fanOut(ctx, "remove-song", func(ctx context.Context, _ int, peer *songhttp.Client) error {
		var out song.RemoveResponse
		if err := peer.PostJSON(ctx, song.SlaveRemoveSongPath, song.TitleRequest{Title: title}, &out, n.opts.Timeout); err != nil {
			return err
		}
		mu.Lock()
		total += out.Removed
		mu.Unlock()
		return nil
	})

	return total, nil
}

// fanOut calls fn for every peer with bounded concurrency. Errors are
// logged, never returned, so one unreachable peer does not fail a request.
func (n *Network) fanOut(ctx context.Context, action string, fn func(ctx context.Context, i int, peer *songhttp.Client) error) {
	var g errgroup.Group
	g.SetLimit(n.opts.Concurrency)

	for i, peer := range n.peers {
		g.Go(func() error {
			if err := fn(ctx, i, peer); err != nil {
				n.logger.Warn("peer request failed",
					zap.String("action", action),
					zap.String("peer", peer.BaseURL()),
					zap.String("kind", string(songerr.KindOf(err))),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}
