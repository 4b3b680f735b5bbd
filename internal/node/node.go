package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/handiism/songmesh/internal/config"
	"github.com/handiism/songmesh/internal/song"
	"github.com/handiism/songmesh/internal/storage"
)

// Node is a running songmesh node: its stores, its view of the network
// and its HTTP server.
type Node struct {
	Files    *storage.FileStore
	Meta     storage.MetadataStore
	Resolver *Resolver
	Network  *Network
	Server   *Server

	logger *zap.Logger
}

// Open opens the stores described by settings and wires a node around
// them. The storage directory is locked until Close.
func Open(ctx context.Context, s *config.Settings, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	files, err := storage.OpenFileStore(s.Node.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}

	meta, err := storage.OpenMetadata(ctx, storage.MetadataOptions{
		Driver:        s.Node.MetadataDriver,
		StorageDir:    s.Node.StorageDir,
		MongoURI:      s.Node.MongoURI,
		MongoDatabase: s.Node.MongoDatabase,
	})
	if err != nil {
		files.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	resolver := NewResolver(meta, files, song.NewLinks(s.Node.PublicURL), s.Node.Priority,
		logger.With(zap.String("component", "resolver")))
	network := NewNetwork(resolver, s.Node.Peers, NetworkOptions{
		Concurrency: s.Node.PeerConcurrency,
		RateLimit:   s.Node.PeerRate,
		Timeout:     s.Node.PeerTimeout.Std(),
		UserAgent:   s.Client.UserAgent,
	}, logger.With(zap.String("component", "network")))
	server := NewServer(network, s.Node.MaxUploadSize, logger.With(zap.String("component", "http")))

	logger.Info("node opened",
		zap.String("storage", s.Node.StorageDir),
		zap.String("metadata", s.Node.MetadataDriver),
		zap.Strings("peers", s.Node.Peers))

	return &Node{
		Files:    files,
		Meta:     meta,
		Resolver: resolver,
		Network:  network,
		Server:   server,
		logger:   logger,
	}, nil
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func (n *Node) Serve(ctx context.Context, addr string) error {
	return n.Server.ListenAndServe(ctx, addr)
}

// Close releases the stores and the storage lock.
func (n *Node) Close() error {
	return errors.Join(n.Meta.Close(), n.Files.Close())
}
