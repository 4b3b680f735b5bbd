// Package storage persists songs on a node.
//
// ContentStore keeps the audio files, addressed by their SHA-256 hash.
// MetadataStore maps normalized titles to those hashes and keeps access
// bookkeeping (last access time and count).
//
// FileStore is the filesystem ContentStore. SQLiteMetadata is the default
// MetadataStore; MongoMetadata serves deployments that already run MongoDB.
package storage
