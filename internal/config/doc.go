// Package config provides configuration management for songmesh.
//
// This package handles:
//   - Loading and saving settings from JSON or TOML files
//   - Default configuration values
//   - Validation of node, client and download settings
//   - Conversion to PathConfig for the download manager
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Node listens on :2790 and stores songs under ~/.local/share/songmesh
//	// Client timeouts: store 11m, get 5m, link 30s, remove 30s
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.toml")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Saving Settings
//
//	settings.Node.Peers = []string{"http://node-b:2790"}
//	err := settings.Save("/path/to/config.toml")
//
// # Durations
//
// Timeouts are written as Go duration strings:
//
//	[client]
//	file_getting_timeout = "5m"
//	file_link_getting_timeout = "30s"
package config
