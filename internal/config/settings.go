package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/handiism/songmesh/internal/model"
)

// Duration is a time.Duration that reads and writes as text ("11m", "30s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Settings holds all configuration options.
type Settings struct {
	Node     NodeSettings     `json:"node" toml:"node"`
	Client   ClientSettings   `json:"client" toml:"client"`
	Download DownloadSettings `json:"download" toml:"download"`
	Cover    CoverSettings    `json:"cover" toml:"cover"`
	Log      LogSettings      `json:"log" toml:"log"`
}

// NodeSettings configures `songmesh serve`.
type NodeSettings struct {
	Listen          string   `json:"listen" toml:"listen"`
	PublicURL       string   `json:"public_url" toml:"public_url"`
	Peers           []string `json:"peers" toml:"peers"`
	StorageDir      string   `json:"storage_dir" toml:"storage_dir"`
	MetadataDriver  string   `json:"metadata_driver" toml:"metadata_driver"` // sqlite, mongo
	MongoURI        string   `json:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase   string   `json:"mongo_database" toml:"mongo_database"`
	PeerConcurrency int      `json:"peer_concurrency" toml:"peer_concurrency"`
	PeerRate        float64  `json:"peer_rate" toml:"peer_rate"` // requests per second, 0 = unlimited
	PeerTimeout     Duration `json:"peer_timeout" toml:"peer_timeout"`
	MaxUploadSize   int64    `json:"max_upload_size" toml:"max_upload_size"`
	Priority        int      `json:"priority" toml:"priority"` // stamped on songs stored by this node
}

// ClientSettings configures requests made against a node.
type ClientSettings struct {
	Address                string   `json:"address" toml:"address"`
	UserAgent              string   `json:"user_agent" toml:"user_agent"`
	FileStoringTimeout     Duration `json:"file_storing_timeout" toml:"file_storing_timeout"`
	FileGettingTimeout     Duration `json:"file_getting_timeout" toml:"file_getting_timeout"`
	FileLinkGettingTimeout Duration `json:"file_link_getting_timeout" toml:"file_link_getting_timeout"`
	FileRemovalTimeout     Duration `json:"file_removal_timeout" toml:"file_removal_timeout"`
}

// DownloadSettings configures batch downloads of songs to disk.
type DownloadSettings struct {
	DownloadsPath          string  `json:"downloads_path" toml:"downloads_path"`
	FileNameFormat         string  `json:"file_name_format" toml:"file_name_format"`
	CoverArtFileNameFormat string  `json:"cover_art_file_name_format" toml:"cover_art_file_name_format"`
	PlaylistFileNameFormat string  `json:"playlist_file_name_format" toml:"playlist_file_name_format"`
	MaxConcurrent          int     `json:"max_concurrent" toml:"max_concurrent"`
	MaxRetries             int     `json:"max_retries" toml:"max_retries"`
	RetryCooldown          float64 `json:"retry_cooldown" toml:"retry_cooldown"`
	RetryExponent          float64 `json:"retry_exponent" toml:"retry_exponent"`
	SaveCoverArtInFolder   bool    `json:"save_cover_art_in_folder" toml:"save_cover_art_in_folder"`
	CreatePlaylist         bool    `json:"create_playlist" toml:"create_playlist"`
	PlaylistFormat         string  `json:"playlist_format" toml:"playlist_format"` // m3u, pls, wpl, zpl
	M3UExtended            bool    `json:"m3u_extended" toml:"m3u_extended"`
}

// CoverSettings configures covers embedded on upload.
type CoverSettings struct {
	MaxSize       int  `json:"max_size" toml:"max_size"`
	ConvertToJPEG bool `json:"convert_to_jpeg" toml:"convert_to_jpeg"`
}

// LogSettings configures the node logger.
type LogSettings struct {
	Level  string `json:"level" toml:"level"`   // debug, info, warn, error
	Format string `json:"format" toml:"format"` // console, json
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		Node: NodeSettings{
			Listen:          ":2790",
			PublicURL:       "http://localhost:2790",
			StorageDir:      filepath.Join(homeDir, ".local", "share", "songmesh"),
			MetadataDriver:  "sqlite",
			MongoDatabase:   "songmesh",
			PeerConcurrency: 8,
			PeerRate:        20,
			PeerTimeout:     Duration(10 * time.Second),
			MaxUploadSize:   200 << 20,
		},
		Client: ClientSettings{
			Address:                "http://localhost:2790",
			UserAgent:              "songmesh",
			FileStoringTimeout:     Duration(11 * time.Minute),
			FileGettingTimeout:     Duration(5 * time.Minute),
			FileLinkGettingTimeout: Duration(30 * time.Second),
			FileRemovalTimeout:     Duration(30 * time.Second),
		},
		Download: DownloadSettings{
			DownloadsPath:          filepath.Join(homeDir, "Music", "songmesh", "{artist}"),
			FileNameFormat:         "{artist} - {title}.mp3",
			CoverArtFileNameFormat: "{artist} - {title}",
			PlaylistFileNameFormat: "songmesh",
			MaxConcurrent:          4,
			MaxRetries:             7,
			RetryCooldown:          0.2,
			RetryExponent:          4.0,
			PlaylistFormat:         "m3u",
			M3UExtended:            true,
		},
		Cover: CoverSettings{
			MaxSize:       1000,
			ConvertToJPEG: true,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads settings from a JSON or TOML file, chosen by extension.
//
// A missing file yields the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if isTOML(path) {
		if err := toml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	return settings, nil
}

// Save writes settings to a JSON or TOML file, chosen by extension.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error

	if s.Node.Listen == "" {
		errs = append(errs, errors.New("node.listen is required"))
	}
	if err := checkURL(s.Node.PublicURL); err != nil {
		errs = append(errs, fmt.Errorf("node.public_url: %w", err))
	}
	for _, peer := range s.Node.Peers {
		if err := checkURL(peer); err != nil {
			errs = append(errs, fmt.Errorf("node.peers %q: %w", peer, err))
		}
	}
	switch s.Node.MetadataDriver {
	case "sqlite":
	case "mongo":
		if s.Node.MongoURI == "" {
			errs = append(errs, errors.New("node.mongo_uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("node.metadata_driver %q must be sqlite or mongo", s.Node.MetadataDriver))
	}
	if s.Node.PeerConcurrency < 1 {
		errs = append(errs, errors.New("node.peer_concurrency must be at least 1"))
	}
	if s.Node.PeerRate < 0 {
		errs = append(errs, errors.New("node.peer_rate must not be negative"))
	}
	if err := checkURL(s.Client.Address); err != nil {
		errs = append(errs, fmt.Errorf("client.address: %w", err))
	}

	timeouts := map[string]Duration{
		"client.file_storing_timeout":      s.Client.FileStoringTimeout,
		"client.file_getting_timeout":      s.Client.FileGettingTimeout,
		"client.file_link_getting_timeout": s.Client.FileLinkGettingTimeout,
		"client.file_removal_timeout":      s.Client.FileRemovalTimeout,
	}
	for _, key := range []string{
		"client.file_storing_timeout",
		"client.file_getting_timeout",
		"client.file_link_getting_timeout",
		"client.file_removal_timeout",
	} {
		if timeouts[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	if s.Download.MaxConcurrent < 1 {
		errs = append(errs, errors.New("download.max_concurrent must be at least 1"))
	}
	if s.Download.MaxRetries < 0 {
		errs = append(errs, errors.New("download.max_retries must not be negative"))
	}
	if s.Cover.MaxSize < 0 {
		errs = append(errs, errors.New("cover.max_size must not be negative"))
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s.Log.Level))
	}

	return errors.Join(errs...)
}

// ToPathConfig converts settings to PathConfig.
func (s *Settings) ToPathConfig() *model.PathConfig {
	return &model.PathConfig{
		DownloadsPath:          s.Download.DownloadsPath,
		FileNameFormat:         s.Download.FileNameFormat,
		CoverArtFileNameFormat: s.Download.CoverArtFileNameFormat,
		PlaylistFileNameFormat: s.Download.PlaylistFileNameFormat,
		PlaylistFormat:         model.ParsePlaylistFormat(s.Download.PlaylistFormat),
	}
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "songmesh", "config.toml")
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
