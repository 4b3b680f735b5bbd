package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/handiism/songmesh/internal/model"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"storing", s.Client.FileStoringTimeout.Std(), 11 * time.Minute},
		{"getting", s.Client.FileGettingTimeout.Std(), 5 * time.Minute},
		{"link", s.Client.FileLinkGettingTimeout.Std(), 30 * time.Second},
		{"removal", s.Client.FileRemovalTimeout.Std(), 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("timeout = %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Node.Listen != DefaultSettings().Node.Listen {
		t.Error("missing file should yield defaults")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[node]
listen = ":9000"
peers = ["http://node-b:2790", "http://node-c:2790"]

[client]
file_link_getting_timeout = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Node.Listen != ":9000" || len(s.Node.Peers) != 2 {
		t.Errorf("node = %#v", s.Node)
	}
	if s.Client.FileLinkGettingTimeout.Std() != 5*time.Second {
		t.Errorf("link timeout = %v", s.Client.FileLinkGettingTimeout.Std())
	}
	if s.Client.FileGettingTimeout.Std() != 5*time.Minute {
		t.Error("unset keys should keep defaults")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			s := DefaultSettings()
			s.Node.Peers = []string{"http://peer:2790"}
			s.Client.FileRemovalTimeout = Duration(45 * time.Second)
			if err := s.Save(path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Client.FileRemovalTimeout.Std() != 45*time.Second {
				t.Errorf("removal timeout = %v", got.Client.FileRemovalTimeout.Std())
			}
			if len(got.Node.Peers) != 1 || got.Node.Peers[0] != "http://peer:2790" {
				t.Errorf("peers = %v", got.Node.Peers)
			}
		})
	}
}

func TestDuration_InvalidText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("eleven minutes")); err == nil {
		t.Error("UnmarshalText() should reject invalid durations")
	}
}

func TestValidate(t *testing.T) {
	s := DefaultSettings()
	s.Node.PublicURL = "node-a:2790"
	s.Node.MetadataDriver = "mongo"
	s.Client.FileGettingTimeout = 0
	s.Log.Level = "loud"

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}

	msg := err.Error()
	for _, want := range []string{"node.public_url", "node.mongo_uri", "client.file_getting_timeout", "log.level"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q should mention %s", msg, want)
		}
	}
}

func TestToPathConfig(t *testing.T) {
	s := DefaultSettings()
	s.Download.PlaylistFormat = "zpl"

	cfg := s.ToPathConfig()
	if cfg.PlaylistFormat != model.PlaylistFormatZPL {
		t.Errorf("PlaylistFormat = %v", cfg.PlaylistFormat)
	}
	if cfg.FileNameFormat != s.Download.FileNameFormat {
		t.Errorf("FileNameFormat = %q", cfg.FileNameFormat)
	}
}
