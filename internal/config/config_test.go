// File: internal/config/config_test.go
// Brief: Settings defaults, flag binding and validation.

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings()
	if s.HealthInterval != 3*time.Second || s.HealthAttempts != 60 {
		t.Fatalf("unexpected health defaults %s x %d", s.HealthInterval, s.HealthAttempts)
	}
	if !s.StrictPlaceholders {
		t.Fatalf("strict placeholder checking should default on")
	}
	if s.Project != "cosy" {
		t.Fatalf("project default mismatch, got %s", s.Project)
	}
	if len(s.Hashers) != 3 || s.Hashers[0] != "htpasswd" {
		t.Fatalf("unexpected hasher order %v", s.Hashers)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestBindFlagsOverrides(t *testing.T) {
	s := NewSettings()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	s.BindGlobalFlags(fs)
	s.BindInstallFlags(fs)
	err := fs.Parse([]string{
		"--source-url", "file:///srv/mirror",
		"--source-ref", "v1.4.0",
		"--health-attempts", "5",
		"--hashers", "BCRYPT",
		"--postgres-version", "15",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.SourceURL != "file:///srv/mirror" || s.SourceRef != "v1.4.0" || s.HealthAttempts != 5 {
		t.Fatalf("flags not applied: %+v", s)
	}
	if len(s.Hashers) != 1 || s.Hashers[0] != "bcrypt" {
		t.Fatalf("hasher names should be normalized, got %v", s.Hashers)
	}
	if got := s.Images.Refs()["postgres"]; got != "docker.io/library/postgres:15" {
		t.Fatalf("unexpected postgres ref %s", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Settings){
		"ftp source":    func(s *Settings) { s.SourceURL = "ftp://example.com" },
		"empty ref":     func(s *Settings) { s.SourceRef = " " },
		"zero interval": func(s *Settings) { s.HealthInterval = 0 },
		"no attempts":   func(s *Settings) { s.HealthAttempts = 0 },
		"bad hasher":    func(s *Settings) { s.Hashers = []string{"md5"} },
		"no hashers":    func(s *Settings) { s.Hashers = nil },
		"bad tag":       func(s *Settings) { s.Images.Loki = "3.1:evil" },
		"bad project":   func(s *Settings) { s.Project = "a b" },
	}
	for name, mutate := range cases {
		s := NewSettings()
		mutate(s)
		if err := s.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateNormalizesHealthPath(t *testing.T) {
	s := NewSettings()
	s.HealthPath = "healthz"
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.HasPrefix(s.HealthPath, "/") {
		t.Fatalf("expected leading slash, got %s", s.HealthPath)
	}
}
