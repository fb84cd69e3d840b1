package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/inc-submissions-harvester/internal/layout"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
logging:
  level: debug
fetcher:
  timeout_seconds: 45
  max_retries: 5
  backoff_base_ms: 100
  backoff_jitter_ms: 50
  backoff_max_ms: 400
  rate_per_second: 0.5
  user_agents: ["agent-a", "agent-b"]
storage:
  backend: s3
  prefix: snapshots
  s3:
    bucket: harvest
    endpoint: http://minio:9000
    use_path_style: true
postgres:
  enabled: true
  dsn: postgres://localhost/harvest
server:
  port: 9090
  api_key: secret
schedule:
  interval_minutes: 30
sessions:
  - id: "4"
    layout: dated_paragraph
    sources:
      - url: https://example.org/session-4/in-session
        document_type: statement
        group_pattern: "^Part"
      - url: https://example.org/session-4/pre-session
        document_type: pre session submission
        prevent_duplicate_groups: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
	if cfg.Timeout() != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %s", cfg.Timeout())
	}
	policy := cfg.Backoff()
	if policy.Base != 100*time.Millisecond || policy.Jitter != 50*time.Millisecond || policy.Max != 400*time.Millisecond {
		t.Fatalf("unexpected backoff policy: %+v", policy)
	}
	if len(cfg.Fetcher.UserAgents) != 2 {
		t.Fatalf("expected 2 user agents, got %v", cfg.Fetcher.UserAgents)
	}
	if cfg.Storage.S3.Bucket != "harvest" || !cfg.Storage.S3.UsePathStyle || cfg.Storage.S3.Region != "us-east-1" {
		t.Fatalf("unexpected s3 config: %+v", cfg.Storage.S3)
	}
	if cfg.Postgres.Table != "harvest_runs" {
		t.Fatalf("expected default ledger table, got %q", cfg.Postgres.Table)
	}
	if cfg.Server.APIKey != "secret" || cfg.Server.Port != 9090 {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.ScheduleInterval() != 30*time.Minute {
		t.Fatalf("expected 30m interval, got %s", cfg.ScheduleInterval())
	}

	if ids := cfg.SessionIDs(); len(ids) != 1 || ids[0] != "4" {
		t.Fatalf("configured sessions should replace the defaults, got %v", ids)
	}
	s, err := cfg.Session("4")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s.Layout != layout.DatedParagraph || len(s.Sources) != 2 {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.Sources[0].GroupPattern == nil || !s.Sources[0].GroupPattern.MatchString("Part 1") {
		t.Fatalf("group pattern not compiled")
	}
	if s.Sources[1].DocumentType != "pre session submission" || !s.Sources[1].PreventDuplicateGroups {
		t.Fatalf("unexpected second source: %+v", s.Sources[1])
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != "local" || cfg.Publisher.Backend != "memory" {
		t.Fatalf("unexpected backends: %s / %s", cfg.Storage.Backend, cfg.Publisher.Backend)
	}
	if cfg.Fetcher.MaxRetries != 3 || cfg.Fetcher.RatePerSecond != 1 {
		t.Fatalf("unexpected fetcher defaults: %+v", cfg.Fetcher)
	}

	ids := cfg.SessionIDs()
	if strings.Join(ids, ",") != "3,5.1" {
		t.Fatalf("unexpected default sessions %v", ids)
	}
	sessions, err := cfg.PipelineSessions()
	if err != nil {
		t.Fatalf("PipelineSessions() error = %v", err)
	}
	if sessions[0].Layout != layout.DelimitedParagraph {
		t.Fatalf("session 3 layout = %s", sessions[0].Layout)
	}
	five := sessions[1]
	if five.Layout != layout.FieldBlocks || !five.Sources[0].ContactGroups {
		t.Fatalf("unexpected session 5.1: %+v", five)
	}
	if !strings.Contains(five.Sources[0].URL, "session-5") {
		t.Fatalf("unexpected session 5.1 url %q", five.Sources[0].URL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HARVESTER_SERVER_PORT", "7070")
	t.Setenv("HARVESTER_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timeout", func(c *Config) { c.Fetcher.TimeoutSeconds = 0 }, "fetcher.timeout_seconds"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs_bucket"},
		{"s3 bucket", func(c *Config) { c.Storage.Backend = "s3" }, "storage.s3.bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, "unknown storage.backend"},
		{"postgres dsn", func(c *Config) { c.Postgres.Enabled = true }, "postgres.dsn"},
		{"pubsub project", func(c *Config) { c.Publisher.Backend = "pubsub" }, "publisher.project_id"},
		{"headless parallel", func(c *Config) {
			c.Headless.Enabled = true
			c.Headless.MaxParallel = 0
		}, "headless.max_parallel"},
		{"no sessions", func(c *Config) { c.Sessions = nil }, "at least one session"},
		{"bad layout", func(c *Config) {
			c.Sessions = []SessionConfig{{ID: "9", Layout: "tabular", BaseURL: "https://example.org"}}
		}, `layout "tabular"`},
		{"no source", func(c *Config) {
			c.Sessions = []SessionConfig{{ID: "9", Layout: "link_text"}}
		}, "needs a base_url or sources"},
		{"bad pattern", func(c *Config) {
			c.Sessions = []SessionConfig{{ID: "9", Layout: "link_text", BaseURL: "https://example.org", GroupPattern: "("}}
		}, "group_pattern"},
		{"missing id", func(c *Config) {
			c.Sessions = []SessionConfig{{Layout: "link_text", BaseURL: "https://example.org"}}
		}, "sessions[0].id"},
		{"duplicate id", func(c *Config) {
			c.Sessions = append(c.Sessions, SessionConfig{ID: "3", Layout: "link_text", BaseURL: "https://example.org"})
		}, "configured twice"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestSessionIDsNumericOrder(t *testing.T) {
	t.Parallel()

	cfg := Config{Sessions: []SessionConfig{{ID: "10"}, {ID: "2"}, {ID: "5.1"}, {ID: "5.2"}, {ID: "1"}}}
	if got := strings.Join(cfg.SessionIDs(), ","); got != "1,2,5.1,5.2,10" {
		t.Fatalf("SessionIDs() = %s", got)
	}
}

func TestSessionUnknown(t *testing.T) {
	t.Parallel()

	if _, err := (Config{}).Session("7"); err == nil {
		t.Fatalf("expected unknown session error")
	}
}
