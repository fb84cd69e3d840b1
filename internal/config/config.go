// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/inc-submissions-harvester/internal/layout"
	"github.com/JakeFAU/inc-submissions-harvester/internal/logging"
	"github.com/JakeFAU/inc-submissions-harvester/internal/pipeline"
	"github.com/JakeFAU/inc-submissions-harvester/internal/policy/backoff"
	"github.com/JakeFAU/inc-submissions-harvester/internal/telemetry"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging     logging.Config    `mapstructure:"logging"`
	Telemetry   telemetry.Config  `mapstructure:"telemetry"`
	Fetcher     FetcherConfig     `mapstructure:"fetcher"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Taxonomy    TaxonomyConfig    `mapstructure:"taxonomy"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Publisher   PublisherConfig   `mapstructure:"publisher"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Server      ServerConfig      `mapstructure:"server"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Sessions    []SessionConfig   `mapstructure:"sessions"`
}

// FetcherConfig governs retries, pacing and the request fingerprint.
type FetcherConfig struct {
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	MaxRetries      int      `mapstructure:"max_retries"`
	BackoffBaseMs   int      `mapstructure:"backoff_base_ms"`
	BackoffJitterMs int      `mapstructure:"backoff_jitter_ms"`
	BackoffMaxMs    int      `mapstructure:"backoff_max_ms"`
	RatePerSecond   float64  `mapstructure:"rate_per_second"`
	Burst           int      `mapstructure:"burst"`
	UserAgents      []string `mapstructure:"user_agents"`
	TLSFingerprint  string   `mapstructure:"tls_fingerprint"`
}

// HeadlessConfig configures the chromedp challenge fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	// SmallBodyBytes marks short script-heavy bodies as challenge pages.
	SmallBodyBytes int `mapstructure:"small_body_bytes"`
}

// CacheConfig controls the badger page cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	InMemory   bool   `mapstructure:"in_memory"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// TaxonomyConfig points at the reference files.
type TaxonomyConfig struct {
	AuthorsFile         string `mapstructure:"authors_file"`
	TopicsFile          string `mapstructure:"topics_file"`
	KeyElementsFile     string `mapstructure:"key_elements_file"`
	AuthorOverridesFile string `mapstructure:"author_overrides_file"`
	TopicOverridesFile  string `mapstructure:"topic_overrides_file"`
}

// StorageConfig selects the snapshot BlobStore.
type StorageConfig struct {
	Backend   string   `mapstructure:"backend"`
	LocalDir  string   `mapstructure:"local_dir"`
	Prefix    string   `mapstructure:"prefix"`
	GCSBucket string   `mapstructure:"gcs_bucket"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// PostgresConfig controls the run ledger.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PublisherConfig selects where index tasks go.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// PersistenceConfig addresses the records service used by sync.
type PersistenceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIToken       string `mapstructure:"api_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig tunes a run.
type PipelineConfig struct {
	Concurrency     int  `mapstructure:"concurrency"`
	DetectLanguages bool `mapstructure:"detect_languages"`
	// MinDetectChars is the shortest text handed to language detection.
	MinDetectChars int `mapstructure:"min_detect_chars"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// ScheduleConfig sets the periodic run interval.
type ScheduleConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// SessionConfig describes one negotiating session. The flat page keys are
// shorthand for a single source and are used when Sources is empty. Sessions
// are a list because ids such as "5.1" would split on viper's key delimiter.
type SessionConfig struct {
	ID                     string         `mapstructure:"id"`
	Layout                 string         `mapstructure:"layout"`
	BaseURL                string         `mapstructure:"base_url"`
	DocumentType           string         `mapstructure:"document_type"`
	Groups                 []string       `mapstructure:"groups"`
	GroupPattern           string         `mapstructure:"group_pattern"`
	PreventDuplicateGroups bool           `mapstructure:"prevent_duplicate_groups"`
	ContactGroups          bool           `mapstructure:"contact_groups"`
	Sources                []SourceConfig `mapstructure:"sources"`
}

// SourceConfig is one index page of a session.
type SourceConfig struct {
	URL                    string   `mapstructure:"url"`
	DocumentType           string   `mapstructure:"document_type"`
	Groups                 []string `mapstructure:"groups"`
	GroupPattern           string   `mapstructure:"group_pattern"`
	PreventDuplicateGroups bool     `mapstructure:"prevent_duplicate_groups"`
	ContactGroups          bool     `mapstructure:"contact_groups"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Sessions) == 0 {
		cfg.Sessions = DefaultSessions()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "inc-submissions-harvester")
	v.SetDefault("telemetry.sample_ratio", 0.1)
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.backoff_base_ms", 1000)
	v.SetDefault("fetcher.backoff_jitter_ms", 2000)
	v.SetDefault("fetcher.backoff_max_ms", 10000)
	v.SetDefault("fetcher.rate_per_second", 1.0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("fetcher.tls_fingerprint", "chrome")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.small_body_bytes", 4096)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl_minutes", 360)
	v.SetDefault("taxonomy.authors_file", "data/taxonomies/authors.json")
	v.SetDefault("taxonomy.topics_file", "data/taxonomies/topics.json")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data/processed")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("postgres.table", "harvest_runs")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("publisher.backend", "memory")
	v.SetDefault("publisher.topic", "submission-index")
	v.SetDefault("persistence.base_url", "http://localhost:8090")
	v.SetDefault("persistence.timeout_seconds", 30)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.detect_languages", false)
	v.SetDefault("pipeline.min_detect_chars", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.interval_minutes", 1440)
}

const unepDocuments = "https://www.unep.org/inc-plastic-pollution/session-%s/documents/%s"

// DefaultSessions are used when the config names none.
func DefaultSessions() []SessionConfig {
	return []SessionConfig{
		{
			ID:           "3",
			Layout:       string(layout.DelimitedParagraph),
			BaseURL:      fmt.Sprintf(unepDocuments, "3", "in-session"),
			DocumentType: "statement",
			GroupPattern: `^Part`,
		},
		{
			ID:            "5.1",
			Layout:        string(layout.FieldBlocks),
			BaseURL:       fmt.Sprintf(unepDocuments, "5", "in-session"),
			ContactGroups: true,
		},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Fetcher.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("fetcher.timeout_seconds must be > 0"))
	}
	if c.Fetcher.MaxRetries < 0 {
		errs = append(errs, errors.New("fetcher.max_retries must be >= 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if c.Cache.Enabled && !c.Cache.InMemory && c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required unless cache.in_memory is set"))
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn must be set when postgres is enabled"))
	}
	switch c.Publisher.Backend {
	case "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			errs = append(errs, errors.New("publisher.project_id and publisher.topic are required for pubsub"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown publisher.backend %q", c.Publisher.Backend))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.sample_ratio must be within [0, 1]"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if len(c.Sessions) == 0 {
		errs = append(errs, errors.New("at least one session must be configured"))
	}
	seen := make(map[string]bool, len(c.Sessions))
	for i, sc := range c.Sessions {
		switch {
		case sc.ID == "":
			errs = append(errs, fmt.Errorf("sessions[%d].id is required", i))
			continue
		case seen[sc.ID]:
			errs = append(errs, fmt.Errorf("session %s is configured twice", sc.ID))
			continue
		}
		seen[sc.ID] = true
		if _, err := c.Session(sc.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Timeout returns the per-request fetch timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// Backoff converts the retry delays into a policy.
func (c Config) Backoff() backoff.Policy {
	return backoff.Policy{
		Base:   time.Duration(c.Fetcher.BackoffBaseMs) * time.Millisecond,
		Jitter: time.Duration(c.Fetcher.BackoffJitterMs) * time.Millisecond,
		Max:    time.Duration(c.Fetcher.BackoffMaxMs) * time.Millisecond,
	}
}

// ScheduleInterval is the serve loop period.
func (c Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// SessionIDs returns configured session ids in numeric order.
func (c Config) SessionIDs() []string {
	ids := make([]string, 0, len(c.Sessions))
	for _, sc := range c.Sessions {
		ids = append(ids, sc.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.ParseFloat(ids[i], 64)
		b, berr := strconv.ParseFloat(ids[j], 64)
		if aerr == nil && berr == nil && a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Session converts one session entry into its pipeline form.
func (c Config) Session(id string) (pipeline.Session, error) {
	idx := slices.IndexFunc(c.Sessions, func(sc SessionConfig) bool { return sc.ID == id })
	if idx < 0 {
		return pipeline.Session{}, fmt.Errorf("session %s: %w", id, pipeline.ErrUnknownSession)
	}
	sc := c.Sessions[idx]
	kind := layout.Kind(sc.Layout)
	if !kind.Valid() {
		return pipeline.Session{}, fmt.Errorf("session %s: layout %q is not one of %v", id, sc.Layout, layout.Kinds())
	}
	sources := sc.Sources
	if len(sources) == 0 && sc.BaseURL != "" {
		sources = []SourceConfig{{
			URL:                    sc.BaseURL,
			DocumentType:           sc.DocumentType,
			Groups:                 sc.Groups,
			GroupPattern:           sc.GroupPattern,
			PreventDuplicateGroups: sc.PreventDuplicateGroups,
			ContactGroups:          sc.ContactGroups,
		}}
	}
	if len(sources) == 0 {
		return pipeline.Session{}, fmt.Errorf("session %s needs a base_url or sources", id)
	}
	out := pipeline.Session{ID: id, Layout: kind}
	for i, src := range sources {
		if src.URL == "" {
			return pipeline.Session{}, fmt.Errorf("session %s: sources[%d].url is required", id, i)
		}
		ps := pipeline.Source{
			URL:                    src.URL,
			DocumentType:           src.DocumentType,
			Groups:                 src.Groups,
			PreventDuplicateGroups: src.PreventDuplicateGroups,
			ContactGroups:          src.ContactGroups,
		}
		if src.GroupPattern != "" {
			re, err := regexp.Compile(src.GroupPattern)
			if err != nil {
				return pipeline.Session{}, fmt.Errorf("session %s: group_pattern: %w", id, err)
			}
			ps.GroupPattern = re
		}
		out.Sources = append(out.Sources, ps)
	}
	return out, nil
}

// PipelineSessions converts every configured session, in SessionIDs order.
func (c Config) PipelineSessions() ([]pipeline.Session, error) {
	out := make([]pipeline.Session, 0, len(c.Sessions))
	for _, id := range c.SessionIDs() {
		s, err := c.Session(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
