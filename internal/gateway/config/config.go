package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Env         string
	Verbose     bool
	DatabaseURL string
	SQLitePath  string
	// PublicBaseURL prefixes asset URLs handed to clients.
	PublicBaseURL  string
	AllowedOrigins []string

	Artifact ArtifactConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Render   RenderConfig
	Ingest   IngestConfig
}

type ArtifactConfig struct {
	// Backend is memory, sql or blob. Empty picks sql when a database is
	// configured and memory otherwise.
	Backend   string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether enough is configured to reach a bucket.
func (c ArtifactConfig) CanUseS3() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

type LLMConfig struct {
	Provider  string
	Model     string
	GeminiKey string
	GroqKey   string
	RPM       int
	Retries   int
}

type PipelineConfig struct {
	MaxRevisions  int
	ApprovalScore int
}

type RenderConfig struct {
	APIURL string
	APIKey string
}

type IngestConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// NewViper loads envFile (or .env when empty) into the process environment
// and returns a viper instance with every key defaulted. Callers may bind
// flags onto it before calling FromViper.
func NewViper(envFile string) (*viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", ":8081")
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("VERBOSE", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("ARTIFACT_BACKEND", "")
	v.SetDefault("ARTIFACT_S3_ENDPOINT", "")
	v.SetDefault("ARTIFACT_S3_REGION", "us-east-1")
	v.SetDefault("ARTIFACT_S3_ACCESS_KEY", "")
	v.SetDefault("ARTIFACT_S3_SECRET_KEY", "")
	v.SetDefault("ARTIFACT_S3_BUCKET", "adflow-artifacts")
	v.SetDefault("ARTIFACT_S3_USE_SSL", true)
	v.SetDefault("LLM_PROVIDER", "")
	v.SetDefault("LLM_MODEL", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GROQ_API_KEY", "")
	v.SetDefault("LLM_RPM", 30)
	v.SetDefault("LLM_RETRIES", 3)
	v.SetDefault("PIPELINE_MAX_REVISIONS", 3)
	v.SetDefault("PIPELINE_APPROVAL_SCORE", 8)
	v.SetDefault("RENDER_API_URL", "")
	v.SetDefault("RENDER_API_KEY", "")
	v.SetDefault("INGEST_TIMEOUT", "30s")
	v.SetDefault("INGEST_USER_AGENT", "")
}

// Load reads configuration from the environment and .env.
func Load() (*Config, error) {
	v, err := NewViper("")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	if env == "" {
		env = "local"
	}
	cfg := &Config{
		Port:           normalizePort(v.GetString("PORT")),
		Env:            env,
		Verbose:        v.GetBool("VERBOSE"),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		SQLitePath:     strings.TrimSpace(v.GetString("SQLITE_PATH")),
		PublicBaseURL:  strings.TrimRight(strings.TrimSpace(v.GetString("PUBLIC_BASE_URL")), "/"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		Artifact: ArtifactConfig{
			Backend:   strings.ToLower(strings.TrimSpace(v.GetString("ARTIFACT_BACKEND"))),
			Endpoint:  strings.TrimSpace(v.GetString("ARTIFACT_S3_ENDPOINT")),
			Region:    strings.TrimSpace(v.GetString("ARTIFACT_S3_REGION")),
			AccessKey: strings.TrimSpace(v.GetString("ARTIFACT_S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(v.GetString("ARTIFACT_S3_SECRET_KEY")),
			Bucket:    strings.TrimSpace(v.GetString("ARTIFACT_S3_BUCKET")),
			UseSSL:    v.GetBool("ARTIFACT_S3_USE_SSL"),
		},
		LLM: LLMConfig{
			Provider:  strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
			Model:     strings.TrimSpace(v.GetString("LLM_MODEL")),
			GeminiKey: strings.TrimSpace(v.GetString("GEMINI_API_KEY")),
			GroqKey:   strings.TrimSpace(v.GetString("GROQ_API_KEY")),
			RPM:       v.GetInt("LLM_RPM"),
			Retries:   v.GetInt("LLM_RETRIES"),
		},
		Pipeline: PipelineConfig{
			MaxRevisions:  v.GetInt("PIPELINE_MAX_REVISIONS"),
			ApprovalScore: v.GetInt("PIPELINE_APPROVAL_SCORE"),
		},
		Render: RenderConfig{
			APIURL: strings.TrimSpace(v.GetString("RENDER_API_URL")),
			APIKey: strings.TrimSpace(v.GetString("RENDER_API_KEY")),
		},
		Ingest: IngestConfig{
			Timeout:   v.GetDuration("INGEST_TIMEOUT"),
			UserAgent: strings.TrimSpace(v.GetString("INGEST_USER_AGENT")),
		},
	}
	if env == "local" {
		applyLocal(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Artifact.Backend {
	case "", "memory", "sql", "blob":
	default:
		return fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.Artifact.Backend)
	}
	if c.Artifact.Backend == "sql" && c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("ARTIFACT_BACKEND=sql needs DATABASE_URL or SQLITE_PATH")
	}
	switch c.LLM.Provider {
	case "", "gemini", "groq", "fake":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.Pipeline.MaxRevisions < 1 {
		return fmt.Errorf("PIPELINE_MAX_REVISIONS must be at least 1, got %d", c.Pipeline.MaxRevisions)
	}
	if c.Pipeline.ApprovalScore < 1 || c.Pipeline.ApprovalScore > 10 {
		return fmt.Errorf("PIPELINE_APPROVAL_SCORE must be within 1..10, got %d", c.Pipeline.ApprovalScore)
	}
	return nil
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ":8081"
	}
	if strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
