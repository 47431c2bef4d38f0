package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM         LLM         `yaml:"llm"`
	Database    Database    `yaml:"database"`
	Tutor       Tutor       `yaml:"tutor"`
	Validation  Validation  `yaml:"validation"`
	Server      Server      `yaml:"server"`
	Lock        Lock        `yaml:"lock"`
	Ingest      Ingest      `yaml:"ingest"`
	Logging     Logging     `yaml:"logging"`
	Suggestions Suggestions `yaml:"suggestions"`
}

type LLM struct {
	Provider             string `yaml:"provider"`
	BaseURL              string `yaml:"base_url"`
	APIKeyEnv            string `yaml:"api_key_env"`
	AnalysisModel        string `yaml:"analysis_model"`
	ChatModel            string `yaml:"chat_model"`
	EmbeddingModel       string `yaml:"embedding_model"`
	OllamaURL            string `yaml:"ollama_url"`
	OllamaModel          string `yaml:"ollama_model"`
	OllamaEmbeddingModel string `yaml:"ollama_embedding_model"`
	MaxTokens            int    `yaml:"max_tokens"`
	ChatMaxTokens        int    `yaml:"chat_max_tokens"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
}

type Database struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	URLEnv        string `yaml:"url_env"`
	MatchFunction string `yaml:"match_function"`
	MaxConns      int32  `yaml:"max_conns"`
}

type Tutor struct {
	ArticleCharLimit int `yaml:"article_char_limit"`
	TitleCharLimit   int `yaml:"title_char_limit"`
	RetrievalK       int `yaml:"retrieval_k"`
	ReadAttempts     int `yaml:"read_attempts"`
}

type Validation struct {
	MinChars             int `yaml:"min_chars"`
	SubstantialChars     int `yaml:"substantial_chars"`
	VerySubstantialChars int `yaml:"very_substantial_chars"`
}

type Server struct {
	Host                 string   `yaml:"host"`
	Port                 int      `yaml:"port"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	FrontendURLEnv       string   `yaml:"frontend_url_env"`
	AllowedOriginsEnv    string   `yaml:"allowed_origins_env"`
	PreviewOriginPattern string   `yaml:"preview_origin_pattern"`
	MaxUploadMB          int      `yaml:"max_upload_mb"`
}

type Lock struct {
	Backend      string `yaml:"backend"`
	RedisAddrEnv string `yaml:"redis_addr_env"`
	TTLSeconds   int    `yaml:"ttl_seconds"`
}

type Ingest struct {
	ChunkWords  int `yaml:"chunk_words"`
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
}

type Logging struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"`
}

// Suggestions are the external search resources offered when an upload is rejected.
type Suggestions struct {
	BruKnow       string `yaml:"bruknow" json:"bruKnow"`
	PubMed        string `yaml:"pubmed" json:"pubmed"`
	Nature        string `yaml:"nature" json:"nature"`
	ScienceDirect string `yaml:"sciencedirect" json:"sciencedirect"`
}

// ConfigDir returns the XDG config directory for statstutor.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "statstutor")
	}
	return filepath.Join(homeDir(), ".config", "statstutor")
}

// DataDir returns the XDG data directory for statstutor.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "statstutor")
}

// ErrNoConfigFile is returned by ResolveConfigPath when no file exists in
// any searched location.
var ErrNoConfigFile = errors.New("no config file found")

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/statstutor/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n  ./config.yaml", ErrNoConfigFile, xdgConfig)
}

// LoadEnvFile loads a .env file into the process environment. A missing
// file is not an error; variables already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Resolve loads the config at the resolved path, or the embedded defaults
// when no config file exists and none was requested explicitly.
func Resolve(explicit string) (*Config, string, error) {
	path, err := ResolveConfigPath(explicit)
	if err != nil {
		if explicit == "" && errors.Is(err, ErrNoConfigFile) {
			cfg, err := parse(DefaultConfigYAML)
			return cfg, "", err
		}
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults and then
// environment overrides.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:             "openai",
			BaseURL:              "https://api.openai.com/v1",
			APIKeyEnv:            "OPENAI_API_KEY",
			AnalysisModel:        "gpt-4o",
			ChatModel:            "gpt-4o-mini",
			EmbeddingModel:       "text-embedding-3-small",
			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "qwen2.5:7b",
			OllamaEmbeddingModel: "nomic-embed-text",
			MaxTokens:            500,
			ChatMaxTokens:        400,
			TimeoutSeconds:       60,
		},
		Database: Database{
			Driver:   "sqlite",
			URLEnv:   "DATABASE_URL",
			MaxConns: 10,
		},
		Tutor: Tutor{
			ArticleCharLimit: 8000,
			TitleCharLimit:   80,
			RetrievalK:       5,
			ReadAttempts:     3,
		},
		Validation: Validation{
			MinChars:             200,
			SubstantialChars:     2000,
			VerySubstantialChars: 10000,
		},
		Server: Server{
			Host:              "0.0.0.0",
			Port:              8000,
			AllowedOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			FrontendURLEnv:    "FRONTEND_URL",
			AllowedOriginsEnv: "ALLOWED_ORIGINS",
			MaxUploadMB:       25,
		},
		Lock: Lock{
			Backend:      "local",
			RedisAddrEnv: "REDIS_ADDR",
			TTLSeconds:   120,
		},
		Ingest: Ingest{
			ChunkWords:  800,
			BatchSize:   16,
			Concurrency: 4,
		},
		Logging: Logging{Level: "info", Mode: "development"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if os.Getenv("ENVIRONMENT") == "production" {
		c.Logging.Mode = "production"
	}
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 {
		c.Server.Port = p
	}
	if c.Database.URL() != "" && c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Driver = "postgres"
	}
}

// APIKey returns the provider API key from the configured environment variable.
func (l LLM) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}

// Timeout bounds every external call made on behalf of one request step.
func (l LLM) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// URL returns the postgres connection string, if configured.
func (d Database) URL() string {
	if d.URLEnv == "" {
		return ""
	}
	return os.Getenv(d.URLEnv)
}

// SQLitePath returns the effective database file path.
func (d Database) SQLitePath() string {
	if d.Path != "" {
		return d.Path
	}
	return filepath.Join(DataDir(), "statstutor.db")
}

// RedisAddr returns the Redis address used by the redis lock backend.
func (l Lock) RedisAddr() string {
	if l.RedisAddrEnv == "" {
		return ""
	}
	return os.Getenv(l.RedisAddrEnv)
}

// TTL is the lease length of a per-conversation lock.
func (l Lock) TTL() time.Duration {
	if l.TTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(l.TTLSeconds) * time.Second
}

// Origins returns the CORS allow-list: the static list, then the frontend
// URL, then the comma-separated extra origins, without duplicates.
func (s Server) Origins() []string {
	origins := append([]string(nil), s.AllowedOrigins...)
	if s.FrontendURLEnv != "" {
		if u := strings.TrimSpace(os.Getenv(s.FrontendURLEnv)); u != "" {
			origins = append(origins, u)
		}
	}
	if s.AllowedOriginsEnv != "" {
		for _, o := range strings.Split(os.Getenv(s.AllowedOriginsEnv), ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	seen := make(map[string]bool, len(origins))
	unique := origins[:0]
	for _, o := range origins {
		if seen[o] {
			continue
		}
		seen[o] = true
		unique = append(unique, o)
	}
	return unique
}

// Addr returns host:port for the HTTP listener.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
