package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.AnalysisModel != "gpt-4o" {
		t.Errorf("expected analysis model 'gpt-4o', got %q", cfg.LLM.AnalysisModel)
	}
	if cfg.Tutor.ArticleCharLimit != 8000 {
		t.Errorf("expected article limit 8000, got %d", cfg.Tutor.ArticleCharLimit)
	}
	if cfg.Ingest.ChunkWords != 800 {
		t.Errorf("expected 800-word chunks, got %d", cfg.Ingest.ChunkWords)
	}
	if cfg.Suggestions.PubMed != "https://pubmed.ncbi.nlm.nih.gov/" {
		t.Errorf("unexpected pubmed suggestion %q", cfg.Suggestions.PubMed)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: ollama
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Validation.MinChars != 200 {
		t.Errorf("expected default min_chars, got %d", cfg.Validation.MinChars)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("expected 2 static origins, got %v", cfg.Server.AllowedOrigins)
	}
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, path, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "" {
		t.Errorf("expected no path, got %q", path)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestResolveExplicitMissing(t *testing.T) {
	if _, _, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "10000")
	t.Setenv("DATABASE_URL", "postgres://localhost/statstutor")

	cfg, err := parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Mode != "production" {
		t.Errorf("expected production logging, got %q", cfg.Logging.Mode)
	}
	if cfg.Server.Port != 10000 {
		t.Errorf("expected port from env, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver when DATABASE_URL is set, got %q", cfg.Database.Driver)
	}
}

func TestOrigins(t *testing.T) {
	t.Setenv("FRONTEND_URL", "https://tutor.example.edu")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com ,http://localhost:3000,, https://tutor.example.edu")

	cfg, err := parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"https://tutor.example.edu",
		"https://a.example.com",
	}
	if got := cfg.Server.Origins(); !reflect.DeepEqual(got, want) {
		t.Errorf("Origins() = %v, want %v", got, want)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STATSTUTOR_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STATSTUTOR_TEST_VALUE", "")
	os.Unsetenv("STATSTUTOR_TEST_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("STATSTUTOR_TEST_VALUE"); got != "from-dotenv" {
		t.Errorf("expected value from .env, got %q", got)
	}

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should not error: %v", err)
	}
}

func TestSQLitePath(t *testing.T) {
	d := Database{}
	if d.SQLitePath() == "" {
		t.Error("expected non-empty default path")
	}
	d.Path = "/custom/tutor.db"
	if d.SQLitePath() != "/custom/tutor.db" {
		t.Errorf("expected custom path, got %q", d.SQLitePath())
	}
}
