package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/tgpt/internal/security"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsVariables(t *testing.T) {
	t.Setenv("TGPT_TEST_BOT_TOKEN", "123456:from-env")

	path := writeFile(t, t.TempDir(), "tgpt.yaml", `
version: "1"
log:
  level: ${TGPT_TEST_LOG_LEVEL:-debug}
modules:
  channel.telegram:
    token: ${TGPT_TEST_BOT_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want default debug", cfg.Log.Level)
	}

	node, ok := cfg.Modules["channel.telegram"]
	if !ok {
		t.Fatal("channel.telegram module missing")
	}
	var mod struct {
		Token string `yaml:"token"`
	}
	if err := node.Decode(&mod); err != nil {
		t.Fatal(err)
	}
	if mod.Token != "123456:from-env" {
		t.Errorf("token = %q, want value from environment", mod.Token)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tgpt.yaml", `
version: "1"
modules:
  channel.telegram:
    token: ${TGPT_TEST_DEFINITELY_UNSET}
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "TGPT_TEST_DEFINITELY_UNSET") {
		t.Fatalf("Load() error = %v, want unresolved variable", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "TGPT_TEST_DOTENV_KEY=sk-from-dotenv\nTGPT_TEST_DOTENV_SHADOWED=from-file\n")
	path := writeFile(t, dir, "tgpt.yaml", `
version: "1"
data_dir: ${TGPT_TEST_DOTENV_SHADOWED}
modules:
  provider.openai:
    api_key: ${TGPT_TEST_DOTENV_KEY}
`)
	t.Setenv("TGPT_TEST_DOTENV_SHADOWED", "from-env")
	// Registered for cleanup; godotenv sets it with os.Setenv.
	t.Setenv("TGPT_TEST_DOTENV_KEY", "")
	if err := os.Unsetenv("TGPT_TEST_DOTENV_KEY"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != "from-env" {
		t.Errorf("data_dir = %q, the environment must win over .env", cfg.DataDir)
	}

	var mod struct {
		APIKey string `yaml:"api_key"`
	}
	node := cfg.Modules["provider.openai"]
	if err := node.Decode(&mod); err != nil {
		t.Fatal(err)
	}
	if mod.APIKey != "sk-from-dotenv" {
		t.Errorf("api_key = %q, want value from .env", mod.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() of a missing file should fail")
	}
}

func TestConfig_GenericRedacts(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "tgpt.yaml", `
version: "1"
modules:
  channel.telegram:
    token: "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw0"
    workers: 4
  gateway.http:
    auth:
      bearer_token: admin-secret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	generic, err := cfg.Generic()
	if err != nil {
		t.Fatalf("Generic() error: %v", err)
	}
	security.NewRedactor().RedactMap(generic)

	mods := generic["modules"].(map[string]any)
	tg := mods["channel.telegram"].(map[string]any)
	if tg["token"] != security.RedactPlaceholder {
		t.Errorf("token = %v, want redacted", tg["token"])
	}
	if tg["workers"] != 4 {
		t.Errorf("workers = %v, want 4", tg["workers"])
	}
	auth := mods["gateway.http"].(map[string]any)["auth"].(map[string]any)
	if auth["bearer_token"] != security.RedactPlaceholder {
		t.Errorf("bearer_token = %v, want redacted", auth["bearer_token"])
	}
}

func TestLoad_ExpansionScope(t *testing.T) {
	t.Setenv("TGPT_TEST_WORKERS", "4")
	t.Setenv("TGPT_TEST_ID", "007")

	path := writeFile(t, t.TempDir(), "tgpt.yaml", `
version: "1"
# ${TGPT_TEST_ONLY_IN_A_COMMENT} is never looked up
modules:
  channel.telegram:
    workers: ${TGPT_TEST_WORKERS}
    quoted: "${TGPT_TEST_ID}"
    plain: ${TGPT_TEST_ID}
    mixed: id-${TGPT_TEST_ID}-${TGPT_TEST_UNSET_WITH_DEFAULT:-}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	var mod struct {
		Workers int    `yaml:"workers"`
		Quoted  string `yaml:"quoted"`
		Plain   int    `yaml:"plain"`
		Mixed   string `yaml:"mixed"`
	}
	node := cfg.Modules["channel.telegram"]
	if err := node.Decode(&mod); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mod.Workers != 4 || mod.Quoted != "007" || mod.Plain != 7 || mod.Mixed != "id-007-" {
		t.Errorf("module = %+v", mod)
	}
}

func TestLoad_ReportsEveryUnresolvedLine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tgpt.yaml", `version: "1"
modules:
  channel.telegram:
    token: ${TGPT_TEST_UNSET_A}
    secret: ${TGPT_TEST_UNSET_B}
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() = nil error")
	}
	for _, want := range []string{"line 4: unresolved variable TGPT_TEST_UNSET_A", "line 5: unresolved variable TGPT_TEST_UNSET_B"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error misses %q: %v", want, err)
		}
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "tgpt.yaml", "")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("Load() error = %v, want empty file error", err)
	}
}
