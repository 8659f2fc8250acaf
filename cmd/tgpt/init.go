package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/pkg/app"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Environment variables the generated config reads its secrets from.
const (
	envBotToken  = "TELEGRAM_BOT_TOKEN"
	envOpenAIKey = "OPENAI_API_KEY"
	envAdminAuth = "TGPT_ADMIN_TOKEN"
)

var (
	botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{30,}$`)
	userIDsPattern  = regexp.MustCompile(`^(\*|-?\d+(,\s*-?\d+)*)$`)
)

// initAnswers holds what the setup wizard asks.
type initAnswers struct {
	BotToken     string
	OpenAIKey    string
	Model        string
	Mode         string
	WebhookURL   string
	AllowedUsers string
	AdminUsers   string
	Gateway      bool
	AdminToken   string
}

func initCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a configuration and .env file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				d, err := app.DefaultConfigDir()
				if err != nil {
					return err
				}
				dir = d
			}
			cfgPath := filepath.Join(dir, "tgpt.yaml")
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}

			answers := initAnswers{Model: "gpt-4o-mini", Mode: "polling", AllowedUsers: "*"}
			if err := askInit(&answers); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			if answers.Gateway {
				answers.AdminToken = security.NewRandomToken()
			}

			if err := writeInit(dir, answers); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s and %s\n", cfgPath, filepath.Join(dir, ".env"))
			fmt.Fprintf(out, "Check it with: tgpt config check %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to write tgpt.yaml and .env to")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	return cmd
}

// askInit runs the interactive form.
func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("Ask @BotFather for one.").
				EchoMode(huh.EchoModePassword).
				Value(&a.BotToken).
				Validate(func(s string) error {
					if !botTokenPattern.MatchString(strings.TrimSpace(s)) {
						return errors.New("expected <bot id>:<secret>")
					}
					return nil
				}),
			huh.NewInput().
				Title("OpenAI API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.OpenAIKey).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("an API key is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Model").
				Options(huh.NewOptions("gpt-4o-mini", "gpt-4o", "gpt-4.1", "gpt-4.1-mini")...).
				Value(&a.Model),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Allowed users").
				Description(`Comma separated Telegram user ids, or "*" for everyone.`).
				Value(&a.AllowedUsers).
				Validate(validateUserIDs),
			huh.NewInput().
				Title("Admin users").
				Description("Comma separated ids of users without a budget. Leave empty for none.").
				Value(&a.AdminUsers).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					return validateUserIDs(s)
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How should the bot receive updates?").
				Options(
					huh.NewOption("Long polling (no public URL needed)", "polling"),
					huh.NewOption("Webhook through the HTTP gateway", "webhook"),
				).
				Value(&a.Mode),
			huh.NewConfirm().
				Title("Enable the admin HTTP API and metrics?").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Public webhook URL").
				Description("Telegram posts updates to it; it must route to /webhooks/telegram.").
				Value(&a.WebhookURL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "https://") {
						return errors.New("telegram requires an https URL")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return a.Mode != "webhook" }),
	)
	return form.Run()
}

func validateUserIDs(s string) error {
	if !userIDsPattern.MatchString(strings.TrimSpace(s)) {
		return errors.New(`expected "*" or comma separated numeric ids`)
	}
	return nil
}

// initConfig is the generated configuration file.
type initConfig struct {
	Version string             `yaml:"version"`
	Log     security.LogConfig `yaml:"log"`
	Modules map[string]any     `yaml:"modules"`
}

// renderInit returns the config file and .env contents for a.
func renderInit(a initAnswers) (cfg []byte, env []byte, err error) {
	telegram := map[string]any{
		"token":            "${" + envBotToken + "}",
		"mode":             a.Mode,
		"allowed_user_ids": strings.TrimSpace(a.AllowedUsers),
	}
	if a.AdminUsers != "" {
		telegram["admin_user_ids"] = strings.TrimSpace(a.AdminUsers)
	}
	if a.Mode == "webhook" {
		telegram["webhook_url"] = a.WebhookURL
		telegram["webhook_secret"] = security.NewRandomToken()
	}

	modules := map[string]any{
		"channel.telegram": telegram,
		"provider.openai": map[string]any{
			"api_key": "${" + envOpenAIKey + "}",
			"model":   a.Model,
		},
		"usage.sqlite": map[string]any{},
	}
	if a.Gateway || a.Mode == "webhook" {
		gw := map[string]any{"bind": "127.0.0.1:8080"}
		if a.AdminToken != "" {
			gw["auth"] = map[string]any{"bearer_token": "${" + envAdminAuth + "}"}
		}
		modules["gateway.http"] = gw
	}

	cfg, err = yaml.Marshal(initConfig{
		Version: "1",
		Log:     security.LogConfig{Level: "info", Format: "text"},
		Modules: modules,
	})
	if err != nil {
		return nil, nil, err
	}

	vars := map[string]string{
		envBotToken:  strings.TrimSpace(a.BotToken),
		envOpenAIKey: strings.TrimSpace(a.OpenAIKey),
	}
	if a.AdminToken != "" {
		vars[envAdminAuth] = a.AdminToken
	}
	dotenv, err := godotenv.Marshal(vars)
	if err != nil {
		return nil, nil, err
	}
	return cfg, []byte(dotenv + "\n"), nil
}

// writeInit writes tgpt.yaml and .env to dir. The .env file holds the
// secrets and is private to the user.
func writeInit(dir string, a initAnswers) error {
	cfg, env, err := renderInit(a)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), env, 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "tgpt.yaml"), cfg, 0o644)
}
