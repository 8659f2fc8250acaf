package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/usage"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config holds the bot configuration.
type Config struct {
	Token          string        `yaml:"token"`
	Mode           string        `yaml:"mode"`
	PollingTimeout int           `yaml:"polling_timeout"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	AllowedUpdates []string      `yaml:"allowed_updates"`
	APIURL         string        `yaml:"api_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Access.
	AllowedUserIDs  string `yaml:"allowed_user_ids"` // "*" or comma separated ids
	AdminUserIDs    string `yaml:"admin_user_ids"`   // "-" disables admins
	RequiredChannel string `yaml:"required_channel"` // e.g. "@mychannel"; empty disables the gate

	// Budgets and prices.
	UserBudgets  string       `yaml:"user_budgets"` // "*" or comma separated dollars
	GuestBudget  float64      `yaml:"guest_budget"`
	BudgetPeriod string       `yaml:"budget_period"`
	Prices       usage.Prices `yaml:",inline"`

	budgets usage.Budgets // parsed by validate

	// Provider is the service name of the LLM backend.
	Provider string `yaml:"provider"`

	// Behavior.
	Stream                bool   `yaml:"stream"`
	GroupTriggerKeyword   string `yaml:"group_trigger_keyword"`
	EnableQuoting         bool   `yaml:"enable_quoting"`
	EnableImageGeneration bool   `yaml:"enable_image_generation"`
	EnableTranscription   bool   `yaml:"enable_transcription"`
	BotLanguage           string `yaml:"bot_language"`
	SystemPrompt          string `yaml:"system_prompt"`
	RatePrompt            string `yaml:"rate_prompt"`
	MaxHistoryTokens      int    `yaml:"max_history_tokens"`
	MaxMessageLength      int    `yaml:"max_message_length"`
	FFmpegPath            string `yaml:"ffmpeg_path"`

	// Runtime.
	Workers   int                      `yaml:"workers"`
	QueueSize int                      `yaml:"queue_size"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
	IdleTTL   time.Duration            `yaml:"idle_ttl"`
}

// defaultConfig returns the values that apply before the YAML node is
// decoded. Booleans that default to true live here since a zero value
// cannot be told apart from an explicit false after decoding.
func defaultConfig() Config {
	return Config{
		Stream:                true,
		EnableQuoting:         true,
		EnableImageGeneration: true,
		EnableTranscription:   true,
	}
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = "polling"
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "edited_message", "inline_query", "callback_query"}
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.AllowedUserIDs == "" {
		c.AllowedUserIDs = "*"
	}
	if c.AdminUserIDs == "" {
		c.AdminUserIDs = "-"
	}
	if c.UserBudgets == "" {
		c.UserBudgets = "*"
	}
	if c.BudgetPeriod == "" {
		c.BudgetPeriod = string(usage.PeriodMonthly)
	}
	if c.Provider == "" {
		c.Provider = "provider.openai"
	}
	if c.BotLanguage == "" {
		c.BotLanguage = "en"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = "You are a helpful assistant."
	}
	if c.RatePrompt == "" {
		c.RatePrompt = defaultRatePrompt
	}
	if c.MaxHistoryTokens == 0 {
		c.MaxHistoryTokens = 16000
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 4096
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 24 * time.Hour
	}
}

// validate checks configuration field constraints beyond basic presence checks.
// It is called from Telegram.Validate after defaults have been applied.
func (c *Config) validate() error {
	var errs []error

	if c.Token == "" {
		errs = append(errs, errors.New("telegram: token is required"))
	} else if !tokenPattern.MatchString(c.Token) {
		errs = append(errs, errors.New("telegram: token format invalid (expected <bot_id>:<hash>)"))
	}

	switch c.Mode {
	case "polling":
	case "webhook":
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("telegram: webhook_url is required when mode is \"webhook\""))
		}
	default:
		errs = append(errs, fmt.Errorf("telegram: invalid mode %q (must be \"polling\" or \"webhook\")", c.Mode))
	}

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL))
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		errs = append(errs, fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout))
	}

	if c.MaxMessageLength < 1 || c.MaxMessageLength > 4096 {
		errs = append(errs, fmt.Errorf("telegram: max_message_length must be 1-4096, got %d", c.MaxMessageLength))
	}

	if c.GuestBudget < 0 {
		errs = append(errs, fmt.Errorf("telegram: guest_budget must not be negative, got %v", c.GuestBudget))
	}
	if c.Prices.TokenPrice < 0 || c.Prices.TranscriptionPrice < 0 {
		errs = append(errs, errors.New("telegram: prices must not be negative"))
	}
	for size, p := range c.Prices.ImagePrices {
		if p < 0 {
			errs = append(errs, fmt.Errorf("telegram: image price for %s must not be negative", size))
		}
	}

	budgets, err := usage.ParseBudgets(c.BudgetPeriod, c.UserBudgets, c.GuestBudget)
	if err != nil {
		errs = append(errs, fmt.Errorf("telegram: %w", err))
	}
	for _, b := range budgets.PerUser {
		if b < 0 {
			errs = append(errs, fmt.Errorf("telegram: user budget must not be negative, got %v", b))
		}
	}
	c.budgets = budgets

	if _, ok := catalogs[c.BotLanguage]; !ok {
		errs = append(errs, fmt.Errorf("telegram: unsupported bot_language %q", c.BotLanguage))
	}

	return errors.Join(errs...)
}
