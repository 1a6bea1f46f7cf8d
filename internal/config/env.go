package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

// InteractionEnv configures the interaction request registry.
type InteractionEnv struct {
	Enabled             bool  `envconfig:"INTERACTION_ENABLED" default:"true"`
	DefaultTimeoutMs    int64 `envconfig:"INTERACTION_TIMEOUT_MS" default:"60000"`
	MaxPendingRequests  int   `envconfig:"INTERACTION_MAX_PENDING" default:"10"`
	AutoRejectOnTimeout bool  `envconfig:"INTERACTION_AUTO_REJECT" default:"true"`
}

func (e *InteractionEnv) DefaultTimeout() time.Duration {
	return time.Duration(e.DefaultTimeoutMs) * time.Millisecond
}

// PromptEnv configures the unsolicited prompt queue.
type PromptEnv struct {
	Enabled      bool `envconfig:"PROMPT_ENABLED" default:"false"`
	MaxQueueSize int  `envconfig:"PROMPT_MAX_QUEUE" default:"10"`
	AutoProcess  bool `envconfig:"PROMPT_AUTO_PROCESS" default:"true"`
}

// TelegramEnv configures the Telegram channel client. The channel is active
// only when both BotToken and ChatID are set.
type TelegramEnv struct {
	BotToken              string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID                string `envconfig:"TELEGRAM_CHAT_ID"`
	EnablePromptReceiving bool   `envconfig:"TELEGRAM_ENABLE_PROMPTS" default:"true"`
	PollTimeoutSec        int    `envconfig:"TELEGRAM_POLL_TIMEOUT_SEC" default:"30"`
	APIBaseURL            string `envconfig:"TELEGRAM_API_BASE_URL" default:"https://api.telegram.org"`
}

func (e *TelegramEnv) Configured() bool {
	return e.BotToken != "" && e.ChatID != ""
}

// WebhookEnv configures the outbound webhook notifier. Active when URL is set.
type WebhookEnv struct {
	URL    string `envconfig:"WEBHOOK_URL"`
	Secret string `envconfig:"WEBHOOK_SECRET"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@example.com"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".opbridge/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"opbridge/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type Env struct {
	BaseEnv
	InteractionEnv
	PromptEnv
	TelegramEnv
	WebhookEnv
	VAPIDEnv
	StorageEnv
}

const namespace = "OPBRIDGE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func InteractionEnvFromEnv(env *Env) *InteractionEnv {
	return &env.InteractionEnv
}

func PromptEnvFromEnv(env *Env) *PromptEnv {
	return &env.PromptEnv
}

func TelegramEnvFromEnv(env *Env) *TelegramEnv {
	return &env.TelegramEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}
