package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	defaultConfigPath = "config.yaml"

	defaultAPIBaseURL = "http://localhost:4001"
	defaultAPITimeout = 15 * time.Second

	defaultPushRetryAttempts = 5
	defaultPushRetryDelay    = time.Second

	defaultNotificationPageSize = 20
	defaultNotificationFallback = 30 * time.Second

	defaultPaymentPollInterval  = 5 * time.Second
	defaultPaymentPollCap       = 5 * time.Minute
	defaultPaymentFallback      = 5 * time.Minute
	defaultPaymentExpirySanity  = time.Hour
	defaultPaymentRedirectDelay = 3 * time.Second
	defaultPaymentCountdownTick = time.Second

	defaultChatPollInterval   = 5 * time.Second
	defaultMaxAttachmentBytes = 10 << 20
	defaultImageMaxDimension  = 1280
	defaultImageQuality       = 80
	defaultImageTargetBytes   = 1 << 20
	defaultImageMaxAttempts   = 5
	defaultImageMinDimension  = 320
	defaultRecorderStopGrace  = 300 * time.Millisecond

	defaultSandboxAddr       = ":4001"
	defaultSandboxDriver     = "memory"
	defaultSandboxSettleTick = 10 * time.Second
	defaultPixKey            = "loja@example.com"
	defaultPixName           = "Loja Infantil"
	defaultPixCity           = "SAO PAULO"
)

type API struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
}

type Push struct {
	URL           string        `yaml:"url"`
	ChatEnabled   bool          `yaml:"chat_enabled"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type Notifications struct {
	PageSize         int           `yaml:"page_size"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
}

type Payment struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollCap        time.Duration `yaml:"poll_cap"`
	FallbackWindow time.Duration `yaml:"fallback_window"`
	ExpirySanity   time.Duration `yaml:"expiry_sanity"`
	RedirectDelay  time.Duration `yaml:"redirect_delay"`
	CountdownTick  time.Duration `yaml:"countdown_tick"`
}

type Chat struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxAttachmentBytes int64         `yaml:"max_attachment_bytes"`
	ImageMaxDimension  int           `yaml:"image_max_dimension"`
	ImageQuality       int           `yaml:"image_quality"`
	ImageTargetBytes   int           `yaml:"image_target_bytes"`
	ImageMaxAttempts   int           `yaml:"image_max_attempts"`
	ImageMinDimension  int           `yaml:"image_min_dimension"`
	RecorderStopGrace  time.Duration `yaml:"recorder_stop_grace"`
}

type DemoUser struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type Sandbox struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	Database      Database      `yaml:"database"`
	RedisAddr     string        `yaml:"redis_addr"`
	WebhookSecret string        `yaml:"webhook_secret"`
	AutoSettle    time.Duration `yaml:"auto_settle"`
	SettleTick    time.Duration `yaml:"settle_tick"`
	S3            S3            `yaml:"s3"`
	FirebaseCreds string        `yaml:"firebase_credentials"`
	Pix           Pix           `yaml:"pix"`
	AllowedOrigin []string      `yaml:"allowed_origins"`
	Users         []DemoUser    `yaml:"users"`
}

// Pix identifies the receiver encoded into sandbox PIX codes.
type Pix struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	City string `yaml:"city"`
}

type Database struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PublicURL string `yaml:"public_url"`
}

type Config struct {
	API           API           `yaml:"api"`
	Push          Push          `yaml:"push"`
	Notifications Notifications `yaml:"notifications"`
	Payment       Payment       `yaml:"payment"`
	Chat          Chat          `yaml:"chat"`
	Sandbox       Sandbox       `yaml:"sandbox"`
}

// Default returns a configuration populated with the built-in values.
func Default() Config {
	return Config{
		API: API{BaseURL: defaultAPIBaseURL, Timeout: defaultAPITimeout},
		Push: Push{
			RetryAttempts: defaultPushRetryAttempts,
			RetryDelay:    defaultPushRetryDelay,
		},
		Notifications: Notifications{
			PageSize:         defaultNotificationPageSize,
			FallbackInterval: defaultNotificationFallback,
		},
		Payment: Payment{
			PollInterval:   defaultPaymentPollInterval,
			PollCap:        defaultPaymentPollCap,
			FallbackWindow: defaultPaymentFallback,
			ExpirySanity:   defaultPaymentExpirySanity,
			RedirectDelay:  defaultPaymentRedirectDelay,
			CountdownTick:  defaultPaymentCountdownTick,
		},
		Chat: Chat{
			PollInterval:       defaultChatPollInterval,
			MaxAttachmentBytes: defaultMaxAttachmentBytes,
			ImageMaxDimension:  defaultImageMaxDimension,
			ImageQuality:       defaultImageQuality,
			ImageTargetBytes:   defaultImageTargetBytes,
			ImageMaxAttempts:   defaultImageMaxAttempts,
			ImageMinDimension:  defaultImageMinDimension,
			RecorderStopGrace:  defaultRecorderStopGrace,
		},
		Sandbox: Sandbox{
			Addr:       defaultSandboxAddr,
			Database:   Database{Driver: defaultSandboxDriver},
			SettleTick: defaultSandboxSettleTick,
			Pix:        Pix{Key: defaultPixKey, Name: defaultPixName, City: defaultPixCity},
		},
	}
}

// Load reads .env, the YAML file at path (optional) and environment
// overrides, in that order. An empty path falls back to STOREFRONT_CONFIG
// and then to config.yaml.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("STOREFRONT_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("STOREFRONT_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("STOREFRONT_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("STOREFRONT_PUSH_URL"); v != "" {
		cfg.Push.URL = v
	}
	if v := os.Getenv("STOREFRONT_CHAT_PUSH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse STOREFRONT_CHAT_PUSH: %w", err)
		}
		cfg.Push.ChatEnabled = enabled
	}

	if v, err := readIntEnv("STOREFRONT_PUSH_RETRIES"); err != nil {
		return fmt.Errorf("parse STOREFRONT_PUSH_RETRIES: %w", err)
	} else if v != nil {
		cfg.Push.RetryAttempts = *v
	}
	if v, err := readIntEnv("STOREFRONT_NOTIFICATIONS_PAGE_SIZE"); err != nil {
		return fmt.Errorf("parse STOREFRONT_NOTIFICATIONS_PAGE_SIZE: %w", err)
	} else if v != nil {
		cfg.Notifications.PageSize = *v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"STOREFRONT_API_TIMEOUT", &cfg.API.Timeout},
		{"STOREFRONT_PUSH_RETRY_DELAY", &cfg.Push.RetryDelay},
		{"STOREFRONT_NOTIFICATIONS_FALLBACK", &cfg.Notifications.FallbackInterval},
		{"STOREFRONT_PAYMENT_POLL", &cfg.Payment.PollInterval},
		{"STOREFRONT_PAYMENT_POLL_CAP", &cfg.Payment.PollCap},
		{"STOREFRONT_PAYMENT_REDIRECT_DELAY", &cfg.Payment.RedirectDelay},
		{"STOREFRONT_CHAT_POLL", &cfg.Chat.PollInterval},
		{"SANDBOX_AUTO_SETTLE", &cfg.Sandbox.AutoSettle},
	}
	for _, d := range durations {
		v, err := readDurationEnv(d.name)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		if v != nil {
			*d.dst = *v
		}
	}

	if v := os.Getenv("SANDBOX_ADDR"); v != "" {
		cfg.Sandbox.Addr = v
	}
	if v := os.Getenv("SANDBOX_JWT_SECRET"); v != "" {
		cfg.Sandbox.JWTSecret = v
	}
	if v := os.Getenv("SANDBOX_DB_DRIVER"); v != "" {
		cfg.Sandbox.Database.Driver = v
	}
	if v := os.Getenv("SANDBOX_DB_URL"); v != "" {
		cfg.Sandbox.Database.URL = v
	}
	if v := os.Getenv("SANDBOX_REDIS_ADDR"); v != "" {
		cfg.Sandbox.RedisAddr = v
	}
	if v := os.Getenv("SANDBOX_WEBHOOK_SECRET"); v != "" {
		cfg.Sandbox.WebhookSecret = v
	}
	if v := os.Getenv("SANDBOX_FIREBASE_CREDENTIALS"); v != "" {
		cfg.Sandbox.FirebaseCreds = v
	}
	if v := os.Getenv("SANDBOX_S3_BUCKET"); v != "" {
		cfg.Sandbox.S3.Bucket = v
	}
	if v := os.Getenv("SANDBOX_S3_ENDPOINT"); v != "" {
		cfg.Sandbox.S3.Endpoint = v
	}
	if v := os.Getenv("SANDBOX_S3_ACCESS_KEY"); v != "" {
		cfg.Sandbox.S3.AccessKey = v
	}
	if v := os.Getenv("SANDBOX_S3_SECRET_KEY"); v != "" {
		cfg.Sandbox.S3.SecretKey = v
	}
	if v := os.Getenv("SANDBOX_PIX_KEY"); v != "" {
		cfg.Sandbox.Pix.Key = v
	}
	if v := os.Getenv("SANDBOX_ALLOWED_ORIGINS"); v != "" {
		cfg.Sandbox.AllowedOrigin = strings.Split(v, ",")
	}
	return nil
}

// Validate checks that intervals and limits are usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	positive := map[string]time.Duration{
		"notifications.fallback_interval": c.Notifications.FallbackInterval,
		"payment.poll_interval":           c.Payment.PollInterval,
		"payment.poll_cap":                c.Payment.PollCap,
		"payment.fallback_window":         c.Payment.FallbackWindow,
		"payment.expiry_sanity":           c.Payment.ExpirySanity,
		"payment.countdown_tick":          c.Payment.CountdownTick,
		"chat.poll_interval":              c.Chat.PollInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Push.RetryAttempts <= 0 {
		return errors.New("push.retry_attempts must be positive")
	}
	if c.Notifications.PageSize <= 0 {
		return errors.New("notifications.page_size must be positive")
	}
	if c.Chat.MaxAttachmentBytes <= 0 {
		return errors.New("chat.max_attachment_bytes must be positive")
	}
	if c.Chat.ImageMinDimension <= 0 || c.Chat.ImageMinDimension > c.Chat.ImageMaxDimension {
		return errors.New("chat.image_min_dimension must be positive and <= image_max_dimension")
	}
	if c.Chat.ImageMaxAttempts <= 0 {
		return errors.New("chat.image_max_attempts must be positive")
	}
	return nil
}

// PushURL derives the websocket endpoint from the API base URL when no
// explicit push URL is configured.
func (c Config) PushURL() string {
	if c.Push.URL != "" {
		return c.Push.URL
	}
	base := strings.TrimRight(c.API.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// readDurationEnv accepts Go durations ("30s") or plain seconds ("30").
func readDurationEnv(name string) (*time.Duration, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		d := time.Duration(secs) * time.Second
		return &d, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
