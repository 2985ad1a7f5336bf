package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	codeGrammarChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

	DefaultMessage = "Quero participar do evento, meu código é #{code}\n\n*Envie o código para confirmar sua inscrição!*"
	GenericMessage = "Quero participar do evento!"
)

type Config struct {
	AppEnv        string `mapstructure:"APP_ENV"`
	Port          string `mapstructure:"PORT"`
	LogFile       string `mapstructure:"LOG_FILE"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// WhatsApp Cloud API
	VerifyToken   string `mapstructure:"WA_VERIFY_TOKEN"`
	AppSecret     string `mapstructure:"WA_APP_SECRET"`
	PhoneNumberID string `mapstructure:"WA_PHONE_NUMBER_ID"`
	WhatsAppToken string `mapstructure:"WHATSAPP_TOKEN"`
	WAAPIBaseURL  string `mapstructure:"WA_API_BASE_URL"`
	WAComposeURL  string `mapstructure:"WA_COMPOSE_URL"`
	TargetPhone   string `mapstructure:"TARGET_PHONE"`

	DefaultMessage string `mapstructure:"DEFAULT_MESSAGE"`
	GenericMessage string `mapstructure:"GENERIC_MESSAGE"`
	GroupLink      string `mapstructure:"GROUP_LINK"`

	CodeTTLSeconds int           `mapstructure:"CODE_TTL_SECONDS"`
	TokenLength    int           `mapstructure:"TOKEN_LENGTH"`
	CodeLength     int           `mapstructure:"CODE_LENGTH"`
	CodeAlphabet   string        `mapstructure:"CODE_ALPHABET"`
	CodePrefix     string        `mapstructure:"CODE_PREFIX"`
	MaxNameLength  int           `mapstructure:"MAX_NAME_LENGTH"`
	DebounceWindow time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	BotSignatures  []string      `mapstructure:"BOT_SIGNATURES"`

	// Ledger
	LedgerBackend string `mapstructure:"LEDGER_BACKEND"`
	RedisURL      string `mapstructure:"REDIS_URL"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DynamoDBTable string `mapstructure:"DYNAMODB_TABLE"`

	// Collaborators
	SheetsWebhookURL string   `mapstructure:"SHEETS_WEBHOOK_URL"`
	SheetsSecret     string   `mapstructure:"SHEETS_SECRET"`
	SheetsDocName    string   `mapstructure:"SHEETS_DOC_NAME"`
	SheetsTabName    string   `mapstructure:"SHEETS_TAB_NAME"`
	LeadloversURL    string   `mapstructure:"LEADLOVERS_URL"`
	LeadloversToken  string   `mapstructure:"LEADLOVERS_TOKEN"`
	KafkaBrokers     []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic       string   `mapstructure:"KAFKA_TOPIC"`

	DispatchWorkers   int           `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueueSize int           `mapstructure:"DISPATCH_QUEUE_SIZE"`
	DispatchTimeout   time.Duration `mapstructure:"DISPATCH_TIMEOUT"`

	GeoIPDBPath    string  `mapstructure:"GEOIP_DB_PATH"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

// legacy variable names still honoured for the destination phone, in priority order
var targetPhoneFallbacks = []string{"WHATSAPP_REDIRECT_PHONE", "WHATSAPP_PHONE", "WA_TARGET_PHONE", "DEFAULT_TO_PHONE"}

func LoadConfig() (config Config, err error) {
	// .env is optional; deployments usually inject real env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("PORT", "3000")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("WA_VERIFY_TOKEN", "")
	v.SetDefault("WA_APP_SECRET", "")
	v.SetDefault("WA_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_TOKEN", "")
	v.SetDefault("WA_API_BASE_URL", "https://graph.facebook.com/v20.0")
	v.SetDefault("WA_COMPOSE_URL", "https://api.whatsapp.com/send")
	v.SetDefault("TARGET_PHONE", "")
	v.SetDefault("DEFAULT_MESSAGE", DefaultMessage)
	v.SetDefault("GENERIC_MESSAGE", GenericMessage)
	v.SetDefault("GROUP_LINK", "https://go.doutorpastagem.com.br/grupo-vivendo-pecuaria-leite")
	v.SetDefault("CODE_TTL_SECONDS", 86400)
	v.SetDefault("TOKEN_LENGTH", 8)
	v.SetDefault("CODE_LENGTH", 6)
	v.SetDefault("CODE_ALPHABET", "ABCDEFGHJKMNPQRSTUVWXYZ23456789")
	v.SetDefault("CODE_PREFIX", "")
	v.SetDefault("MAX_NAME_LENGTH", 120)
	v.SetDefault("DEBOUNCE_WINDOW", 30*time.Second)
	v.SetDefault("BOT_SIGNATURES", DefaultBotSignatures())
	v.SetDefault("LEDGER_BACKEND", "memory")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("DATABASE_URL", "sqlite://drp.db")
	v.SetDefault("DYNAMODB_TABLE", "")
	v.SetDefault("SHEETS_WEBHOOK_URL", "")
	v.SetDefault("SHEETS_SECRET", "")
	v.SetDefault("SHEETS_DOC_NAME", "UTM Logs")
	v.SetDefault("SHEETS_TAB_NAME", "UTMs Leads WhatsApp")
	v.SetDefault("LEADLOVERS_URL", "")
	v.SetDefault("LEADLOVERS_TOKEN", "")
	v.SetDefault("KAFKA_BROKERS", []string{})
	v.SetDefault("KAFKA_TOPIC", "leads")
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_QUEUE_SIZE", 1000)
	v.SetDefault("DISPATCH_TIMEOUT", 10*time.Second)
	v.SetDefault("GEOIP_DB_PATH", "")
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.AutomaticEnv()

	err = v.Unmarshal(&config)
	if err != nil {
		log.Printf("unable to decode into struct, %v", err)
		return
	}

	if config.TargetPhone == "" {
		for _, key := range targetPhoneFallbacks {
			if val := strings.TrimSpace(v.GetString(key)); val != "" {
				config.TargetPhone = val
				break
			}
		}
	}
	config.BotSignatures = normalizeList(config.BotSignatures)
	config.KafkaBrokers = normalizeList(config.KafkaBrokers)

	err = config.Validate()
	return
}

// TTL is the single lifetime shared by click, state, done and seen entries.
func (c Config) TTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

func (c Config) Validate() error {
	var errs []error
	if c.TokenLength < 5 || c.TokenLength > 20 {
		errs = append(errs, fmt.Errorf("TOKEN_LENGTH must be between 5 and 20, got %d", c.TokenLength))
	}
	if n := c.CodeLength + len(c.CodePrefix); c.CodeLength < 1 || n < 3 || n > 40 {
		errs = append(errs, fmt.Errorf("CODE_PREFIX + CODE_LENGTH must span 3 to 40 characters, got %d", n))
	}
	if c.CodeAlphabet == "" || strings.Trim(c.CodeAlphabet, codeGrammarChars) != "" {
		errs = append(errs, errors.New("CODE_ALPHABET must only contain letters, digits, '-' or '_'"))
	}
	if strings.Trim(c.CodePrefix, codeGrammarChars) != "" {
		errs = append(errs, errors.New("CODE_PREFIX must only contain letters, digits, '-' or '_'"))
	}
	if c.CodeTTLSeconds <= 0 {
		errs = append(errs, errors.New("CODE_TTL_SECONDS must be positive"))
	}
	if c.DebounceWindow <= 0 {
		errs = append(errs, errors.New("DEBOUNCE_WINDOW must be positive"))
	}
	if c.MaxNameLength <= 0 {
		errs = append(errs, errors.New("MAX_NAME_LENGTH must be positive"))
	}
	switch c.LedgerBackend {
	case "memory", "redis", "postgres", "dynamodb":
	default:
		errs = append(errs, fmt.Errorf("unsupported LEDGER_BACKEND %q", c.LedgerBackend))
	}
	if c.LedgerBackend == "dynamodb" && c.DynamoDBTable == "" {
		errs = append(errs, errors.New("DYNAMODB_TABLE is required for the dynamodb ledger"))
	}
	return errors.Join(errs...)
}

// DefaultBotSignatures lists crawler, link-preview and scripted client markers.
// "bot" only counts as a product token, so handsets such as CUBOT still pass.
func DefaultBotSignatures() []string {
	return []string{
		"bot/", "bot;", "bot-", "+http", "crawler", "spider", "preview",
		"facebookexternalhit", "whatsapp", "telegrambot", "slackbot", "discordbot",
		"curl", "wget", "python-requests", "go-http-client", "headless", "lighthouse",
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
