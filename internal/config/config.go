// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, store selection, OTP and image-host credentials, chat behaviour,
// rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Image hosts.
const (
	ImageHostImgBB = "imgbb"
	ImageHostS3    = "s3"
)

// CORSConfig defines Cross-Origin Resource Sharing settings. An empty
// allowlist means every origin is accepted.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and addresses the persistent store.
type StoreConfig struct {
	Driver         string // sqlite|mongo
	DBPath         string // SQLite file
	MongoURI       string
	MongoAuthDB    string        // sessions, users, preferences
	MongoChatDB    string        // one collection per channel
	MongoOpTimeout time.Duration // per call; zero means none
}

// OTPConfig holds the 2factor gateway settings.
type OTPConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ImageConfig holds the image host settings.
type ImageConfig struct {
	Host           string // imgbb|s3
	ImgBBAPIKey    string
	ImgBBEndpoint  string
	URLPrefix      string // text starting with this is an image message
	S3Bucket       string
	S3Region       string
	MaxUploadBytes int64
	MaxPixels      int64 // width*height read from the image header
}

// ChatConfig holds chat channel and console behaviour.
type ChatConfig struct {
	ExternalSessionPrefix string        // identifies external-identity session IDs
	BotWelcomeText        string        // sent after a user's first message
	MaxMessageRunes       int           // longest accepted chat message
	PollInterval          time.Duration // console tail interval
	PollErrorBackoff      time.Duration // console sleep after a failed poll
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	Store StoreConfig
	OTP   OTPConfig
	Image ImageConfig
	Chat  ChatConfig

	// Rate limiting
	RateRPS      float64 // tokens per second (>= 0)
	RateBurst    int     // bucket size (>= 1)
	OTPRateRPS   float64 // stricter bucket for send-otp
	OTPRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for callers with no way to report an error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, fills defaults and validates the result. The
// error joins every problem found, not just the first.
func Load() (Config, error) {
	cfg := fromEnv()
	cfg.normalize()
	return cfg, cfg.validate()
}

func fromEnv() Config {
	return Config{
		Port:              str("PORT", "8000"),
		ReadTimeout:       env("READ_TIMEOUT", 15*time.Second, time.ParseDuration),
		ReadHeaderTimeout: env("READ_HEADER_TIMEOUT", 10*time.Second, time.ParseDuration),
		WriteTimeout:      env("WRITE_TIMEOUT", 30*time.Second, time.ParseDuration),
		IdleTimeout:       env("IDLE_TIMEOUT", 60*time.Second, time.ParseDuration),
		MaxHeaderBytes:    env("MAX_HEADER_BYTES", 1<<20, strconv.Atoi),
		GinMode:           strings.ToLower(str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(str("LOG_LEVEL", "info")),
		LogPretty:      env("LOG_PRETTY", false, parseBool),
		SwaggerEnabled: env("SWAGGER_ENABLED", false, parseBool),
		APIBasePath:    normalizeBasePath(str("API_BASE_PATH", "/")),

		Store: StoreConfig{
			Driver:      strings.ToLower(str("STORE_DRIVER", StoreSQLite)),
			DBPath:      str("DB_PATH", "mobileauth.db"),
			MongoURI:    str("MONGO_URI", ""),
			MongoAuthDB: str("MONGO_AUTH_DB", "mobileauth"),
			MongoChatDB: str("MONGO_CHAT_DB", "chats"),

			MongoOpTimeout: env("MONGO_OP_TIMEOUT", time.Duration(0), time.ParseDuration),
		},
		OTP: OTPConfig{
			APIKey:  str("TWO_FACTOR_API_KEY", ""),
			BaseURL: strings.TrimRight(str("TWO_FACTOR_BASE_URL", "https://2factor.in/API/V1"), "/"),
			Timeout: env("OTP_TIMEOUT", 10*time.Second, time.ParseDuration),
		},
		Image: ImageConfig{
			Host:           strings.ToLower(str("IMAGE_HOST", ImageHostImgBB)),
			ImgBBAPIKey:    str("IMGBB_API_KEY", ""),
			ImgBBEndpoint:  str("IMGBB_ENDPOINT", "https://api.imgbb.com/1/upload"),
			URLPrefix:      str("IMAGE_URL_PREFIX", ""),
			S3Bucket:       str("S3_BUCKET", ""),
			S3Region:       str("S3_REGION", "us-east-1"),
			MaxUploadBytes: env("MAX_UPLOAD_BYTES", int64(10<<20), parseInt64),
			MaxPixels:      env("IMAGE_MAX_PIXELS", int64(50_000_000), parseInt64),
		},
		Chat: ChatConfig{
			ExternalSessionPrefix: str("EXTERNAL_SESSION_PREFIX", "user_"),
			BotWelcomeText:        str("BOT_WELCOME_TEXT", "Thank you for contacting support! An agent will be with you shortly."),
			MaxMessageRunes:       env("MAX_MESSAGE_RUNES", 4000, strconv.Atoi),
			PollInterval:          env("POLL_INTERVAL", time.Second, time.ParseDuration),
			PollErrorBackoff:      env("POLL_ERROR_BACKOFF", 5*time.Second, time.ParseDuration),
		},

		RateRPS:      env("RATE_RPS", 5.0, parseFloat),
		RateBurst:    env("RATE_BURST", 10, strconv.Atoi),
		OTPRateRPS:   env("OTP_RATE_RPS", 0.2, parseFloat),
		OTPRateBurst: env("OTP_RATE_BURST", 3, strconv.Atoi),

		CORS: CORSConfig{AllowedOrigins: splitCSV(str("CORS_ALLOWED_ORIGINS", ""))},

		Security: SecurityConfig{
			EnableHSTS: env("ENABLE_HSTS", false, parseBool),
			HSTSMaxAge: env("HSTS_MAX_AGE", 180*24*time.Hour, time.ParseDuration),
		},

		IdempotencyTTL: env("IDEMPOTENCY_TTL", 24*time.Hour, time.ParseDuration),

		OTEL: OTELConfig{
			Enabled:     env("OTEL_ENABLED", false, parseBool),
			Endpoint:    str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env("OTEL_EXPORTER_OTLP_INSECURE", true, parseBool),
			ServiceName: str("OTEL_SERVICE_NAME", "mobileauth-chat"),
			SampleRatio: env("OTEL_TRACES_SAMPLER_ARG", 1.0, parseFloat),
		},
	}
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.Store.Driver == "mongodb" {
		c.Store.Driver = StoreMongo
	}
	if c.Image.URLPrefix == "" {
		c.Image.URLPrefix = defaultImagePrefix(c.Image)
	}
}

func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q must be one of: debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(!blank(c.Port), "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.Store.Driver {
	case StoreSQLite:
		check(!blank(c.Store.DBPath), "DB_PATH must not be empty")
	case StoreMongo:
		check(!blank(c.Store.MongoURI), "MONGO_URI is required when STORE_DRIVER=mongo")
		check(c.Store.MongoOpTimeout >= 0, "MONGO_OP_TIMEOUT must be >= 0")
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q must be one of: sqlite, mongo", c.Store.Driver))
	}
	check(c.OTP.Timeout > 0, "OTP_TIMEOUT must be > 0")

	switch c.Image.Host {
	case ImageHostImgBB:
	case ImageHostS3:
		check(!blank(c.Image.S3Bucket), "S3_BUCKET is required when IMAGE_HOST=s3")
	default:
		errs = append(errs, fmt.Errorf("IMAGE_HOST %q must be one of: imgbb, s3", c.Image.Host))
	}
	check(!blank(c.Image.URLPrefix), "IMAGE_URL_PREFIX must not be empty")
	check(c.Image.MaxUploadBytes > 0, "MAX_UPLOAD_BYTES must be > 0")
	check(c.Image.MaxPixels > 0, "IMAGE_MAX_PIXELS must be > 0")

	check(!blank(c.Chat.ExternalSessionPrefix), "EXTERNAL_SESSION_PREFIX must not be empty")
	check(c.Chat.MaxMessageRunes > 0, "MAX_MESSAGE_RUNES must be > 0")
	check(c.Chat.PollInterval > 0, "POLL_INTERVAL must be > 0")
	check(c.Chat.PollErrorBackoff > 0, "POLL_ERROR_BACKOFF must be > 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.OTPRateRPS >= 0, "OTP_RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.OTPRateBurst >= 1, "OTP_RATE_BURST must be >= 1")

	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// defaultImagePrefix is where the selected host serves uploads from.
func defaultImagePrefix(ic ImageConfig) string {
	if ic.Host == ImageHostS3 && ic.S3Bucket != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", ic.S3Bucket, ic.S3Region)
	}
	return "https://i.ibb.co/"
}

// env parses the variable k, falling back to def when it is unset, empty
// or malformed.
func env[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func str(k, def string) string {
	return env(k, def, func(v string) (string, error) { return v, nil })
}

func parseFloat(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

func parseInt64(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) }

var errNotBool = errors.New("not a boolean")

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, errNotBool
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing one;
// blank means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
