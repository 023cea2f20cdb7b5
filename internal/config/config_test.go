package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8000" || cfg.APIBasePath != "/" {
		t.Fatalf("server defaults unexpected: port=%q base=%q", cfg.Port, cfg.APIBasePath)
	}
	if cfg.Store.Driver != StoreSQLite || cfg.Store.MongoAuthDB != "mobileauth" || cfg.Store.MongoChatDB != "chats" || cfg.Store.MongoOpTimeout != 0 {
		t.Fatalf("store defaults unexpected: %+v", cfg.Store)
	}
	if cfg.OTP.BaseURL != "https://2factor.in/API/V1" || cfg.OTP.Timeout != 10*time.Second {
		t.Fatalf("otp defaults unexpected: %+v", cfg.OTP)
	}
	if cfg.Image.Host != ImageHostImgBB || cfg.Image.URLPrefix != "https://i.ibb.co/" || cfg.Image.MaxUploadBytes != 10<<20 || cfg.Image.MaxPixels != 50_000_000 {
		t.Fatalf("image defaults unexpected: %+v", cfg.Image)
	}
	if cfg.Chat.ExternalSessionPrefix != "user_" ||
		cfg.Chat.PollInterval != time.Second ||
		cfg.Chat.PollErrorBackoff != 5*time.Second ||
		cfg.Chat.MaxMessageRunes != 4000 ||
		!strings.HasPrefix(cfg.Chat.BotWelcomeText, "Thank you for contacting support!") {
		t.Fatalf("chat defaults unexpected: %+v", cfg.Chat)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("CORS allowlist should default to empty (allow all)")
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // normalizes to "release"

	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/")

	t.Setenv("STORE_DRIVER", "MongoDB")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_CHAT_DB", "support")
	t.Setenv("MONGO_OP_TIMEOUT", "750ms")

	t.Setenv("TWO_FACTOR_API_KEY", "k")
	t.Setenv("TWO_FACTOR_BASE_URL", "http://otp.local/API/V1/")
	t.Setenv("OTP_TIMEOUT", "3s")

	t.Setenv("IMAGE_HOST", "S3")
	t.Setenv("S3_BUCKET", "chat-images")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("IMAGE_URL_PREFIX", "https://cdn.example/")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")

	t.Setenv("EXTERNAL_SESSION_PREFIX", "ext_")
	t.Setenv("BOT_WELCOME_TEXT", "hello")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("POLL_ERROR_BACKOFF", "2s")

	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10
	t.Setenv("OTP_RATE_RPS", "0.5")
	t.Setenv("OTP_RATE_BURST", "2")

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.Store.Driver != StoreMongo || cfg.Store.MongoChatDB != "support" || cfg.Store.MongoOpTimeout != 750*time.Millisecond {
		t.Fatalf("store unexpected: %+v", cfg.Store)
	}
	if cfg.OTP.APIKey != "k" || cfg.OTP.BaseURL != "http://otp.local/API/V1" || cfg.OTP.Timeout != 3*time.Second {
		t.Fatalf("otp unexpected: %+v", cfg.OTP)
	}
	if cfg.Image.Host != ImageHostS3 || cfg.Image.S3Bucket != "chat-images" || cfg.Image.S3Region != "eu-west-1" ||
		cfg.Image.URLPrefix != "https://cdn.example/" || cfg.Image.MaxUploadBytes != 2048 {
		t.Fatalf("image unexpected: %+v", cfg.Image)
	}
	if cfg.Chat.ExternalSessionPrefix != "ext_" || cfg.Chat.BotWelcomeText != "hello" ||
		cfg.Chat.PollInterval != 250*time.Millisecond || cfg.Chat.PollErrorBackoff != 2*time.Second {
		t.Fatalf("chat unexpected: %+v", cfg.Chat)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 || cfg.OTPRateRPS != 0.5 || cfg.OTPRateBurst != 2 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_S3DefaultImagePrefix(t *testing.T) {
	t.Setenv("IMAGE_HOST", "s3")
	t.Setenv("S3_BUCKET", "chat-media")
	t.Setenv("S3_REGION", "ap-south-1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if want := "https://chat-media.s3.ap-south-1.amazonaws.com/"; cfg.Image.URLPrefix != want {
		t.Fatalf("prefix = %q, want %q", cfg.Image.URLPrefix, want)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown store", map[string]string{"STORE_DRIVER": "postgres"}, "STORE_DRIVER"},
		{"mongo without uri", map[string]string{"STORE_DRIVER": "mongo"}, "MONGO_URI"},
		{"otp timeout", map[string]string{"OTP_TIMEOUT": "0s"}, "OTP_TIMEOUT"},
		{"unknown image host", map[string]string{"IMAGE_HOST": "ftp"}, "IMAGE_HOST"},
		{"s3 without bucket", map[string]string{"IMAGE_HOST": "s3"}, "S3_BUCKET"},
		{"empty prefix", map[string]string{"IMAGE_URL_PREFIX": " "}, "IMAGE_URL_PREFIX"},
		{"upload limit", map[string]string{"MAX_UPLOAD_BYTES": "0"}, "MAX_UPLOAD_BYTES"},
		{"pixel limit", map[string]string{"IMAGE_MAX_PIXELS": "0"}, "IMAGE_MAX_PIXELS"},
		{"mongo op timeout negative", map[string]string{"STORE_DRIVER": "mongo", "MONGO_URI": "mongodb://m", "MONGO_OP_TIMEOUT": "-1s"}, "MONGO_OP_TIMEOUT"},
		{"external prefix", map[string]string{"EXTERNAL_SESSION_PREFIX": " "}, "EXTERNAL_SESSION_PREFIX"},
		{"message limit", map[string]string{"MAX_MESSAGE_RUNES": "0"}, "MAX_MESSAGE_RUNES"},
		{"poll interval", map[string]string{"POLL_INTERVAL": "0s"}, "POLL_INTERVAL"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"otp burst < 1", map[string]string{"OTP_RATE_BURST": "0"}, "OTP_RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("RATE_BURST", "0")

	_, err := Load()
	for _, want := range []string{`LOG_LEVEL "loud"`, "MONGO_URI", "RATE_BURST"} {
		if !containsErr(err, want) {
			t.Errorf("error %v does not mention %s", err, want)
		}
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("CFG_EMPTY", "")
	t.Setenv("CFG_STR", " spaced ")
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD", "forty-two")
	t.Setenv("CFG_DUR", "150ms")
	t.Setenv("CFG_F", "0.25")

	if got := str("CFG_UNSET", "d"); got != "d" {
		t.Errorf("unset = %q", got)
	}
	if got := str("CFG_EMPTY", "d"); got != "d" {
		t.Errorf("empty = %q", got)
	}
	if got := str("CFG_STR", "d"); got != " spaced " {
		t.Errorf("strings are taken verbatim, got %q", got)
	}
	if got := env("CFG_INT", 7, strconv.Atoi); got != 42 {
		t.Errorf("int = %d", got)
	}
	if got := env("CFG_BAD", 7, strconv.Atoi); got != 7 {
		t.Errorf("malformed int = %d", got)
	}
	if got := env("CFG_DUR", time.Second, time.ParseDuration); got != 150*time.Millisecond {
		t.Errorf("duration = %v", got)
	}
	if got := env("CFG_F", 1.0, parseFloat); got != 0.25 {
		t.Errorf("float = %v", got)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		if b, err := parseBool(v); err != nil || !b {
			t.Errorf("parseBool(%q) = %v, %v", v, b, err)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "Off"} {
		if b, err := parseBool(v); err != nil || b {
			t.Errorf("parseBool(%q) = %v, %v", v, b, err)
		}
	}
	if _, err := parseBool("maybe"); err == nil {
		t.Errorf("parseBool(maybe) accepted")
	}

	t.Setenv("CFG_BOOL", "maybe")
	if !env("CFG_BOOL", true, parseBool) {
		t.Errorf("malformed bool must keep the default")
	}
}

func TestSplitCSV(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV(\"\") = %#v", out)
	}
	if got := splitCSV(" https://a.com, ,http://b ,"); !reflect.DeepEqual(got, []string{"https://a.com", "http://b"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":         "/",
		" / ":      "/",
		"v1":       "/v1",
		"/v1/":     "/v1",
		"api/v1/":  "/api/v1",
		"//chat//": "/chat",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "IMAGE_HOST", "API_BASE_PATH", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS", "IMAGE_URL_PREFIX"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func containsErr(err error, want string) bool {
	return err != nil && strings.Contains(err.Error(), want)
}
