// Package httpapi assembles the Gin engine: middleware chain, health and
// metrics endpoints, Swagger UI, and the /auth and /chat routes.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/mobileauth-chat/internal/config"
	"github.com/tbourn/mobileauth-chat/internal/http/handlers"
	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
	"github.com/tbourn/mobileauth-chat/internal/services"

	_ "github.com/tbourn/mobileauth-chat/docs" // registers the OpenAPI document
)

// jsonBodyLimit caps every non-multipart request body.
const jsonBodyLimit = 1 << 20

var corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}

// RegisterRoutes builds the services over store and mounts everything on
// r. The chain runs, outermost first: tracing, request ID, body limit,
// session key, access log, recovery, metrics, gzip, idempotency, rate
// limit, CORS, security headers. Idempotency precedes the limiter so a
// replayed send does not spend a token.
func RegisterRoutes(r *gin.Engine, store services.Store, otp services.OTPProvider, images services.ImageHost, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	svc := services.New(store, otp, images, services.Options{
		ExternalSessionPrefix: cfg.Chat.ExternalSessionPrefix,
		WelcomeText:           cfg.Chat.BotWelcomeText,
		MaxMessageRunes:       cfg.Chat.MaxMessageRunes,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		MaxImagePixels:        cfg.Image.MaxPixels,
	})

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		limitBody(jsonBodyLimit, handlers.MultipartLimit(cfg.Image.MaxUploadBytes)),
		middleware.SessionKey(),
		middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}),
		middleware.Recovery(),
		middleware.Metrics(),
	)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 128}, svc.Chat.HasReplay),
		middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP()).Handler(),
	)
	r.Use(corsPolicy(cfg.CORS.AllowedOrigins)...)
	// Responses carry profiles and chat history: uncacheable unless a
	// handler opts into revalidation.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/", handlers.Root)
	r.GET("/health", handlers.Health(store))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Sessions, svc.Profiles, svc.Prefs, svc.Chat, cfg.Image.MaxUploadBytes)

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Every OTP is a paid SMS: a stricter per-IP bucket on top.
	otpRL := middleware.NewRateLimiter("send_otp", cfg.OTPRateRPS, cfg.OTPRateBurst, middleware.KeyByIP())

	auth := api.Group("/auth")
	{
		auth.POST("/send-otp", otpRL.Handler(), h.SendOTP)
		auth.POST("/verify-otp", h.VerifyOTP)
		auth.POST("/validate-session", h.ValidateSession)
		auth.POST("/save-user-details", h.SaveUserDetails)
		auth.GET("/user-profile/:sessionId", h.UserProfile)

		auth.POST("/save-google-user-details", h.SaveGoogleUserDetails)
		auth.GET("/user-profile-clerk/:clerkSessionId", h.UserProfileClerk)
		auth.POST("/add-mobile-to-google-user", h.AddMobileToGoogleUser)

		auth.GET("/get-preferences/:sessionId", h.GetPreferences)
		auth.POST("/update-preferences", h.UpdatePreferences)
		auth.POST("/update-user-details", h.UpdateUserDetails)
	}

	chat := api.Group("/chat")
	{
		chat.GET("/history/:sessionId", h.ChatHistory)
		chat.POST("/send-message", h.SendMessage)
		chat.POST("/upload-image", h.UploadImage)
	}
}

// corsPolicy allows any origin without credentials when origins is empty,
// and otherwise echoes only listed origins with credentials allowed.
func corsPolicy(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  corsHeaders,
		ExposeHeaders: []string{middleware.HeaderRequestID, "ETag", middleware.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	base.AllowCredentials = true
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies with http.MaxBytesReader: multipart at
// multipartMax, everything else at maxBytes.
func limitBody(maxBytes, multipartMax int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			limit = multipartMax
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
