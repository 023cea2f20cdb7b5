package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// scrubbers run in order. IDs and external session tokens go first so the
// loose phone pattern never eats their digit runs.
var scrubbers = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`\b(?:user|sess)_[A-Za-z0-9]{6,}\b`), "[REDACTED:session]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	// "+91 98765 43210", "+1 212 555 1212"
	{regexp.MustCompile(`\+\d{1,3}[ .-]?\d[\d .-]{6,14}\d`), "[REDACTED:phone]"},
	// "98765 43210"
	{regexp.MustCompile(`\b\d{5}[ .-]\d{5}\b`), "[REDACTED:phone]"},
	// "212-555-1212", "9876543210"
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

var alwaysMasked = []string{"Authorization", "Cookie", "Set-Cookie"}

// Redact replaces session IDs, emails and phone numbers in s with labels.
func Redact(s string) string {
	for _, sc := range scrubbers {
		if s == "" {
			return s
		}
		s = sc.re.ReplaceAllString(s, sc.label)
	}
	return s
}

// MaskID keeps the first four characters of an identifier: enough to
// correlate log lines, not enough to replay the session.
func MaskID(id string) string {
	switch {
	case id == "":
		return ""
	case len(id) <= 4:
		return "****"
	}
	return id[:4] + "****"
}

// RedactOptions lists headers to mask on top of Authorization, Cookie and
// Set-Cookie.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger writes one access log line per request and stores a
// request-scoped logger for LoggerFrom. Bodies are never logged. Matched
// routes are logged by pattern; unmatched paths, the query and header
// values go through Redact. The session appears only as MaskID.
//
// It must run after RequestID and SessionKey.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := make(map[string]bool, len(alwaysMasked)+len(opts.MaskHeaders))
	for _, h := range append(alwaysMasked, opts.MaskHeaders...) {
		if h = strings.TrimSpace(h); h != "" {
			masked[http.CanonicalHeaderKey(h)] = true
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = Redact(c.Request.URL.Path)
		}
		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("session", MaskID(SessionIDFrom(c))).
			Logger()
		c.Set(loggerKey, &l)

		headers := zerolog.Dict()
		for k, vv := range c.Request.Header {
			if masked[k] {
				headers.Str(k, "[REDACTED]")
				continue
			}
			headers.Str(k, Redact(strings.Join(vv, ", ")))
		}

		c.Next()

		status := c.Writer.Status()
		ev := l.WithLevel(accessLevel(status, len(c.Errors)))
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("query", truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg("http_request")
	}
}

func accessLevel(status, errs int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError || errs > 0:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}
