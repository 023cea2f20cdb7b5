package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a client retry a send without appending the
// message twice.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is "true" on a response that repeats an earlier
// result instead of performing the write again.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// CodeBadIdempotencyKey is the error code of a malformed key.
const CodeBadIdempotencyKey = "bad_idempotency_key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemKeyLen = 200
)

var idemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~:-]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := c.GetString(ctxKeyIdemKey)
	return k, k != ""
}

// IsReplay reports whether the session already completed a request with
// this key inside the replay window.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions bounds accepted keys. Zero values select a 200 byte
// limit and the token alphabet [A-Za-z0-9._~:-].
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether (sessionID, key) has a stored result
// that is still replayable at now. The replay window is the lookup's
// concern.
type IdempotencyLookup func(ctx context.Context, sessionID, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and stashes it for
// handlers. A key the session already used marks the request as a replay,
// which also exempts it from rate limiting. Requests without the header
// pass through untouched. A failed lookup is logged and treated as a miss;
// the handler still deduplicates on write.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = idemKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abort(c, http.StatusBadRequest, CodeBadIdempotencyKey, "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		sid := SessionIDFrom(c)
		if lookup == nil || sid == "" {
			c.Next()
			return
		}
		hit, err := lookup(c.Request.Context(), sid, key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		case hit:
			idemReplays.Inc()
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
