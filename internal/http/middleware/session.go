// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file extracts the caller's session identifier so rate limiting,
// idempotency and request logging can key on it before the handler runs.
// The identifier is looked up, in order, in:
//   - the :sessionId or :clerkSessionId path parameter
//   - the "sessionId" or "clerkSessionId" field of a JSON body
//   - the "sessionId" field of a multipart or urlencoded form
//
// JSON bodies are read once and restored so handlers can bind them again.
// The session ID is not an authorization decision; handlers still resolve
// it through the identity resolver.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxKeySessionID = "sessionID"

// SessionIDFrom returns the session identifier stored by SessionKey.
func SessionIDFrom(c *gin.Context) string {
	v, ok := c.Get(ctxKeySessionID)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// sessionFields is the subset of request bodies that name a session.
type sessionFields struct {
	SessionID      string `json:"sessionId"`
	ClerkSessionID string `json:"clerkSessionId"`
}

// SessionKey stores the request's session identifier in the Gin context.
// Requests without one pass through untouched.
func SessionKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sid := sessionFromRequest(c); sid != "" {
			c.Set(ctxKeySessionID, sid)
		}
		c.Next()
	}
}

func sessionFromRequest(c *gin.Context) string {
	for _, p := range []string{"sessionId", "clerkSessionId"} {
		if v := strings.TrimSpace(c.Param(p)); v != "" {
			return v
		}
	}
	if c.Request.Body == nil {
		return ""
	}

	ct := c.ContentType()
	switch {
	case ct == gin.MIMEJSON:
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			// Keep the read error (e.g. body too large) visible to the handler.
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{err}))
			return ""
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		if len(body) == 0 {
			return ""
		}
		var f sessionFields
		if json.Unmarshal(body, &f) != nil {
			return ""
		}
		if s := strings.TrimSpace(f.SessionID); s != "" {
			return s
		}
		return strings.TrimSpace(f.ClerkSessionID)
	case ct == gin.MIMEMultipartPOSTForm || ct == gin.MIMEPOSTForm:
		return strings.TrimSpace(c.PostForm("sessionId"))
	}
	return ""
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
