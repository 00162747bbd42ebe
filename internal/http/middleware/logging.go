// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, the structured access logger,
// and the panic recovery handler. Recommended order:
//
//  1. RequestID()
//  2. AccessLog(...)
//  3. Recovery()
//
// so that panics and errors carry the correlation ID and are logged.
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// loggerKey is the Gin context key holding the request-scoped logger.
	loggerKey = "logger"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
	// redacted replaces masked values in logs.
	redacted = "[REDACTED]"
)

// RequestID reuses an incoming X-Request-ID or generates a UUIDv4, stores it
// in the Gin context, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// AccessLogOptions configures AccessLog.
//
// MaskHeaders and MaskQueryParams add to the built-in lists. Header names
// and query keys are matched case-insensitively.
type AccessLogOptions struct {
	MaskHeaders     []string
	MaskQueryParams []string
	// LogHeaders includes (scrubbed) request headers in the access log.
	LogHeaders bool
}

var (
	defaultMaskHeaders = []string{"authorization", "cookie", "set-cookie", "proxy-authorization"}
	// Signed object-store URLs carry their credentials in these parameters.
	defaultMaskQuery = []string{
		"token", "access_token", "sig", "signature", "key", "api_key",
		"x-amz-signature", "x-amz-credential", "x-amz-security-token",
		"x-goog-signature", "x-goog-credential",
	}
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// AccessLog attaches a request-scoped zerolog.Logger to the context (see
// LoggerFrom) and writes one structured line per request once the handler
// chain has finished. Sensitive headers and query parameters are replaced
// with [REDACTED] and e-mail addresses are scrubbed from the query string.
// The level is error for 5xx or recorded gin errors, warn for 4xx, and info
// otherwise. Bodies are never logged.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	maskHeaders := toSet(defaultMaskHeaders, opts.MaskHeaders)
	maskQuery := toSet(defaultMaskQuery, opts.MaskQueryParams)

	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}

		ev = ev.
			Str("query", truncate(scrubQuery(c.Request.URL.RawQuery, maskQuery), maxQueryLogLength)).
			Str("user_agent", c.Request.UserAgent()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if id := c.Param("id"); id != "" {
			ev = ev.Str("resource_id", id)
		}
		if opts.LogHeaders {
			ev = ev.Interface("headers", scrubHeaders(c.Request.Header, maskHeaders))
		}
		ev.Msg("http_request")
	}
}

// Recovery converts a panic into a JSON 500 envelope (unless a response was
// already started) and logs the stack with the request ID.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := asString(c.Value(requestIDKey))
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger set by AccessLog, or the
// global logger when none is attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func scrubQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return emailRE.ReplaceAllString(raw, redacted)
	}
	for k, vv := range vals {
		if _, ok := mask[strings.ToLower(k)]; ok {
			vals[k] = []string{redacted}
			continue
		}
		for i, v := range vv {
			vv[i] = scrubURLValue(v, mask)
		}
	}
	// Encode escapes the brackets; keep the marker readable.
	return strings.ReplaceAll(vals.Encode(), url.QueryEscape(redacted), redacted)
}

// scrubURLValue masks credentials inside a value that is itself a URL, such
// as an audio URL passed as a query parameter.
func scrubURLValue(v string, mask map[string]struct{}) string {
	v = emailRE.ReplaceAllString(v, redacted)
	u, err := url.Parse(v)
	if err != nil || u.RawQuery == "" || u.Host == "" {
		return v
	}
	q := u.Query()
	changed := false
	for k := range q {
		if _, ok := mask[strings.ToLower(k)]; ok {
			q.Set(k, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
		return u.String()
	}
	return v
}

func scrubHeaders(h http.Header, mask map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := mask[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = emailRE.ReplaceAllString(strings.Join(vv, ", "), redacted)
	}
	return out
}

func toSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, s := range l {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

// asString returns v when it is a string and "" otherwise.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
