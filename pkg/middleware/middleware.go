package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// Context aliases the gin request context.
type Context = *gin.Context

// HandlerFunc aliases the gin handler signature.
type HandlerFunc = gin.HandlerFunc

// H is a shortcut for map[string]interface{}
type H = gin.H

// HeaderTeamID carries the tenant scope resolved by the auth layer upstream.
const HeaderTeamID = "X-Team-ID"

// RequestIDMiddleware tags every request with an id, minting one when the
// caller didn't send X-Request-ID.
func RequestIDMiddleware() HandlerFunc {
	return func(c Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggingMiddleware emits one structured line per request, after the
// handler so the status and team scope are known.
func LoggingMiddleware(logger logging.Logger) HandlerFunc {
	return func(c Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logging.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"team_id":    c.GetString("team_id"),
			"duration":   time.Since(start).String(),
		}).Info("HTTP request")
	}
}

// RecoveryMiddleware converts handler panics into logged 500s.
func RecoveryMiddleware(logger logging.Logger) HandlerFunc {
	return func(c Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logging.Fields{
					"error":     err,
					"client_ip": c.ClientIP(),
					"method":    c.Request.Method,
					"path":      c.Request.URL.Path,
				}).Error("Request handler panic")
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// CORSMiddleware answers preflight requests and opens the API to browser
// clients. The team header must be listed or browsers strip it.
func CORSMiddleware() HandlerFunc {
	return func(c Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderTeamID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// TeamScopeMiddleware resolves the tenant scope from the X-Team-ID header.
// Authentication happens upstream; requests without a team are rejected so
// no query ever runs unscoped.
func TeamScopeMiddleware() HandlerFunc {
	return func(c Context) {
		teamID := c.GetHeader(HeaderTeamID)
		if teamID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, H{"error": "missing " + HeaderTeamID + " header"})
			return
		}
		c.Set("team_id", teamID)
		c.Next()
	}
}
