package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// setupMiddleware installs recovery, request logging and CORS.
func (h *Handler) setupMiddleware(r *gin.Engine) {
	r.Use(gin.Recovery())
	r.Use(h.requestLogger)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	if h.log == nil {
		return
	}

	status := c.Writer.Status()
	kv := []any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"latency", time.Since(start).String(),
		"client_ip", c.ClientIP(),
	}
	switch {
	case status >= http.StatusInternalServerError:
		h.log.Errorw("http_request", kv...)
	case status >= http.StatusBadRequest:
		h.log.Warnw("http_request", kv...)
	default:
		h.log.Debugw("http_request", kv...)
	}
}

// streamAuthMiddleware authenticates /ws. Browsers cannot set headers on a
// websocket handshake, so ?access_token= is accepted when no header is sent.
func (h *Handler) streamAuthMiddleware(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		if tok := c.Query("access_token"); tok != "" {
			h.authorize(c, tok)
			return
		}
	}
	h.userIdMiddleware(c)
}

func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	h.authorize(c, parts[1])
}

func (h *Handler) authorize(c *gin.Context, token string) {
	userId, err := h.services.ParseToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	// store in Gin context
	c.Set("userId", userId)
	c.Next()
}
