package hub

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/authtoken"
	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/ratelimit"
	"github.com/reeftide/abyssal-server/internal/transport"
	"github.com/reeftide/abyssal-server/internal/types"
)

// Server wires a Hub to gin's HTTP surface: the WebSocket upgrade
// endpoint and the observability/health endpoints.
type Server struct {
	hub            *Hub
	limiter        *ratelimit.AbuseLimiter
	tokenSigner    *authtoken.Signer // nil disables the reconnect-token gate
	requireToken   bool
	allowedOrigins []string
}

// NewServer builds a Server. tokenSigner may be nil iff requireToken is
// false; NewServer does not check this. cmd/server builds a signer exactly
// when the token requirement is configured.
func NewServer(h *Hub, limiter *ratelimit.AbuseLimiter, tokenSigner *authtoken.Signer, requireToken bool, allowedOrigins []string) *Server {
	return &Server{
		hub:            h,
		limiter:        limiter,
		tokenSigner:    tokenSigner,
		requireToken:   requireToken,
		allowedOrigins: allowedOrigins,
	}
}

// Register attaches every route this server exposes to router.
func (s *Server) Register(router gin.IRouter) {
	router.GET("/ws/:roomId", s.serveWs)
	router.GET("/stats", s.stats)
	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// serveWs validates the join attempt, upgrades the socket, and hands the
// resulting connection off to run for the lifetime of the socket.
func (s *Server) serveWs(c *gin.Context) {
	roomID := types.RoomID(c.Param("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	ip := c.ClientIP()
	if s.limiter != nil && !s.limiter.AllowJoin(c.Request.Context(), ip) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many join attempts"})
		return
	}

	if err := validateOrigin(c.Request, s.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	if s.requireToken {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "reconnect token required"})
			return
		}
		if _, err := s.tokenSigner.Validate(token, roomID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid reconnect token"})
			return
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, s.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{New: func() any { return make([]byte, 4096) }},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	r := s.hub.Assign(roomID)
	wsConn := transport.NewLimited(conn, r, s.limiter, ip)
	wsConn.Run(c.Request.Context())
}

// extractToken reads the reconnect token from the Sec-WebSocket-Protocol
// header first, falling back to a query parameter, mirroring how browser
// WebSocket clients are limited to sending custom headers.
func extractToken(c *gin.Context) string {
	if proto := c.GetHeader("Sec-WebSocket-Protocol"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if p = strings.TrimSpace(p); p != "" {
				return p
			}
		}
	}
	return c.Query("token")
}

// validateOrigin allows requests with no Origin header (non-browser
// clients) and otherwise requires a scheme+host match against the
// configured allow-list.
func validateOrigin(r *http.Request, allowed []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return nil
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return err
	}
	for _, a := range allowed {
		allowedURL, err := url.Parse(a)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}
	return &originNotAllowedError{origin: origin}
}

type originNotAllowedError struct{ origin string }

func (e *originNotAllowedError) Error() string { return "origin not allowed: " + e.origin }

// stats reports room/participant counts plus per-connection RTT and
// message counters for operational visibility.
func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rooms_active": s.hub.RoomCount(),
		"rooms":        s.hub.Stats(),
	})
}

// healthz is a liveness probe: the process can answer HTTP, nothing more.
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
