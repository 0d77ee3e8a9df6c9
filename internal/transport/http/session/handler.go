// Package session serves approver login and the authenticated live feed.
package session

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/dto"
	"github.com/Additional-Code/procura/internal/presentation/http/response"
	"github.com/Additional-Code/procura/internal/realtime"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

// Handler exposes login and the websocket event feed.
type Handler struct {
	auth        *auth.Authenticator
	hub         *realtime.Hub
	allowOrigin func(*http.Request) bool
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewHandler constructs a session Handler.
func NewHandler(cfg config.Config, a *auth.Authenticator, hub *realtime.Hub, logger *zap.Logger) *Handler {
	allowOrigin := originChecker(cfg.HTTP.AllowedOrigins)
	return &Handler{
		auth:        a,
		hub:         hub,
		allowOrigin: allowOrigin,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
	}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/auth/login", h.login)
	e.GET("/ws", h.feed)
}

func (h *Handler) login(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	session, err := h.auth.Login(payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return b.WithError(errorbank.Unauthorized("invalid username or password")).Build()
		}
		return b.WithError(errorbank.Internal("failed to issue session", errorbank.WithCause(err))).Build()
	}
	return b.WithData(dto.LoginResponse{
		Token:     session.Token,
		Role:      string(session.Role),
		ExpiresAt: session.ExpiresAt,
	}).Build()
}

// feed authenticates through the token query parameter because browsers
// cannot set headers on websocket handshakes.
func (h *Handler) feed(c echo.Context) error {
	role, err := h.auth.Verify(c.QueryParam("token"))
	if err != nil {
		return response.New(c).WithError(errorbank.Unauthorized("invalid session token")).Build()
	}
	if !h.allowOrigin(c.Request()) {
		return response.New(c).WithError(errorbank.Forbidden("origin not allowed",
			errorbank.WithDetail("origin", c.Request().Header.Get("Origin")))).Build()
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the failure response.
		h.logger.Warn("feed upgrade failed", zap.Error(err))
		return nil
	}
	h.logger.Debug("feed subscriber joined", zap.String("role", string(role)))
	h.hub.Serve(conn)
	return nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
