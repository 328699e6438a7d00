package controllers

import (
	"context"
	"github.com/adamlounds/glucoscope/models"
	socketio "github.com/googollee/go-socket.io"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
)

const forecastReadPermission = "api:forecast:read"

// SocketBroadcaster is the part of the socket.io server used to push events.
type SocketBroadcaster interface {
	BroadcastToRoom(namespace string, room string, event string, args ...interface{}) bool
}

// SocketController pushes new forecasts to the connections of their user.
// A connection joins its user's room once it has authorized.
type SocketController struct {
	Context context.Context
	SockSvr SocketBroadcaster
	*models.AuthService
}

func userRoom(userID string) string {
	return "user:" + userID
}

func (c SocketController) OnConnect(s socketio.Conn) error {
	log := slogctx.FromCtx(c.Context)
	s.SetContext("")
	log.Debug("socket connection made",
		slog.String("connId", s.ID()),
	)
	return nil
}

type authorizeEvent struct {
	Client string `json:"client"` // 'web' | 'phone'
	Secret string `json:"secret"` // hash of secret or token
}

// Authorize subscribes the connection to forecast updates for the user the
// secret belongs to. The returned map tells the client what it may do.
func (c SocketController) Authorize(s socketio.Conn, msg authorizeEvent) any {
	ctx := c.Context
	log := slogctx.FromCtx(ctx)
	authn := c.AuthFromHTTP(ctx, msg.Secret, "")
	userID := authn.UserID()

	log.Debug("socket event: authorize",
		slog.String("connId", s.ID()),
		slog.String("client", msg.Client),
		slog.Any("authn", authn),
	)

	if userID == "" || !c.IsPermitted(ctx, authn, forecastReadPermission) {
		log.Info("socket authorize refused", slog.String("connId", s.ID()))
		return map[string]bool{"read": false}
	}

	s.SetContext(userID)
	s.Join(userRoom(userID))
	s.Emit("connected")
	return map[string]bool{"read": true}
}

// ForecastCreated broadcasts a stored forecast to every connection of its user.
func (c SocketController) ForecastCreated(ctx context.Context, record models.ForecastRecord) {
	log := slogctx.FromCtx(ctx)
	if !c.SockSvr.BroadcastToRoom("/", userRoom(record.UserID), "forecastUpdate", record) {
		log.Debug("no socket room for forecast", slog.String("userID", record.UserID))
	}
}

func (c SocketController) OnError(s socketio.Conn, e error) {
	log := slogctx.FromCtx(c.Context)
	if s == nil {
		log.Warn("socket error", slog.Any("error", e))
		return
	}
	log.Warn("socket error", slog.String("connId", s.ID()), slog.Any("error", e))
}

func (c SocketController) OnDisconnect(s socketio.Conn, reason string) {
	log := slogctx.FromCtx(c.Context)
	log.Debug("socket closed", slog.String("connId", s.ID()), slog.String("reason", reason))
}
