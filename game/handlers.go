package game

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/e-kose/FT-PINPON-sub000/auth"
	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type UserGetter interface {
	GetUserById(ctx context.Context, id string) (domain.User, error)
}

// Connector is the part of the Gateway the handler needs.
type Connector interface {
	Dispatcher
	Connect(p *Player)
}

type GameHandler struct {
	connector  Connector
	userGetter UserGetter
	upgrader   websocket.Upgrader
	inputRate  rate.Limit
	inputBurst int
	log        zerolog.Logger
}

func NewGameHandler(connector Connector, userGetter UserGetter, allowedOrigins []string, inputRate float64, inputBurst int, log zerolog.Logger) *GameHandler {
	return &GameHandler{
		connector:  connector,
		userGetter: userGetter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		inputRate:  rate.Limit(inputRate),
		inputBurst: inputBurst,
		log:        log,
	}
}

// ConnectHandler upgrades an authenticated request and starts the player's pumps.
func (h *GameHandler) ConnectHandler(ctx *gin.Context) {
	id := ctx.GetString(auth.ContextUserId)
	if id == "" {
		h.log.Error().
			Str("ip", ctx.ClientIP()).
			Str("user_agent", ctx.Request.UserAgent()).
			Msg("id not found after auth middleware")
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	username := ctx.GetString(auth.ContextUsername)
	if username == "" {
		user, err := h.userGetter.GetUserById(ctx.Request.Context(), id)
		if errors.Is(err, domain.ErrUserNotFound) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUserNotFound.Error()})
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("user_id", id).Msg("username lookup failed")
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": auth.ErrUnknownStr})
			return
		}
		username = user.Username
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", id).Msg("websocket upgrade failed")
		return
	}

	socket := NewWebsocketConnection(conn)
	player := NewPlayer(id, username, h.inputRate, h.inputBurst)
	h.connector.Connect(player)
	h.log.Info().Str("user_id", id).Msg("connected")

	go player.WritePump(socket)
	go player.ReadPump(socket, h.connector)
}
