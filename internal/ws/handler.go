package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/chat"
	"telemed-chat/internal/observability"
	"telemed-chat/internal/rabbitmq"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated connections and runs their sessions.
type Handler struct {
	hub       *Hub
	coord     *chat.Coordinator
	verifier  auth.Verifier
	publisher rabbitmq.Publisher

	actionRate  rate.Limit
	actionBurst int
}

// NewHandler constructs the websocket handler.
func NewHandler(hub *Hub, coord *chat.Coordinator, verifier auth.Verifier, publisher rabbitmq.Publisher, actionRate float64, actionBurst int) *Handler {
	return &Handler{
		hub:         hub,
		coord:       coord,
		verifier:    verifier,
		publisher:   publisher,
		actionRate:  rate.Limit(actionRate),
		actionBurst: actionBurst,
	}
}

// Handle performs the connection handshake. The bearer credential arrives
// out-of-band at establishment time, as a query parameter or header; a
// missing or unverifiable token refuses the connection before upgrade.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("telemed-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		token = bearerFromHeader(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	connID := uuid.NewString()
	limiter := rate.NewLimiter(h.actionRate, h.actionBurst)
	client := newClient(h.hub, h.coord, conn, connID, identity, limiter)

	connectedAt := time.Now()
	clientIP := observability.IPFromRequest(c.Request)
	h.hub.Register(client)

	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, "ws_connect", connID, clientIP, identity, 0)

	go client.writePump()
	go func() {
		// The gin context is not valid past the handler; lifecycle events
		// after disconnect go out on a fresh context.
		client.readPump(context.Background())
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(context.Background(), "ws_disconnect", connID, clientIP, identity, time.Since(connectedAt).Milliseconds())
	}()
}

func (h *Handler) publishLifecycle(ctx context.Context, event, connID, clientIP string, identity auth.Identity, durationMS int64) {
	if h.publisher == nil {
		return
	}
	envelope := rabbitmq.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]any{
			"ws": map[string]any{
				"event":       event,
				"conn_id":     connID,
				"duration_ms": durationMS,
			},
			"identity": map[string]any{
				"user_id": identity.UserID,
				"ip":      clientIP,
			},
		},
	}
	_ = h.publisher.Publish(ctx, "ws_events.chat", envelope)
}

func bearerFromHeader(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
