package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"course-agenda-server/internal/service"
	"course-agenda-server/internal/websocket"
	"course-agenda-server/pkg/jwt"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	jwtSecret string
	upgrader  ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, jwtSecret string, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:   manager,
		jwtSecret: jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if token == "" {
		log.Printf("[ws] missing authorization token")
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		log.Printf("[ws] token validation failed: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), claims.UserID, conn, h.manager)
	select {
	case h.manager.Register <- client:
	case <-h.manager.Done():
		log.Printf("[ws] manager stopped, dropping connection for %s", claims.UserID)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler answers subscribe, unsubscribe and ping messages.
// A subscription is acknowledged with the current state of the topic.
type WebSocketMessageHandler struct {
	manager    *websocket.Manager
	agenda     *service.AgendaService
	curriculum *service.CurriculumService
	timeout    time.Duration
}

func NewWebSocketMessageHandler(manager *websocket.Manager, agenda *service.AgendaService, curriculum *service.CurriculumService) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		manager:    manager,
		agenda:     agenda,
		curriculum: curriculum,
		timeout:    10 * time.Second,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSubscribe:
		return h.handleSubscribe(client, msg)

	case websocket.TypeUnsubscribe:
		return h.handleUnsubscribe(client, msg)

	case websocket.TypePing:
		return h.send(client, websocket.TypePong, nil)

	default:
		log.Printf("[ws] unknown message type: %s", msg.Type)
		return h.send(client, websocket.TypeError, websocket.AckPayload{Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// handleSubscribe validates the topic inline and loads its state on a
// separate goroutine so a slow store does not stall the manager loop.
func (h *WebSocketMessageHandler) handleSubscribe(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.SubscribePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return h.nack(client, "", err)
	}
	if _, _, ok := websocket.ParseTopic(payload.Topic); !ok {
		return h.nack(client, payload.Topic, fmt.Errorf("unknown topic %q", payload.Topic))
	}

	go func() {
		if err := h.subscribe(client, payload.Topic); err != nil {
			log.Printf("[ws] subscribe %s for %s: %v", payload.Topic, client.ID, err)
		}
	}()
	return nil
}

func (h *WebSocketMessageHandler) subscribe(client *websocket.Client, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	stateType, state, err := h.state(ctx, topic)
	if err != nil {
		return h.nack(client, topic, err)
	}

	if !h.manager.Subscribe(client, topic) {
		return fmt.Errorf("client %s is not registered", client.ID)
	}
	if err := h.send(client, websocket.TypeAck, websocket.AckPayload{Topic: topic, Success: true}); err != nil {
		return err
	}
	return h.send(client, stateType, state)
}

func (h *WebSocketMessageHandler) state(ctx context.Context, topic string) (websocket.MessageType, interface{}, error) {
	kind, id, ok := websocket.ParseTopic(topic)
	if !ok {
		return "", nil, fmt.Errorf("unknown topic %q", topic)
	}
	if kind == "project" {
		snap, err := h.agenda.Snapshot(ctx, id)
		return websocket.TypeAgendaState, snap, err
	}
	sc, _ := service.ScopeFromTopic(topic)
	snap, err := h.curriculum.Snapshot(ctx, sc)
	return websocket.TypeCurriculumState, snap, err
}

func (h *WebSocketMessageHandler) handleUnsubscribe(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.SubscribePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return h.nack(client, "", err)
	}
	h.manager.Unsubscribe(client, payload.Topic)
	return h.send(client, websocket.TypeAck, websocket.AckPayload{Topic: payload.Topic, Success: true})
}

func (h *WebSocketMessageHandler) nack(client *websocket.Client, topic string, cause error) error {
	if err := h.send(client, websocket.TypeAck, websocket.AckPayload{Topic: topic, Error: cause.Error()}); err != nil {
		return err
	}
	return cause
}

func (h *WebSocketMessageHandler) send(client *websocket.Client, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return h.manager.SendToClient(client.ID, msg)
}
