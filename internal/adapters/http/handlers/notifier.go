package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/longregen/cogexec/internal/adapters/http/middleware"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// progressEvent is one JSON frame pushed to a user's subscribed
// WebSocket connections as their turn moves through the pipeline.
type progressEvent struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id"`
	Data   any    `json:"data,omitempty"`
}

// WebSocketNotifier implements ports.GenerationNotifier, fanning each
// stage-progress callback out to every connection subscribed to that user.
// One user may have several live connections (multiple tabs/devices); all
// of them observe the same turn in lockstep.
type WebSocketNotifier struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]struct{}
}

func NewWebSocketNotifier() *WebSocketNotifier {
	return &WebSocketNotifier{connections: make(map[string]map[*websocket.Conn]struct{})}
}

func (n *WebSocketNotifier) Subscribe(userID string, conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connections[userID] == nil {
		n.connections[userID] = make(map[*websocket.Conn]struct{})
	}
	n.connections[userID][conn] = struct{}{}
}

func (n *WebSocketNotifier) Unsubscribe(userID string, conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if conns, ok := n.connections[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(n.connections, userID)
		}
	}
}

func (n *WebSocketNotifier) broadcast(userID string, ev progressEvent) {
	n.mu.RLock()
	conns, ok := n.connections[userID]
	if !ok || len(conns) == 0 {
		n.mu.RUnlock()
		return
	}
	targets := make([]*websocket.Conn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	n.mu.RUnlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to encode progress event: %v", err)
		return
	}

	for _, conn := range targets {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("failed to push progress event to %s: %v", userID, err)
			n.Unsubscribe(userID, conn)
		}
	}
}

// A turn's userID is unknown to the Orchestrator's per-event callbacks (they
// only carry the turnID), so the notifier tracks turnID->userID for the
// lifetime of a turn, pruning the entry once the reply is delivered.
type turnUser struct {
	mu sync.Mutex
	m  map[string]string
}

var turnOwners = &turnUser{m: make(map[string]string)}

func (t *turnUser) set(turnID, userID string) {
	t.mu.Lock()
	t.m[turnID] = userID
	t.mu.Unlock()
}

func (t *turnUser) get(turnID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[turnID]
}

func (t *turnUser) clear(turnID string) {
	t.mu.Lock()
	delete(t.m, turnID)
	t.mu.Unlock()
}

func (n *WebSocketNotifier) NotifyPlanning(turnID, userID string) {
	turnOwners.set(turnID, userID)
	n.broadcast(userID, progressEvent{Type: "planning", TurnID: turnID})
}

func (n *WebSocketNotifier) NotifyPlanReady(turnID string, plan *models.ActionPlan) {
	n.broadcast(turnOwners.get(turnID), progressEvent{Type: "plan_ready", TurnID: turnID, Data: plan})
}

func (n *WebSocketNotifier) NotifyWallVerdict(turnID string, verdict ports.WallVerdict) {
	n.broadcast(turnOwners.get(turnID), progressEvent{Type: "wall_verdict", TurnID: turnID, Data: verdict})
}

func (n *WebSocketNotifier) NotifyToolUseStart(turnID, toolName string, arguments map[string]any) {
	n.broadcast(turnOwners.get(turnID), progressEvent{
		Type: "tool_use_start", TurnID: turnID,
		Data: map[string]any{"tool_name": toolName, "arguments": arguments},
	})
}

func (n *WebSocketNotifier) NotifyToolUseComplete(turnID string, result *models.ExecutionResult) {
	n.broadcast(turnOwners.get(turnID), progressEvent{Type: "tool_use_complete", TurnID: turnID, Data: result})
}

func (n *WebSocketNotifier) NotifyVerdict(turnID string, verdict *models.Verdict) {
	n.broadcast(turnOwners.get(turnID), progressEvent{Type: "verdict", TurnID: turnID, Data: verdict})
}

func (n *WebSocketNotifier) NotifyReply(turnID, replyText string) {
	n.broadcast(turnOwners.get(turnID), progressEvent{Type: "reply", TurnID: turnID, Data: replyText})
	turnOwners.clear(turnID)
}

// WebSocketHandler upgrades a connection and subscribes it to the
// authenticated user's progress events until the client disconnects.
type WebSocketHandler struct {
	notifier *WebSocketNotifier
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(notifier *WebSocketNotifier, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || allowed[r.Header.Get("Origin")]
			},
		},
	}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "user ID not found in context", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.notifier.Subscribe(userID, conn)
	defer h.notifier.Unsubscribe(userID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
