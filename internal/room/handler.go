package room

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/abeloskyyy/answer/internal/presence"
	"github.com/abeloskyyy/answer/internal/server"
	"github.com/abeloskyyy/answer/pkg/http/ws"
)

// Handler owns one WebSocket connection's lifecycle and routes its events
// into the room engine.
type Handler struct {
	service   *Service
	hub       *ws.Hub
	directory presence.Directory
	relay     *presence.Relay
	logger    zerolog.Logger
}

// NewHandler creates a room WebSocket handler.
func NewHandler(service *Service, hub *ws.Hub, directory presence.Directory, relay *presence.Relay, logger zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		hub:       hub,
		directory: directory,
		relay:     relay,
		logger:    logger,
	}
}

// HandleWebSocket upgrades an HTTP request and hands the connection to
// HandleConnection under a fresh connection id.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.HandleConnection(conn, uuid.NewString())
}

// HandleConnection processes a new WebSocket connection until the peer
// drops, then runs the disconnect protocol.
func (h *Handler) HandleConnection(conn *websocket.Conn, connID string) {
	logger := h.logger.With().Str("conn_id", connID).Logger()
	wsConn := ws.NewConnection(conn, logger)
	h.hub.RegisterConnection(connID, wsConn)

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), connID, msg)
	})

	// Transport-level drop: hold the seat for the grace window.
	h.service.HandleDisconnect(connID)
	if err := h.directory.UnregisterConn(context.Background(), connID); err != nil {
		logger.Warn().Err(err).Msg("presence unregister failed")
	}
	h.hub.UnregisterConnection(connID)
}

// handleMessage routes one inbound event. Handlers silently abort on
// missing rooms; only join/start failures produce error events.
func (h *Handler) handleMessage(ctx context.Context, connID string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeLogin:
		return h.handleLogin(ctx, connID, msg.Payload)
	case ws.TypeCreateRoom:
		return h.handleCreateRoom(connID, msg.Payload)
	case ws.TypeJoinRoom:
		return h.handleJoinRoom(connID, msg.Payload)
	case ws.TypeUpdateSettings:
		return h.handleUpdateSettings(connID, msg.Payload)
	case ws.TypeRequestSettings:
		return h.handleRequestSettings(connID, msg.Payload)
	case ws.TypeStartGame:
		return h.handleStartGame(connID, msg.Payload)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(connID, msg.Payload)
	case ws.TypeKickPlayer:
		return h.handleKickPlayer(connID, msg.Payload)
	case ws.TypeLeaveRoom:
		return h.handleLeaveRoom(connID, msg.Payload)
	case ws.TypeSendMessage:
		return h.handleSendMessage(connID, msg.Payload)
	case ws.TypeInviteFriend:
		return h.handleInviteFriend(ctx, connID, msg.Payload)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (h *Handler) handleLogin(ctx context.Context, connID string, payload json.RawMessage) error {
	var req ws.LoginPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode login: %w", err)
	}
	h.logger.Info().Str("name", req.Name).Str("conn_id", connID).Msg("user connected")
	if req.UUID == "" {
		return nil
	}
	return h.directory.Register(ctx, req.UUID, connID)
}

func (h *Handler) handleCreateRoom(connID string, payload json.RawMessage) error {
	var req ws.CreateRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode create_room: %w", err)
	}
	h.service.CreateRoom(connID, req.Username, req.Avatar, h.persistentID(req.UUID))
	return nil
}

func (h *Handler) handleJoinRoom(connID string, payload json.RawMessage) error {
	var req ws.JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode join_room: %w", err)
	}
	h.service.JoinRoom(connID, req.RoomID, req.Username, req.Avatar, h.persistentID(req.UUID))
	return nil
}

func (h *Handler) handleUpdateSettings(connID string, payload json.RawMessage) error {
	var req ws.UpdateSettingsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode update_settings: %w", err)
	}
	h.service.UpdateSettings(connID, req.RoomID, req.Settings)
	return nil
}

func (h *Handler) handleRequestSettings(connID string, payload json.RawMessage) error {
	var req ws.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode request_settings: %w", err)
	}
	h.service.RequestSettings(connID, req.RoomID)
	return nil
}

func (h *Handler) handleStartGame(connID string, payload json.RawMessage) error {
	var req ws.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode start_game: %w", err)
	}
	h.service.StartGame(connID, req.RoomID)
	return nil
}

func (h *Handler) handleSubmitAnswer(connID string, payload json.RawMessage) error {
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode submit_answer: %w", err)
	}
	h.service.SubmitAnswer(connID, req.RoomID, req.Answer)
	return nil
}

func (h *Handler) handleKickPlayer(connID string, payload json.RawMessage) error {
	var req ws.KickPlayerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode kick_player: %w", err)
	}
	h.service.KickPlayer(connID, req.RoomID, req.TargetID)
	return nil
}

func (h *Handler) handleLeaveRoom(connID string, payload json.RawMessage) error {
	var req ws.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode leave_room: %w", err)
	}
	h.service.LeaveRoom(connID, req.RoomID)
	return nil
}

func (h *Handler) handleSendMessage(connID string, payload json.RawMessage) error {
	var req ws.SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode send_message: %w", err)
	}
	h.service.SendChat(req.RoomID, req.Username, req.Message)
	return nil
}

func (h *Handler) handleInviteFriend(ctx context.Context, connID string, payload json.RawMessage) error {
	var req ws.InviteFriendPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode invite_friend: %w", err)
	}
	fromName, ok := h.service.DisplayName(connID)
	if !ok {
		fromName = "A friend"
	}
	h.relay.Invite(ctx, fromName, req.TargetUUID, req.RoomID)
	return nil
}

// persistentID keeps the client-supplied stable identity, minting a guest
// id for clients that never logged in.
func (h *Handler) persistentID(clientUUID string) string {
	if clientUUID != "" {
		return clientUUID
	}
	return "guest-" + uuid.NewString()
}
