package ws

import "encoding/json"

// MessageType constants for the room protocol.
const (
	// Client -> Server
	TypeLogin           = "login"
	TypeCreateRoom      = "create_room"
	TypeJoinRoom        = "join_room"
	TypeUpdateSettings  = "update_settings"
	TypeRequestSettings = "request_settings"
	TypeStartGame       = "start_game"
	TypeSubmitAnswer    = "submit_answer"
	TypeKickPlayer      = "kick_player"
	TypeLeaveRoom       = "leave_room"
	TypeSendMessage     = "send_message"
	TypeInviteFriend    = "invite_friend"

	// Server -> Client
	TypeRoomCreated     = "room_created"
	TypeRoomJoined      = "room_joined"
	TypeHostStatus      = "host_status"
	TypeSettingsUpdated = "update_settings"
	TypeUsersUpdated    = "update_users"
	TypeGameStarted     = "game_started"
	TypeNewRound        = "new_round"
	TypeAnswerConfirmed = "answer_confirmed"
	TypeRoundResult     = "round_result"
	TypeGameOver        = "game_over"
	TypeKicked          = "kicked"
	TypeReceiveMessage  = "receive_message"
	TypeReceiveInvite   = "receive_invite"
	TypeError           = "error"
)

// Message wraps all WebSocket payloads with their event type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a Message envelope. Marshal failures
// produce an empty payload; callers pass known-serializable types.
func NewMessage(msgType string, payload any) Message {
	msg := Message{Type: msgType}
	if payload != nil {
		msg.Payload, _ = json.Marshal(payload)
	}
	return msg
}

// Client messages (incoming)

type LoginPayload struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

type CreateRoomPayload struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	UUID     string `json:"uuid"`
}

type JoinRoomPayload struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	Avatar   string `json:"avatar"`
	UUID     string `json:"uuid"`
}

type UpdateSettingsPayload struct {
	RoomID   string          `json:"roomId"`
	Settings json.RawMessage `json:"settings"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type SubmitAnswerPayload struct {
	RoomID string `json:"roomId"`
	Answer string `json:"answer"`
}

type KickPlayerPayload struct {
	RoomID   string `json:"roomId"`
	TargetID string `json:"targetId"`
}

type SendMessagePayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type InviteFriendPayload struct {
	TargetUUID string `json:"targetUuid"`
	RoomID     string `json:"roomId"`
}

// Server messages (outgoing)

type ChatPayload struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type ReceiveInvitePayload struct {
	From   string `json:"from"`
	RoomID string `json:"roomId"`
}
