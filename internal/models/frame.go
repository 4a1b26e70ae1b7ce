package models

import (
	"encoding/json"
	"time"
)

// Outbound frame types.
const (
	FrameConnected     = "CONNECTED"
	FrameMessage       = "MESSAGE"
	FrameError         = "ERROR"
	FrameNotifications = "NOTIFICATIONS"
)

// Inbound frame types.
const (
	FrameConnect            = "CONNECT"
	FrameAddUser            = "addUser"
	FrameSendMessage        = "sendMessage"
	FrameSendPrivateMessage = "sendPrivateMessage"
	FrameFriendRequest      = "friend/request"
	FrameFriendAccept       = "friend/accept"
)

// Destinations a session can receive on.
const (
	DestinationPublic        = "/topic/public"
	DestinationPrivate       = "/user/queue/private"
	DestinationNotifications = "/user/queue/notifications"
	DestinationErrors        = "/user/queue/errors"
	DestinationSession       = "/user/queue/session"
)

// Notification statuses carried in NOTIFICATIONS frames.
const (
	NotifyFriendRequest    = "FRIEND_REQUEST"
	NotifyRequestSent      = "REQUEST_SENT_SUCCESS"
	NotifyFriendAccepted   = "FRIEND_ACCEPTED"
	NotifyYouAccepted      = "YOU_ACCEPTED"
	NotifyUnfriended       = "UNFRIENDED"
	NotifyRequestCancelled = "REQUEST_CANCELLED"
	NotifyRequestRejected  = "REQUEST_REJECTED"
)

// InboundFrame is a client frame. Token and Headers are only read on CONNECT.
type InboundFrame struct {
	Type    string            `json:"type"`
	Token   string            `json:"token,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// SocketResponse is every frame the server sends.
type SocketResponse struct {
	Destination string `json:"destination"`
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	Data        any    `json:"data,omitempty"`
}

// Notification is the data of a NOTIFICATIONS frame.
type Notification struct {
	Status    string       `json:"status"`
	Message   string       `json:"message"`
	From      *UserSummary `json:"from,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ErrorFrame builds an ERROR frame for the errors destination.
func ErrorFrame(message string, data any) SocketResponse {
	return SocketResponse{Destination: DestinationErrors, Type: FrameError, Message: message, Data: data}
}
