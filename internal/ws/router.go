package ws

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// friendPayload names the other party of a friend/request or friend/accept
// frame. A bare JSON string is accepted too.
type friendPayload struct {
	Username string `json:"username"`
}

func decodeFriend(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		err := json.Unmarshal(raw, &name)
		return name, err
	}
	var p friendPayload
	err := decode(raw, &p)
	return p.Username, err
}

func decode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// route handles one application frame. Failures are answered with an ERROR
// frame on the errors destination and never close the connection.
func (g *Gateway) route(ctx context.Context, sess *Session, p auth.Principal, data []byte, log *zap.Logger) {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		observability.IncWSFrame("unknown", "malformed")
		_ = sess.SendFrame(errorFrame(ErrMalformedFrame))
		return
	}

	err := g.dispatch(ctx, p, frame)
	if err == nil {
		observability.IncWSFrame(frame.Type, "ok")
		return
	}

	observability.IncWSFrame(frame.Type, "error")
	if !errs.IsKnown(err) {
		log.Error("frame failed", zap.String("type", frame.Type), zap.Error(err))
	}
	_ = sess.SendFrame(errorFrame(err))
}

func (g *Gateway) dispatch(ctx context.Context, p auth.Principal, frame models.InboundFrame) error {
	switch frame.Type {
	case models.FrameConnect:
		return ErrAlreadyBound
	case models.FrameAddUser, models.FrameSendMessage, models.FrameSendPrivateMessage:
		var req models.ChatMessageRequest
		if err := decode(frame.Payload, &req); err != nil {
			return ErrMalformedFrame
		}
		var err error
		switch frame.Type {
		case models.FrameAddUser:
			_, err = g.messages.Join(ctx, p.UserID, req)
		case models.FrameSendMessage:
			_, err = g.messages.SendPublic(ctx, p.UserID, req)
		default:
			_, err = g.messages.SendPrivate(ctx, p.UserID, req)
		}
		return err
	case models.FrameFriendRequest, models.FrameFriendAccept:
		username, err := decodeFriend(frame.Payload)
		if err != nil || username == "" {
			return ErrMalformedFrame
		}
		if frame.Type == models.FrameFriendRequest {
			_, err = g.friends.SendRequest(ctx, p.UserID, username)
		} else {
			_, err = g.friends.AcceptRequest(ctx, p.UserID, username)
		}
		return err
	default:
		return ErrUnknownFrame
	}
}
