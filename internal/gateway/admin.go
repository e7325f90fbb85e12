package gateway

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/space-gateway-go/internal/json"
	"github.com/lk2023060901/space-gateway-go/internal/service"
	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/log"
	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// adminRequest is one JSON frame on the admin socket.
type adminRequest struct {
	Event    string   `json:"event"`
	RoomIDs  []string `json:"roomIds,omitempty"`
	RoomID   string   `json:"roomId,omitempty"`
	Message  string   `json:"message,omitempty"`
	Type     string   `json:"type,omitempty"`
	UserUUID string   `json:"userUuid,omitempty"`
}

// adminResponse acknowledges admin frames and carries room occupancy.
type adminResponse struct {
	Event   string         `json:"event"`
	Rooms   map[string]int `json:"rooms,omitempty"`
	Message string         `json:"message,omitempty"`
}

// adminConn is one connected admin. Unlike client sessions the admin socket
// speaks plain JSON text frames: an undecodable frame closes the socket
// with 1007, touching a room outside the listen set closes it with 1008.
// authorized is nil for an unrestricted credential; otherwise listen may
// only name rooms inside it.
type adminConn struct {
	conn       *websocket.Conn
	srv        *Server
	rooms      typeutil.Set[string]
	authorized typeutil.Set[string]
}

// serveAdmin pumps one admin connection until it fails or misbehaves.
func (srv *Server) serveAdmin(conn *websocket.Conn, claims *service.AdminClaims) {
	a := &adminConn{
		conn:  conn,
		srv:   srv,
		rooms: typeutil.NewSet[string](),
	}
	if !claims.Unrestricted() {
		a.authorized = typeutil.NewSet(claims.Rooms...)
	}
	defer func() { _ = conn.Close() }()

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			a.closeWith(wire.CloseInvalidMessage, "expected text frames")
			return
		}

		var req adminRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			log.Warn("admin sent invalid json", zap.Error(err))
			a.closeWith(wire.CloseInvalidMessage, "invalid json")
			return
		}
		if !a.handle(&req) {
			return
		}
	}
}

// handle processes one frame; false means the socket was closed.
func (a *adminConn) handle(req *adminRequest) bool {
	switch req.Event {
	case "listen":
		if len(req.RoomIDs) == 0 {
			a.closeWith(wire.CloseInvalidMessage, "listen requires roomIds")
			return false
		}
		if a.authorized != nil {
			for _, room := range req.RoomIDs {
				if !a.authorized.Contain(room) {
					log.Warn("admin listened outside its room scope", zap.String("room", room))
					a.closeWith(wire.CloseAccessRefused, "room not authorized")
					return false
				}
			}
		}
		a.rooms.Insert(req.RoomIDs...)
		a.ack()
		return true

	case "user-message":
		if !a.rooms.Contain(req.RoomID) {
			log.Warn("admin touched unlistened room", zap.String("room", req.RoomID))
			a.closeWith(wire.CloseAccessRefused, "room not listened")
			return false
		}
		notice := &wire.SendUserMessage{Type: req.Type, Message: req.Message}
		if req.Type == "" {
			notice.Type = "message"
		}
		a.srv.manager.BroadcastRoom(req.RoomID, notice)
		a.ack()
		return true

	case "ban":
		if !a.rooms.Contain(req.RoomID) {
			a.closeWith(wire.CloseAccessRefused, "room not listened")
			return false
		}
		banned := a.srv.manager.FindByUUID(req.UserUUID)
		for _, s := range banned {
			if s.PlayURI() != req.RoomID {
				continue
			}
			s.SendNow(&wire.SendUserMessage{Type: "banned", Message: req.Message})
			s.Close(wire.CloseNormal, "banned")
		}
		a.ack()
		return true

	default:
		log.Warn("admin sent unknown event", zap.String("event", req.Event))
		a.closeWith(wire.CloseInvalidMessage, "unknown event")
		return false
	}
}

// ack reports the occupancy of every listened room.
func (a *adminConn) ack() {
	resp := adminResponse{Event: "ack", Rooms: make(map[string]int, a.rooms.Len())}
	for _, room := range a.rooms.Collect() {
		resp.Rooms[room] = a.srv.rooms.Occupancy(room)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = a.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = a.conn.WriteMessage(websocket.TextMessage, raw)
}

func (a *adminConn) closeWith(code int, reason string) {
	deadline := time.Now().Add(10 * time.Second)
	_ = a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = a.conn.Close()
}
