package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ptzctl/internal/protocol"
	"ptzctl/internal/ptz"
)

// Client represents a connected WebSocket client
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:     uuid.New(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
	s.log.Debug("client connected", "client", client.id, "remote", r.RemoteAddr)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	// Send initial status
	client.sendStatus("")
}

func (c *Client) sendStatus(id string) {
	c.reply(id, protocol.TypeStatus, protocol.StatusPayload{
		Status:          c.server.ctrl.Status(),
		ControlProtocol: c.server.cfg.ControlProtocol,
	})
}

func (c *Client) sendPose(p ptz.Pose) {
	c.reply("", protocol.TypePose, protocol.PosePayload{Pose: p})
}

func (c *Client) sendError(id string, err error) {
	_, code := errorCode(err)
	c.reply(id, protocol.TypeError, protocol.ErrorPayload{Code: code, Message: err.Error()})
}

// reply queues a message without blocking; a client that does not keep up loses it.
func (c *Client) reply(id, msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		c.server.log.Error("failed to create message", "type", msgType, "error", err)
		return
	}
	msg.ID = id

	data, err := json.Marshal(msg)
	if err != nil {
		c.server.log.Error("failed to marshal message", "type", msgType, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.log.Warn("client send buffer full, dropping message", "client", c.id, "type", msgType)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
		c.server.log.Debug("client disconnected", "client", c.id)
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn("websocket error", "client", c.id, "error", err)
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", protocol.TypeError, protocol.ErrorPayload{
			Code:    protocol.ErrInvalidMessage,
			Message: "Failed to parse message",
		})
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.invalid(msg)
			return
		}
		c.reply(msg.ID, protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeStatus:
		c.sendStatus(msg.ID)

	case protocol.TypeMoveRelative:
		var payload protocol.MoveRelativePayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.invalid(msg)
			return
		}
		axis, err := ptz.ParseAxis(payload.Axis)
		if err != nil {
			c.sendError(msg.ID, err)
			return
		}
		c.run(msg.ID, func(ctx context.Context) (ptz.Result, error) {
			return c.server.ctrl.MoveRelative(ctx, axis, payload.Delta, payload.Blocking)
		})

	case protocol.TypeMoveAbsolute:
		var payload protocol.MoveAbsolutePayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.invalid(msg)
			return
		}
		c.run(msg.ID, func(ctx context.Context) (ptz.Result, error) {
			return c.server.ctrl.MoveAbsolute(ctx, payload.Target, payload.Blocking)
		})

	case protocol.TypePTZStop:
		var payload protocol.StopPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.invalid(msg)
			return
		}
		c.run(msg.ID, func(ctx context.Context) (ptz.Result, error) {
			pose, err := c.server.stop(ctx, payload.Axes)
			return ptz.Result{Pose: pose}, err
		})

	case protocol.TypePTZOrigin:
		var payload protocol.OriginPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.invalid(msg)
			return
		}
		c.run(msg.ID, func(ctx context.Context) (ptz.Result, error) {
			return c.server.ctrl.CalibrateHardOrigin(ctx, payload.Blocking)
		})

	case protocol.TypePTZHome:
		c.run(msg.ID, c.server.ctrl.GoHome)

	case protocol.TypePTZPreset:
		var payload protocol.PTZPresetPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.invalid(msg)
			return
		}
		c.handlePTZPreset(msg.ID, payload)

	default:
		c.server.log.Debug("unknown message type", "client", c.id, "type", msg.Type)
		c.invalid(msg)
	}
}

func (c *Client) invalid(msg protocol.Message) {
	c.reply(msg.ID, protocol.TypeError, protocol.ErrorPayload{
		Code:    protocol.ErrInvalidMessage,
		Message: "Invalid " + msg.Type + " message",
	})
}

// run executes fn off the read loop and answers with a result or an error.
func (c *Client) run(id string, fn func(ctx context.Context) (ptz.Result, error)) {
	c.server.goTracked(func() {
		res, err := fn(c.server.ctx)
		if err != nil {
			c.server.checkDevice(err)
			c.sendError(id, err)
			return
		}
		c.reply(id, protocol.TypeResult, res)
	})
}

func (c *Client) handlePTZPreset(id string, p protocol.PTZPresetPayload) {
	s := c.server
	switch p.Action {
	case "recall":
		c.run(id, func(ctx context.Context) (ptz.Result, error) {
			return s.recallPreset(ctx, p.Name, false)
		})
	case "save":
		pose := s.ctrl.EstimatedPose()
		if err := s.presets.Save(s.ctx, p.Name, pose); err != nil {
			c.sendError(id, err)
			return
		}
		c.reply(id, protocol.TypeResult, ptz.Result{Pose: pose})
	case "delete":
		if err := s.presets.Delete(s.ctx, p.Name); err != nil {
			c.sendError(id, err)
			return
		}
		c.reply(id, protocol.TypeResult, ptz.Result{Pose: s.ctrl.EstimatedPose()})
	default:
		c.reply(id, protocol.TypeError, protocol.ErrorPayload{
			Code:    protocol.ErrInvalidMessage,
			Message: "Unknown preset action " + p.Action,
		})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
