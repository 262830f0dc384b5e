/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Seednode/partydisplay/hub"
	"github.com/Seednode/partydisplay/protocol"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin reports whether r was sent by a page served from this host.
// Requests without an Origin header come from non-browser clients and are
// allowed.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return strings.EqualFold(u.Host, r.Host)
}

// Client is one browser tab attached to the party.
type Client struct {
	conn      *websocket.Conn
	sub       *hub.Subscriber
	writeWait time.Duration
}

func serveWS(cfg *Config, s *server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.logger.Debug("websocket upgrade failed", zap.String("remote", realIP(r)), zap.Error(err))

			return
		}

		client := &Client{
			conn:      conn,
			sub:       s.hub.Subscribe(),
			writeWait: cfg.writeWait,
		}

		logf(cfg, "SERVE: Client %s connected from %s", client.sub.ID(), realIP(r))

		s.handler.Welcome(client.sub)

		go client.writePump(cfg.logger)
		client.readPump(s.hub, s.handler)

		logf(cfg, "SERVE: Client %s disconnected", client.sub.ID())
	}
}

func (c *Client) readPump(h *hub.Hub, handler *protocol.Handler) {
	defer func() {
		h.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		handler.Dispatch(c.sub, frame)
	}
}

// writePump drains the subscriber queue onto the socket. It exits when the
// hub closes the queue or a write fails.
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.Messages():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", zap.String("subscriber", c.sub.ID()), zap.Error(err))

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
