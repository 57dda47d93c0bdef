package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/agreemo/dashboard/backend/internal/hub"
)

const socketWriteTimeout = 10 * time.Second

type subscriberRegistry interface {
	Register(c *hub.Client)
}

type subscriptionHooks interface {
	OnSubscriberConnect(subscriberID string)
	OnSubscriberDisconnect(subscriberID string)
}

// SocketHandler upgrades dashboard clients to websocket subscribers. Each
// outbound frame is a JSON {"event": name, "data": payload} message.
type SocketHandler struct {
	registry  subscriberRegistry
	hooks     subscriptionHooks
	accept    *websocket.AcceptOptions
	queueSize int
	logger    *slog.Logger
}

// NewSocketHandler restricts upgrades to allowOrigin; "*" accepts any origin.
// A nil logger falls back to slog.Default.
func NewSocketHandler(registry subscriberRegistry, hooks subscriptionHooks, allowOrigin string, logger *slog.Logger) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	opts := &websocket.AcceptOptions{}
	switch {
	case allowOrigin == "*":
		opts.InsecureSkipVerify = true
	case allowOrigin != "":
		if u, err := url.Parse(allowOrigin); err == nil && u.Host != "" {
			opts.OriginPatterns = []string{u.Host}
		}
	}
	return &SocketHandler{registry: registry, hooks: hooks, accept: opts, queueSize: 32, logger: logger}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	client := hub.NewClient(h.queueSize)
	h.registry.Register(client)
	defer h.hooks.OnSubscriberDisconnect(client.ID)
	h.hooks.OnSubscriberConnect(client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Inbound frames are not part of the protocol; drain them so control
	// frames are processed and a client close is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt, ok := <-client.Messages():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "unsubscribed")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, socketWriteTimeout)
			err := wsjson.Write(wctx, conn, evt)
			wcancel()
			if err != nil {
				h.logger.Info("websocket write failed", "subscriber", client.ID, "error", err)
				return
			}
		}
	}
}
