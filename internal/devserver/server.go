package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Esaban17/impostor-app/internal/protocol"
	"github.com/Esaban17/impostor-app/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Local development only.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 45 * time.Second

	// longPollWindow bounds a single /poll/events request.
	longPollWindow = 25 * time.Second
)

// RunServer starts the scripted stub on addr and blocks.
func RunServer(addr string) error {
	app := iris.Default()

	reg := newRegistry()

	app.Get(transport.WebSocketPath, wsHandler(reg))

	app.Post(transport.PollConnectPath, pollConnect(reg))
	app.Get(transport.PollEventsPath, pollEvents(reg))
	app.Post(transport.PollCommandPath, pollCommand(reg))

	zap.L().Info("dev server listening", zap.String("addr", addr))

	return app.Listen(addr)
}

func wsHandler(reg *registry) iris.Handler {
	return func(ctx iris.Context) {
		conn, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
		if err != nil {
			zap.L().Error("websocket upgrade failed", zap.Error(err))
			ctx.StatusCode(iris.StatusBadRequest)
			return
		}
		defer conn.Close()

		c := &client{
			connID: genID(),
			out:    make(chan protocol.Event, 64),
		}

		reg.attach(c)
		defer reg.detach(c.connID)

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		conn.SetPingHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
			deadline := time.Now().Add(heartbeatTimeout)
			return conn.WriteControl(websocket.PongMessage, nil, deadline)
		})

		// First frame is always the welcome carrying the connection id.
		if err := conn.WriteJSON(event(
			protocol.EVENT_WELCOME,
			protocol.WelcomePayload{ConnectionID: c.connID},
		)); err != nil {
			zap.L().Error("sending welcome failed", zap.Error(err))
			return
		}

		writeDoneCh := make(chan struct{})
		defer close(writeDoneCh)

		go func() {
			ticker := time.NewTicker(heartbeatInterval)
			defer ticker.Stop()

			for {
				select {
				case <-writeDoneCh:
					return
				case <-ticker.C:
					deadline := time.Now().Add(heartbeatTimeout)
					if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
						return
					}
				case ev := <-c.out:
					if err := conn.WriteJSON(ev); err != nil {
						zap.L().Debug("write failed", zap.Error(err))
						return
					}
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					zap.L().Debug("read failed", zap.Error(err))
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))

			var cmd protocol.Command
			if err := json.Unmarshal(msg, &cmd); err != nil {
				zap.L().Warn("ignoring malformed frame", zap.Error(err))
				continue
			}

			reg.handleCommand(c, cmd)
		}
	}
}

func pollConnect(reg *registry) iris.Handler {
	return func(ctx iris.Context) {
		c := &client{
			connID: genID(),
			out:    make(chan protocol.Event, 64),
		}

		reg.attach(c)

		ctx.JSON(protocol.WelcomePayload{ConnectionID: c.connID})
	}
}

func pollEvents(reg *registry) iris.Handler {
	return func(ctx iris.Context) {
		reg.mu.Lock()
		c := reg.clients[ctx.URLParam("cid")]
		reg.mu.Unlock()

		if c == nil {
			ctx.StatusCode(iris.StatusNotFound)
			return
		}

		var batch []protocol.Event

		timer := time.NewTimer(longPollWindow)
		defer timer.Stop()

		select {
		case ev := <-c.out:
			batch = append(batch, ev)
			// Drain whatever else is already queued.
			for {
				select {
				case ev := <-c.out:
					batch = append(batch, ev)
				default:
					ctx.JSON(batch)
					return
				}
			}
		case <-timer.C:
			ctx.StatusCode(iris.StatusNoContent)
		}
	}
}

func pollCommand(reg *registry) iris.Handler {
	return func(ctx iris.Context) {
		reg.mu.Lock()
		c := reg.clients[ctx.URLParam("cid")]
		reg.mu.Unlock()

		if c == nil {
			ctx.StatusCode(iris.StatusNotFound)
			return
		}

		var cmd protocol.Command
		if err := ctx.ReadJSON(&cmd); err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			ctx.JSON(iris.Map{"error": "invalid command"})
			return
		}

		reg.handleCommand(c, cmd)

		ctx.StatusCode(iris.StatusAccepted)
	}
}
