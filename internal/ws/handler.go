// Package ws bridges a WebSocket connection to a room: inbound frames are
// decoded into commands for the room inbox, and the room's events are
// written back from a dedicated writer goroutine.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/declare/internal/room"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Log            logrus.FieldLogger
	OriginPatterns []string
	OutboxSize     int
	ReadLimit      int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

func (o *Options) defaults() {
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 8 << 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
}

// Serve upgrades the request and pumps messages between the socket and rm
// until either side goes away.
func Serve(w http.ResponseWriter, r *http.Request, rm *room.Room, opts Options) {
	opts.defaults()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
	if err != nil {
		opts.Log.WithError(err).Debug("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(opts.ReadLimit)

	connID := uuid.New()
	log := opts.Log.WithFields(logrus.Fields{"room": rm.ID(), "conn": connID})
	out := make(chan room.Event, opts.OutboxSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if err := rm.Send(ctx, room.Attach{ConnID: connID, Outbox: out}); err != nil {
		conn.Close(websocket.StatusGoingAway, "room closed")
		return
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
		defer dcancel()
		_ = rm.Send(dctx, room.Detach{ConnID: connID})
	}()

	go writeLoop(ctx, cancel, conn, out, opts, log)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.WithError(err).Debug("read")
				}
			}
			return
		}
		cmd, err := Decode(data)
		if err != nil {
			log.WithError(err).Debug("bad message")
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			_ = wsjson.Write(wctx, conn, room.Event{Type: room.EventError, Payload: room.ErrorPayload{Message: err.Error()}})
			wcancel()
			continue
		}
		if err := rm.Send(ctx, room.FromClient{ConnID: connID, Cmd: cmd}); err != nil {
			return
		}
	}
}

// writeLoop drains the outbox and keeps the connection alive with pings.
// When the room closes the outbox the connection is torn down.
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan room.Event, opts Options, log logrus.FieldLogger) {
	defer cancel()
	ping := time.NewTicker(opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "dropped by room")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				log.WithError(err).Debug("write")
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.WithError(err).Debug("ping")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
