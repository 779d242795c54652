// Package viewport streams a session's viewport over a websocket. The
// client sends tile and zoom changes; the server pushes the session's
// marker events back.
package viewport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-wikimap/internal/logger"
	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Inbound message types.
const (
	TypeLoad       = "load"
	TypeUnload     = "unload"
	TypeZoom       = "zoom"
	TypeComplete   = "complete"
	TypeIncomplete = "incomplete"
)

// KindError is sent back for a rejected command.
const KindError = "error"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Command is one client message.
type Command struct {
	Type string `json:"type"`
	Z    int    `json:"z"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Key  string `json:"key,omitempty"`
}

// Handler upgrades GET /ws/sessions/{id}.
func Handler(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessions.Get(r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		c := &client{
			sess:    sess,
			bus:     sessions.Bus(),
			conn:    conn,
			events:  sessions.Bus().Subscribe(),
			replies: make(chan service.Event, 16),
			log:     logger.Log.WithField("session", sess.ID),
		}
		go c.writePump()
		c.readPump()
	}
}

type client struct {
	sess    *service.Session
	bus     *service.EventBus
	conn    *websocket.Conn
	events  chan service.Event
	replies chan service.Event
	log     *logrus.Entry
}

// readPump applies client commands until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.bus.Unsubscribe(c.events)
		if err := c.conn.Close(); err != nil {
			c.log.WithError(err).Debug("failed to close websocket connection")
		}
		c.log.Info("viewport client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.WithError(err).Warn("failed to set read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if err := c.apply(cmd); err != nil {
			c.reply(service.Event{Session: c.sess.ID, Kind: KindError, Key: cmd.Key, Message: err.Error()})
		}
	}
}

func (c *client) apply(cmd Command) error {
	tile := []service.Tile{{Z: cmd.Z, X: cmd.X, Y: cmd.Y}}
	switch cmd.Type {
	case TypeLoad:
		_, err := c.sess.ApplyViewport(service.Viewport{Load: tile})
		return err
	case TypeUnload:
		_, err := c.sess.ApplyViewport(service.Viewport{Unload: tile})
		return err
	case TypeZoom:
		z := cmd.Z
		_, err := c.sess.ApplyViewport(service.Viewport{Zoom: &z})
		return err
	case TypeComplete, TypeIncomplete:
		return c.sess.Do(func(m *markers.Map) error {
			if m.Find(cmd.Key) == nil {
				return errors.New("unknown marker " + cmd.Key)
			}
			if cmd.Type == TypeComplete {
				m.MarkComplete(cmd.Key)
			} else {
				m.MarkIncomplete(cmd.Key)
			}
			return nil
		})
	}
	return errors.New("unknown command type " + cmd.Type)
}

func (c *client) reply(e service.Event) {
	select {
	case c.replies <- e:
	default:
		c.log.Debug("reply dropped, client too slow")
	}
}

// writePump forwards this session's events and command errors, and pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			if e.Session != c.sess.ID {
				continue
			}
			if err := c.writeJSON(e); err != nil {
				return
			}
			if e.Kind == service.KindClosed {
				c.write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}

		case e := <-c.replies:
			if err := c.writeJSON(e); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeJSON(v any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.WithError(err).Warn("failed to set write deadline")
	}
	if err := c.conn.WriteJSON(v); err != nil {
		c.log.WithError(err).Debug("write json message failed")
		return err
	}
	return nil
}

func (c *client) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.WithError(err).Warn("failed to set write deadline")
	}
	if err := c.conn.WriteMessage(kind, data); err != nil {
		c.log.WithError(err).Debug("write message failed")
		return err
	}
	return nil
}
