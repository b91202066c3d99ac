package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ericogr/plura-monitor/pkg/events"
	"github.com/ericogr/plura-monitor/pkg/store"
)

const writeWait = 5 * time.Second

// wsMessage is sent to websocket clients. Readings are included for
// readings.updated events and the initial snapshot.
type wsMessage struct {
	Event    string        `json:"event"`
	Data     any           `json:"data,omitempty"`
	Readings []store.Entry `json:"readings,omitempty"`
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logrus.WithField("remote", c.Request.RemoteAddr)
	log.Debug("websocket client connected")
	defer log.Debug("websocket client disconnected")

	sub := s.opts.Hub.Subscribe()
	defer s.opts.Hub.Unsubscribe(sub)

	// the client never sends data; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.send(conn, wsMessage{Event: "snapshot", Readings: s.opts.Store.ReadAll()}); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			msg := wsMessage{Event: ev.Name, Data: ev.Data}
			if ev.Name == events.ReadingsUpdated {
				msg.Readings = s.opts.Store.ReadAll()
			}
			if err := s.send(conn, msg); err != nil {
				log.WithError(err).Debug("websocket write failed")
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
