package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"gpsbridge/internal/publish"
	"gpsbridge/internal/receiver"
)

const (
	eventsWriteWait  = 5 * time.Second
	eventsPingPeriod = 20 * time.Second
	eventsBuffer     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler streams every receiver event as a JSON message over a
// websocket. Slow clients lose events; the session never waits for them.
func EventsHandler(events *receiver.Broadcaster, state *receiver.State) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if events == nil || state == nil {
			http.Error(w, "receiver unavailable", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("events: websocket upgrade failed")
			return
		}
		defer conn.Close()

		id, ch := events.Subscribe(eventsBuffer)
		defer events.Unsubscribe(id)

		// The reader only watches for the client going away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						log.WithError(err).Debug("events: client read error")
					}
					return
				}
			}
		}()

		ping := time.NewTicker(eventsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(eventsWriteWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
				if err := conn.WriteJSON(publish.NewMessage(ev, state.Snapshot())); err != nil {
					log.WithError(err).Debug("events: write failed")
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
					return
				}
			}
		}
	})
}
