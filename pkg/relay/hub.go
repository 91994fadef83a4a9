package relay

import (
	"net/http"

	"github.com/holomesh/holomesh/pkg/com"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
	"github.com/holomesh/holomesh/pkg/network/websocket"
	"golang.org/x/time/rate"
)

// Hub accepts websocket clients and turns them into relay sessions.
type Hub struct {
	conf     config.Signaler
	relay    *Relay
	upgrader *websocket.Upgrader
	sessions com.NetMap[com.Uid, *Session]
	log      *logger.Logger
}

func NewHub(conf config.Signaler, relay *Relay, log *logger.Logger) *Hub {
	return &Hub{
		conf:     conf,
		relay:    relay,
		upgrader: websocket.NewUpgrader(conf.Origin),
		sessions: com.NewNetMap[com.Uid, *Session](),
		log:      log,
	}
}

// Handler upgrades an HTTP request into a relay session socket.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r)
		if err != nil {
			h.log.Error().Err(err).Msg("Socket upgrade fail")
			return
		}
		ws, err := websocket.NewServerWithConn(conn, h.log)
		if err != nil {
			h.log.Error().Err(err).Msg("Socket init fail")
			return
		}
		session := NewSession(ws, h.relay, rate.Limit(h.conf.RateLimit.Rps), h.conf.RateLimit.Burst, h.log)
		h.sessions.Add(session)
		h.log.Debug().Str("cid", session.Id().Short()).Msgf("Connect, %d session(s)", h.sessions.Len())
		ws.Listen()
		go h.watch(session)
	}
}

// watch waits for the socket teardown and releases the session's
// memberships, turning a silent disconnect into leaves.
func (h *Hub) watch(session *Session) {
	<-session.Done()
	session.Close()
	h.sessions.Remove(session)
	h.log.Debug().Str("cid", session.Id().Short()).Msgf("Disconnect, %d session(s)", h.sessions.Len())
}

// Count returns the number of live sessions.
func (h *Hub) Count() int { return h.sessions.Len() }

// Close disconnects every session.
func (h *Hub) Close() {
	h.sessions.ForEach(func(s *Session) { s.Disconnect() })
}
