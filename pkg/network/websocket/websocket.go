package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holomesh/holomesh/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	readWait       = 5 * time.Second
	writeWait      = 10 * time.Second
)

type WS struct {
	conn     deadlinedConn
	send     chan []byte
	isServer bool

	OnMessage MessageHandler

	once sync.Once
	Done chan struct{}

	log *logger.Logger
}

type MessageHandler func(message []byte, err error)

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		WriteBufferPool: &sync.Pool{},
	},
}

// NewUpgrader makes an upgrader that accepts only the given origin,
// any origin when empty.
func NewUpgrader(origin string) *Upgrader {
	u := Upgrader{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			WriteBufferPool: &sync.Pool{},
		},
	}
	switch origin {
	case "", "*":
		u.CheckOrigin = func(r *http.Request) bool { return true }
	default:
		u.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == origin }
	}
	return &u
}

func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.Upgrader.Upgrade(w, r, nil)
}

// NewServerWithConn wraps an already upgraded server-side connection.
func NewServerWithConn(conn *websocket.Conn, log *logger.Logger) (*WS, error) {
	return newSocket(conn, true, log), nil
}

func NewClient(address string, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, isServer bool, log *logger.Logger) *WS {
	safeConn := deadlinedConn{sock: conn, wt: writeWait}
	if !isServer {
		safeConn.rt = readWait
	}
	ws := &WS{
		conn:     safeConn,
		send:     make(chan []byte, 32),
		isServer: isServer,
		Done:     make(chan struct{}),
		log:      log,
	}
	return ws
}

// Listen starts the reader and writer pumps of the connection.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

// reader pumps messages from the websocket connection to the OnMessage
// callback. Serializes all the reads.
func (ws *WS) reader() {
	defer ws.shut()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.isServer {
			_ = conn.SetReadDeadline(time.Now().Add(pongTime))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(pongTime))
				return nil
			})
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("socket read fail")
			}
			return
		}
		ws.OnMessage(message, nil)
	}
}

// writer pumps messages from the send channel to the websocket
// connection. Serializes all the writes and keeps server-side
// connections alive with pings.
func (ws *WS) writer() {
	var ping <-chan time.Time
	if ws.isServer {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer ws.shut()
	for {
		select {
		case message, ok := <-ws.send:
			if !ok {
				_ = ws.conn.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ping:
			if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.Done:
			return
		}
	}
}

// Write queues data for the writer pump; drops when the connection
// is congested instead of blocking the caller.
func (ws *WS) Write(data []byte) {
	select {
	case ws.send <- data:
	case <-ws.Done:
	default:
		ws.log.Warn().Msg("socket send buffer overrun, message dropped")
	}
}

func (ws *WS) Close() { ws.shut() }

func (ws *WS) shut() {
	ws.once.Do(func() {
		close(ws.Done)
		_ = ws.conn.write(websocket.CloseMessage, []byte{})
		_ = ws.conn.close()
	})
}
