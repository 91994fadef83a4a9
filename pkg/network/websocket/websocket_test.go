package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holomesh/holomesh/pkg/logger"
)

func TestClientServerRoundTrip(t *testing.T) {
	log := logger.Default()
	upgrader := NewUpgrader("")

	serverGot := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade fail: %v", err)
			return
		}
		ws, err := NewServerWithConn(conn, log)
		if err != nil {
			t.Errorf("wrap fail: %v", err)
			return
		}
		ws.OnMessage = func(message []byte, _ error) {
			serverGot <- message
			ws.Write(append([]byte("ack:"), message...))
		}
		ws.Listen()
	}))
	defer srv.Close()

	client, err := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), log)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	clientGot := make(chan []byte, 1)
	client.OnMessage = func(message []byte, _ error) { clientGot <- message }
	client.Listen()
	client.Write([]byte("hello"))

	wait := func(ch chan []byte, want string) {
		t.Helper()
		select {
		case got := <-ch:
			if string(got) != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("no message within 3s, want %q", want)
		}
	}
	wait(serverGot, "hello")
	wait(clientGot, "ack:hello")
}
