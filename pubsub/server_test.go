package pubsub_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const silentTopic = "silent.topic"

type receivedFrame struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce"`
	Data  struct {
		Topics    []string `json:"topics"`
		AuthToken string   `json:"auth_token"`
	} `json:"data"`
}

// fakePubSub is a minimal PubSub edge: it answers PING, LISTEN and UNLISTEN
// and lets the test push frames or drop the socket.
type fakePubSub struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	conns      []*serverConn
	frames     []receivedFrame
	reject     map[string]string
	ignorePing bool
}

type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) send(t *testing.T, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode server frame: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, data)
}

func newFakePubSub(t *testing.T) *fakePubSub {
	t.Helper()
	fake := &fakePubSub{t: t, reject: map[string]string{}}
	upgrader := websocket.Upgrader{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &serverConn{ws: ws}
		fake.mu.Lock()
		fake.conns = append(fake.conns, conn)
		fake.mu.Unlock()
		fake.serve(conn)
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakePubSub) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakePubSub) serve(conn *serverConn) {
	defer conn.ws.Close()
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame receivedFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		f.mu.Lock()
		f.frames = append(f.frames, frame)
		ignorePing := f.ignorePing
		code, rejected := "", false
		if len(frame.Data.Topics) > 0 {
			code, rejected = f.reject[frame.Data.Topics[0]]
		}
		f.mu.Unlock()

		switch frame.Type {
		case "PING":
			if !ignorePing {
				conn.send(f.t, map[string]any{"type": "PONG"})
			}
		case "LISTEN", "UNLISTEN":
			if rejected && code == "silent" {
				continue
			}
			conn.send(f.t, map[string]any{"type": "RESPONSE", "nonce": frame.Nonce, "error": code})
		}
	}
}

func (f *fakePubSub) setReject(topic string, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject[topic] = code
}

func (f *fakePubSub) setIgnorePing(ignore bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignorePing = ignore
}

func (f *fakePubSub) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakePubSub) conn(index int) *serverConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[index]
}

func (f *fakePubSub) received(kind string) []receivedFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []receivedFrame{}
	for _, frame := range f.frames {
		if frame.Type == kind {
			out = append(out, frame)
		}
	}
	return out
}

func (f *fakePubSub) listenCount(topic string) int {
	count := 0
	for _, frame := range f.received("LISTEN") {
		if len(frame.Data.Topics) > 0 && frame.Data.Topics[0] == topic {
			count++
		}
	}
	return count
}

// publish pushes a MESSAGE frame on the newest connection.
func (f *fakePubSub) publish(t *testing.T, topic string, message string) {
	t.Helper()
	f.conn(f.connCount()-1).send(t, map[string]any{
		"type": "MESSAGE",
		"data": map[string]string{"topic": topic, "message": message},
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
