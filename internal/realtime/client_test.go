package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	reject   bool

	mu         sync.Mutex
	conns      []*websocket.Conn
	joins      []joinPayload
	heartbeats int
	query      map[string][]string
	joined     chan *websocket.Conn
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{t: t, joined: make(chan *websocket.Conn, 4)}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/realtime/v1/websocket" {
		http.NotFound(w, r)
		return
	}
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conns = append(fs.conns, conn)
	fs.query = r.URL.Query()
	fs.mu.Unlock()

	var writeMu sync.Mutex
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Event {
		case eventJoin:
			var jp joinPayload
			_ = json.Unmarshal(msg.Payload, &jp)
			fs.mu.Lock()
			fs.joins = append(fs.joins, jp)
			fs.mu.Unlock()
			status := "ok"
			if fs.reject {
				status = "error"
			}
			payload, _ := json.Marshal(replyPayload{Status: status, Response: json.RawMessage(`{}`)})
			writeMu.Lock()
			_ = conn.WriteJSON(message{Topic: msg.Topic, Event: eventReply, Payload: payload, Ref: msg.Ref})
			writeMu.Unlock()
			if !fs.reject {
				fs.joined <- conn
			}
		case eventHeartbeat:
			fs.mu.Lock()
			fs.heartbeats++
			fs.mu.Unlock()
			writeMu.Lock()
			_ = conn.WriteJSON(message{Topic: heartbeatTopic, Event: eventReply, Payload: json.RawMessage(`{"status":"ok","response":{}}`), Ref: msg.Ref})
			writeMu.Unlock()
		}
	}
}

func (fs *fakeServer) heartbeatCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.heartbeats
}

func pushChange(t *testing.T, conn *websocket.Conn, topic string, c Change) {
	t.Helper()
	payload, err := json.Marshal(changesPayload{Data: c})
	if err != nil {
		t.Fatalf("marshal change: %v", err)
	}
	if err := conn.WriteJSON(message{Topic: topic, Event: eventChanges, Payload: payload}); err != nil {
		t.Fatalf("push change: %v", err)
	}
}

func waitJoined(t *testing.T, fs *fakeServer) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.joined:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("server never saw a join")
		return nil
	}
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("http://localhost:54321/ignored", "key")
	if err != nil {
		t.Fatalf("websocketURL: %v", err)
	}
	if u.String() != "ws://localhost:54321/realtime/v1/websocket?apikey=key&vsn=1.0.0" {
		t.Fatalf("url = %q", u.String())
	}
	u, _ = websocketURL("project.example.com", "key")
	if u.Scheme != "wss" {
		t.Fatalf("scheme = %q, want wss", u.Scheme)
	}
	if _, err := websocketURL("", "key"); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestSubscribeJoinsAndDeliversChanges(t *testing.T) {
	fs, srv := newFakeServer(t)
	client, err := NewClient(srv.URL, "anon")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.SetToken("user-token")

	sub, err := client.Subscribe(context.Background(), "recycling_boxes")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	conn := waitJoined(t, fs)

	fs.mu.Lock()
	join := fs.joins[0]
	apikey := fs.query["apikey"]
	fs.mu.Unlock()
	if join.AccessToken != "user-token" {
		t.Fatalf("join token = %q", join.AccessToken)
	}
	if len(join.Config.PostgresChanges) != 1 || join.Config.PostgresChanges[0].Table != "recycling_boxes" {
		t.Fatalf("join filters = %#v", join.Config.PostgresChanges)
	}
	if len(apikey) != 1 || apikey[0] != "anon" {
		t.Fatalf("apikey query = %v", apikey)
	}

	pushChange(t, conn, "realtime:public:recycling_boxes", Change{
		Type: Insert, Table: "recycling_boxes", Record: json.RawMessage(`{"id":"b-1"}`),
	})
	// Frames for other topics are ignored.
	pushChange(t, conn, "realtime:public:other", Change{Type: Delete})

	select {
	case c := <-sub.Changes():
		if c.Type != Insert || string(c.Record) != `{"id":"b-1"}` {
			t.Fatalf("change = %#v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change delivered")
	}
}

func TestSubscribeRejected(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.reject = true
	client, _ := NewClient(srv.URL, "anon")

	if _, err := client.Subscribe(context.Background(), "recycling_boxes"); !errors.Is(err, ErrJoinRejected) {
		t.Fatalf("Subscribe error = %v, want ErrJoinRejected", err)
	}
}

func TestHeartbeatsAreSent(t *testing.T) {
	fs, srv := newFakeServer(t)
	client, _ := NewClient(srv.URL, "anon", WithHeartbeat(20*time.Millisecond))

	sub, err := client.Subscribe(context.Background(), "recycling_boxes")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	deadline := time.Now().Add(2 * time.Second)
	for fs.heartbeatCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := fs.heartbeatCount(); n < 2 {
		t.Fatalf("heartbeats = %d, want at least 2", n)
	}
}

func TestServerDropEndsSubscription(t *testing.T) {
	fs, srv := newFakeServer(t)
	client, _ := NewClient(srv.URL, "anon")

	sub, err := client.Subscribe(context.Background(), "recycling_boxes")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	conn := waitJoined(t, fs)
	_ = conn.Close()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription did not end after server drop")
	}
	if sub.Err() == nil {
		t.Fatalf("Err() = nil after an unexpected drop")
	}
	if _, ok := <-sub.Changes(); ok {
		t.Fatalf("Changes channel still open")
	}
}

func TestCloseEndsWithoutError(t *testing.T) {
	_, srv := newFakeServer(t)
	client, _ := NewClient(srv.URL, "anon")

	sub, err := client.Subscribe(context.Background(), "recycling_boxes")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = sub.Close()
	<-sub.Done()
	if sub.Err() != nil {
		t.Fatalf("Err() = %v after Close", sub.Err())
	}
}
