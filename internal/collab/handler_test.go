package collab

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/event"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/testutil"
	"github.com/Iron-Ham/todohub/internal/todo"
)

type testServer struct {
	hub     *Hub
	handler *Handler
	issuer  *auth.Issuer
	ts      *httptest.Server
}

func newTestServer(t *testing.T, cfg HandlerConfig) *testServer {
	t.Helper()
	hub, err := NewHub(Config{Bus: event.NewBus()})
	if err != nil {
		t.Fatal(err)
	}
	issuer := testutil.NewIssuer(t)
	handler, err := NewHandler(hub, issuer, cfg, nil)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		handler.Shutdown()
		ts.Close()
		hub.Close()
	})
	return &testServer{hub: hub, handler: handler, issuer: issuer, ts: ts}
}

func (s *testServer) url(token string) string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws?token=" + token
}

func (s *testServer) dial(t *testing.T, name string) *websocket.Conn {
	t.Helper()
	token, err := s.issuer.Issue(auth.Identity{UserID: "id-" + name, Name: name})
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url(token), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type   string            `json:"type"`
	Users  []string          `json:"users"`
	Locks  map[string]string `json:"locks"`
	Action string            `json:"action"`
	Todo   struct {
		ID string `json:"id"`
	} `json:"todo"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

// readUntil reads until a message of msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wireMessage {
	t.Helper()
	for range 10 {
		if msg := readMessage(t, conn); msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message within 10 reads", msgType)
	return wireMessage{}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func join(t *testing.T, conn *websocket.Conn, key string) {
	t.Helper()
	send(t, conn, map[string]string{"type": TypeJoinCollection, "collectionKey": key})
	readUntil(t, conn, TypeLocksUpdated)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHandler_RejectsBadCredentials(t *testing.T) {
	s := newTestServer(t, HandlerConfig{})

	for _, token := range []string{"", "garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(s.url(token), nil)
		if err == nil {
			t.Fatalf("dial with token %q succeeded", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: response = %v, want 401", token, resp)
		}
	}
	if s.handler.Active() != 0 {
		t.Error("rejected connections must not be tracked")
	}
}

func TestHandler_OriginPolicy(t *testing.T) {
	s := newTestServer(t, HandlerConfig{AllowedOrigins: []string{"https://*.example.com"}})
	token, _ := s.issuer.Issue(auth.Identity{UserID: "u", Name: "alice"})

	tests := []struct {
		origin string
		wantOK bool
	}{
		{"https://app.example.com", true},
		{"https://evil.test", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(s.url(token), header)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("dial failed: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("dial from disallowed origin succeeded")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("response = %v, want 403", resp)
			}
		})
	}
}

func TestNewHandler_InvalidOrigin(t *testing.T) {
	hub, _ := NewHub(Config{Bus: event.NewBus()})
	defer hub.Close()
	if _, err := NewHandler(hub, testutil.NewIssuer(t), HandlerConfig{AllowedOrigins: []string{"[unclosed"}}, nil); err == nil {
		t.Error("NewHandler() accepted an invalid pattern")
	}
}

func TestHandler_CollaborationFlow(t *testing.T) {
	s := newTestServer(t, HandlerConfig{})
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	// Presence in join order.
	join(t, alice, "abc")
	send(t, bob, map[string]string{"type": TypeJoinCollection, "collectionKey": "abc"})
	want := []string{"alice", "bob"}
	if got := readUntil(t, alice, TypeActiveUsersUpdated).Users; !reflect.DeepEqual(got, want) {
		t.Errorf("alice presence = %v, want %v", got, want)
	}
	if got := readUntil(t, bob, TypeActiveUsersUpdated).Users; !reflect.DeepEqual(got, want) {
		t.Errorf("bob presence = %v, want %v", got, want)
	}
	readUntil(t, bob, TypeLocksUpdated)

	// Alice locks t1; bob sees it, alice does not see her own lock.
	send(t, alice, map[string]string{"type": TypeLockTodo, "todoId": "t1", "collectionKey": "abc"})
	if got := readUntil(t, bob, TypeLocksUpdated).Locks; !reflect.DeepEqual(got, map[string]string{"t1": "alice"}) {
		t.Errorf("bob locks = %v", got)
	}
	if got := readUntil(t, alice, TypeLocksUpdated).Locks; len(got) != 0 {
		t.Errorf("alice locks = %v, want empty", got)
	}

	// Bob's attempt does not take over.
	send(t, bob, map[string]string{"type": TypeLockTodo, "todoId": "t1", "collectionKey": "abc"})
	waitFor(t, func() bool {
		h, _ := s.hub.Locks().Holder("abc", "t1")
		return h == "alice"
	})

	// Malformed and unknown frames are ignored; the connection stays usable.
	if err := bob.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	send(t, bob, map[string]string{"type": "SOMETHING_ELSE"})
	send(t, bob, map[string]string{"type": TypeLockTodo, "collectionKey": "abc"})

	// Committed delete reaches both members.
	s.hub.Announce(store.TodoView{Todo: store.Todo{ID: "t7", CollectionKey: "abc"}}, todo.ActionDelete)
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readUntil(t, conn, TypeTodoUpdated)
		if msg.Todo.ID != "t7" || msg.Action != "delete" {
			t.Errorf("todo update = %+v", msg)
		}
	}

	// Alice leaves; her lock goes with her.
	alice.Close()
	if got := readUntil(t, bob, TypeLocksUpdated).Locks; len(got) != 0 {
		t.Errorf("bob locks after alice left = %v", got)
	}
	if got := readUntil(t, bob, TypeActiveUsersUpdated).Users; !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("bob presence after alice left = %v", got)
	}
	waitFor(t, func() bool { return s.handler.Active() == 1 })
}

func TestHandler_ShutdownClosesSessions(t *testing.T) {
	s := newTestServer(t, HandlerConfig{})
	conn := s.dial(t, "alice")
	join(t, conn, "abc")
	send(t, conn, map[string]string{"type": TypeLockTodo, "todoId": "t1", "collectionKey": "abc"})
	waitFor(t, func() bool {
		_, held := s.hub.Locks().Holder("abc", "t1")
		return held
	})

	s.handler.Shutdown()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	waitFor(t, func() bool { return s.handler.Active() == 0 })
	if _, held := s.hub.Locks().Holder("abc", "t1"); held {
		t.Error("shutdown must run the close cascade")
	}
}

func TestWSPeer_SendNeverBlocks(t *testing.T) {
	p := &wsPeer{id: "c1", send: make(chan []byte, 1), logger: logging.NopLogger()}

	msg := ActiveUsersUpdated{Users: []string{"alice"}}
	if !p.Send(msg) {
		t.Fatal("first Send() should be queued")
	}
	if p.Send(msg) {
		t.Error("Send() on a full queue should drop")
	}

	<-p.send
	p.close()
	p.close()
	if p.Send(msg) {
		t.Error("Send() after close should drop")
	}
	if p.State() != StateConnecting {
		t.Errorf("State() = %v", p.State())
	}
}

func TestWSPeer_StateTransitionsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Writer: &buf, Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	p := &wsPeer{id: "c1", send: make(chan []byte, 1), logger: logger}

	if p.State() != StateConnecting {
		t.Fatalf("initial State() = %v", p.State())
	}
	for _, s := range []ConnState{StateAuthenticated, StateJoined, StateJoined, StateClosed} {
		p.setState(s)
	}
	if p.State() != StateClosed {
		t.Errorf("State() = %v, want closed", p.State())
	}

	out := buf.String()
	if n := strings.Count(out, "connection state changed"); n != 3 {
		t.Errorf("logged %d transitions, want 3 (rejoin logs nothing):\n%s", n, out)
	}
	for _, want := range []string{
		`"from":"connecting","to":"authenticated"`,
		`"from":"authenticated","to":"joined"`,
		`"from":"joined","to":"closed"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}
