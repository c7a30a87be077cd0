package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func readMessage(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestRouter_EchoesByType(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	router := NewRouter()
	router.Handle("ping", func(ctx context.Context, c *Client, msg *Message) error {
		var body struct{ N int }
		if err := msg.ParsePayload(&body); err != nil {
			return err
		}
		reply, _ := NewMessage("pong", map[string]int{"n": body.N + 1})
		reply.ID = msg.ID
		return c.Send(ctx, reply)
	})
	router.Default(func(ctx context.Context, c *Client, msg *Message) error {
		return c.SendTyped(ctx, "error", map[string]string{"type": msg.Type})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		client, err := hub.Join("room", "c1", conn)
		if err != nil {
			return
		}
		_ = router.Serve(r.Context(), client, Config{})
	}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close(websocket.StatusNormalClosure, "")

	ctx := context.Background()
	_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping","id":"7","payload":{"N":1}}`))
	msg := readMessage(t, c)
	if msg.Type != "pong" || msg.ID != "7" || string(msg.Payload) != `{"n":2}` {
		t.Errorf("reply = %+v (%s)", msg, msg.Payload)
	}

	_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"mystery"}`))
	if msg := readMessage(t, c); msg.Type != "error" {
		t.Errorf("unknown type reply = %q, want error", msg.Type)
	}

	_ = c.Write(ctx, websocket.MessageText, []byte(`not json`))
	msg = readMessage(t, c)
	if msg.Type != "error" || !strings.Contains(string(msg.Payload), "invalid") {
		t.Errorf("garbage reply = %+v (%s)", msg, msg.Payload)
	}
}

func TestHub_BroadcastIsPerRoom(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	joined := make(chan struct{}, 4)
	hub.OnConnect = func(*Client) { joined <- struct{}{} }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		client, err := hub.Join(r.URL.Query().Get("room"), "", conn)
		if err != nil {
			return
		}
		_ = NewRouter().Serve(r.Context(), client, Config{})
	}))
	defer srv.Close()

	dialRoom := func(room string) *websocket.Conn {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?room="+room, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", room, err)
		}
		return c
	}

	a1, a2, b := dialRoom("a"), dialRoom("a"), dialRoom("b")
	defer a1.Close(websocket.StatusNormalClosure, "")
	defer a2.Close(websocket.StatusNormalClosure, "")
	defer b.Close(websocket.StatusNormalClosure, "")
	for i := 0; i < 3; i++ {
		<-joined
	}

	if hub.RoomSize("a") != 2 || hub.RoomSize("b") != 1 || hub.Clients() != 3 {
		t.Fatalf("sizes a=%d b=%d total=%d", hub.RoomSize("a"), hub.RoomSize("b"), hub.Clients())
	}

	msg, _ := NewMessage("state", map[string]string{"phase": "idle"})
	if err := hub.Broadcast(context.Background(), "a", msg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, c := range []*websocket.Conn{a1, a2} {
		if got := readMessage(t, c); got.Type != "state" {
			t.Errorf("room a got %q", got.Type)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := b.Read(ctx); err == nil {
		t.Error("room b should not receive room a broadcasts")
	}
}

func TestHub_LeaveOnClose(t *testing.T) {
	hub := NewHub()
	left := make(chan string, 1)
	hub.OnDisconnect = func(c *Client) { left <- c.ID() }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		if _, err := hub.Join("room", "c1", conn); err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.CloseNow()

	select {
	case id := <-left:
		if id != "c1" {
			t.Errorf("left = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	if hub.Clients() != 0 || hub.RoomSize("room") != 0 {
		t.Errorf("hub still tracks client: total=%d", hub.Clients())
	}

	hub.Close()
	if _, err := hub.Join("room", "late", &Conn{}); err != ErrHubClosed {
		t.Errorf("Join after Close = %v, want ErrHubClosed", err)
	}
}

func TestIsNormalClose(t *testing.T) {
	if IsNormalClose(nil) {
		t.Error("nil is not a close")
	}
	if IsNormalClose(ErrConnectionClosed) {
		t.Error("local sentinel is not a peer close")
	}
	if !IsNormalClose(websocket.CloseError{Code: websocket.StatusGoingAway}) {
		t.Error("going away should be normal")
	}
	if IsNormalClose(websocket.CloseError{Code: websocket.StatusPolicyViolation}) {
		t.Error("policy violation is not normal")
	}
}

func TestHub_CloseRoom(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	joined := make(chan struct{}, 1)
	hub.OnConnect = func(*Client) { joined <- struct{}{} }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		client, err := hub.Join("done", "c1", conn)
		if err != nil {
			return
		}
		_ = NewRouter().Serve(r.Context(), client, Config{})
	}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.CloseNow()
	<-joined

	hub.CloseRoom("done", StatusNormalClosure, "finished")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusNormalClosure {
		t.Errorf("close status = %v (%v), want normal closure", got, err)
	}
	if hub.RoomSize("done") != 0 {
		t.Errorf("room still has %d clients", hub.RoomSize("done"))
	}
}
