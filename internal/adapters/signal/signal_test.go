package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/o2o/internal/app/rendezvous"
	"github.com/dkeye/o2o/internal/core"
	"github.com/dkeye/o2o/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const testRoom domain.RoomID = "abcdefgh12345678"

func newServer(t *testing.T, limiter *RoomRateLimiter) (*httptest.Server, *rendezvous.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := rendezvous.NewHub(time.Minute, nil)
	ctl := NewSignalWSController(hub, limiter, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=" + id
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, m core.Message) {
	t.Helper()
	frame, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, ws *websocket.Conn) core.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	m, err := core.DecodeMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func expect(t *testing.T, ws *websocket.Conn, want core.MessageType) core.Message {
	t.Helper()
	m := read(t, ws)
	if m.Type != want {
		t.Fatalf("got %s, want %s", m.Type, want)
	}
	return m
}

func TestPairAndRelay(t *testing.T) {
	srv, hub := newServer(t, nil)
	a := dial(t, srv, "creator")
	b := dial(t, srv, "viewer")

	q := domain.DefaultQuality()
	write(t, a, core.JoinMessage(testRoom, &q))
	expect(t, a, core.TypeJoined)

	write(t, b, core.JoinMessage(testRoom, nil))
	expect(t, b, core.TypeJoined)
	ready := expect(t, b, core.TypeReady)
	if ready.Quality == nil || ready.Quality.Codec != q.Codec {
		t.Errorf("ready quality = %+v", ready.Quality)
	}
	expect(t, a, core.TypeReady)

	offer := core.Message{Type: core.TypeOffer, Room: testRoom, Message: "opaque"}
	write(t, a, offer)
	got := expect(t, b, core.TypeOffer)
	if got.Message != "opaque" {
		t.Errorf("relayed frame altered: %+v", got)
	}

	write(t, b, core.Message{Type: core.TypeState, Room: testRoom, Cam: true})
	if st := expect(t, a, core.TypeState); !st.Cam {
		t.Errorf("state lost: %+v", st)
	}

	if info := hub.Info(testRoom); !info.Creator || !info.Viewer {
		t.Errorf("info = %+v", info)
	}
}

func TestJoinRejectedIsFatal(t *testing.T) {
	srv, _ := newServer(t, nil)
	a := dial(t, srv, "creator")
	b := dial(t, srv, "viewer")
	c := dial(t, srv, "third")

	write(t, c, core.JoinMessage(testRoom, nil))
	m := expect(t, c, core.TypeError)
	if !m.Fatal || m.Message != "room not found" {
		t.Errorf("unexpected error %+v", m)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Error("connection should be closed after a fatal error")
	}

	q := domain.DefaultQuality()
	write(t, a, core.JoinMessage(testRoom, &q))
	expect(t, a, core.TypeJoined)
	write(t, b, core.JoinMessage(testRoom, nil))
	expect(t, b, core.TypeJoined)

	d := dial(t, srv, "fourth")
	write(t, d, core.JoinMessage(testRoom, nil))
	if m := expect(t, d, core.TypeError); m.Message != "room busy" {
		t.Errorf("unexpected error %+v", m)
	}
}

func TestInvalidRoomRejected(t *testing.T) {
	srv, _ := newServer(t, nil)
	a := dial(t, srv, "creator")
	q := domain.DefaultQuality()
	write(t, a, core.JoinMessage("short", &q))
	if m := expect(t, a, core.TypeError); m.Message != "invalid room" || !m.Fatal {
		t.Errorf("unexpected error %+v", m)
	}
}

func TestJoinRateLimited(t *testing.T) {
	srv, _ := newServer(t, NewRoomRateLimiter(1, time.Minute))
	const otherRoom = "zyxwvuts87654321"

	x := dial(t, srv, "stranger")
	write(t, x, core.JoinMessage(otherRoom, nil))
	if m := expect(t, x, core.TypeError); m.Message != "room not found" || !m.Fatal {
		t.Fatalf("unexpected error %+v", m)
	}

	again := dial(t, srv, "stranger")
	write(t, again, core.JoinMessage(otherRoom, nil))
	m := expect(t, again, core.TypeError)
	if m.Message != errJoinRate.Error() {
		t.Errorf("unexpected error %+v", m)
	}
	if m.Fatal {
		t.Error("throttling must not end the call")
	}
}

func TestMemberReconnectsAreNotThrottled(t *testing.T) {
	srv, _ := newServer(t, NewRoomRateLimiter(1, time.Minute))
	q := domain.DefaultQuality()

	a := dial(t, srv, "creator")
	write(t, a, core.JoinMessage(testRoom, &q))
	expect(t, a, core.TypeJoined)
	b := dial(t, srv, "viewer")
	write(t, b, core.JoinMessage(testRoom, nil))
	expect(t, b, core.TypeJoined)
	expect(t, b, core.TypeReady)
	expect(t, a, core.TypeReady)

	for i := 0; i < 3; i++ {
		a = dial(t, srv, "creator")
		write(t, a, core.JoinMessage(testRoom, &q))
		expect(t, a, core.TypeJoined)
		expect(t, a, core.TypeReady)

		b = dial(t, srv, "viewer")
		write(t, b, core.JoinMessage(testRoom, nil))
		expect(t, b, core.TypeJoined)
	}
}

func TestCreatorDisconnectKeepsRoomForGrace(t *testing.T) {
	srv, hub := newServer(t, nil)
	a := dial(t, srv, "creator")
	q := domain.DefaultQuality()
	write(t, a, core.JoinMessage(testRoom, &q))
	expect(t, a, core.TypeJoined)
	_ = a.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Info(testRoom).Creator {
		if time.Now().After(deadline) {
			t.Fatal("creator still present")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !hub.Info(testRoom).Exists {
		t.Error("room should survive within grace")
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, 50*time.Millisecond)
	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first attempts should pass")
	}
	if rl.Allow("a") {
		t.Error("third attempt should be blocked")
	}
	if !rl.Allow("b") {
		t.Error("other clients are independent")
	}
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("window should slide")
	}
}
