package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"watchparty/internal/auth"
	"watchparty/internal/models"
	"watchparty/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type stubUsers struct {
	store.Users
}

func (stubUsers) UserByID(_ context.Context, id string) (*models.User, error) {
	if id == "u-1" {
		return &models.User{ID: "u-1", Username: "alice"}, nil
	}
	return nil, store.ErrNotFound
}

func newTestServer(t *testing.T) (*Hub, *auth.Issuer, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	iss := auth.NewIssuer("a-secret", "r-secret", time.Minute, time.Hour)
	r := gin.New()
	r.GET("/ws", Serve(hub, auth.NewGate(iss, stubUsers{}), "*"))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, iss, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitOnline(t *testing.T, h *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.Online(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Online(%s) = %d, want %d", room, h.Online(room), want)
}

func TestServe_SeekRoundTrip(t *testing.T) {
	hub, iss, url := newTestServer(t)
	token, err := iss.AccessToken(&models.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}

	a := dial(t, url+"?token="+token, nil)
	b := dial(t, url, nil) // anonymous peers are allowed

	for _, c := range []*websocket.Conn{a, b} {
		if err := c.WriteJSON(Inbound{Event: EventJoinRoom, RoomID: "abc"}); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	waitOnline(t, hub, "abc", 2)

	offset := 42.0
	if err := a.WriteJSON(Inbound{Event: EventSeek, RoomID: "abc", Time: &offset}); err != nil {
		t.Fatalf("seek: %v", err)
	}

	_ = b.SetReadDeadline(time.Now().Add(time.Second))
	var out Outbound
	if err := b.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Event != EventSeekVideo || out.RoomID != "abc" || out.Time == nil || *out.Time != 42 {
		t.Fatalf("got %+v, want seek-video at 42", out)
	}

	_ = a.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if err := a.ReadJSON(&out); err == nil {
		t.Errorf("sender received its own event: %+v", out)
	}
}

func TestServe_ErrorFrames(t *testing.T) {
	_, _, url := newTestServer(t)
	c := dial(t, url, nil)

	tests := []struct {
		name string
		send string
		want string
	}{
		{"malformed", `{nope`, "malformed message"},
		{"missing room", `{"event":"play"}`, "roomId is required"},
		{"seek without time", `{"event":"seek","roomId":"abc"}`, "time is required"},
		{"unknown", `{"event":"rewind","roomId":"abc"}`, "unknown event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			_ = c.SetReadDeadline(time.Now().Add(time.Second))
			var out Outbound
			if err := c.ReadJSON(&out); err != nil {
				t.Fatalf("read: %v", err)
			}
			if out.Event != EventError || out.Message != tt.want {
				t.Errorf("got %+v, want error %q", out, tt.want)
			}
		})
	}
}

func TestServe_DisconnectLeavesRooms(t *testing.T) {
	hub, _, url := newTestServer(t)
	c := dial(t, url, nil)
	if err := c.WriteJSON(Inbound{Event: EventJoinRoom, RoomID: "abc"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitOnline(t, hub, "abc", 1)

	_ = c.Close()
	waitOnline(t, hub, "abc", 0)
	if s := hub.Stats(); s.Rooms != 0 {
		t.Errorf("Stats() = %+v, want empty room removed", s)
	}
}

func TestServe_RejectsInvalidToken(t *testing.T) {
	_, iss, url := newTestServer(t)
	ghost, _ := iss.AccessToken(&models.User{ID: "deleted"})

	for _, token := range []string{"garbage", ghost} {
		_, resp, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
		if err == nil {
			t.Fatalf("dial with token %q should fail", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %v, want 401", resp)
		}
	}

	header := http.Header{"Authorization": {"Bearer garbage"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bearer garbage: err=%v resp=%v", err, resp)
	}
}
