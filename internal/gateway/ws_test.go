package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Enriquefft/webhook-funnel/internal/jsoncodec"
	"github.com/Enriquefft/webhook-funnel/internal/message"
)

// fakeGateway accepts one websocket and forwards every frame it reads.
func fakeGateway(t *testing.T, wantToken string) (*httptest.Server, <-chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	t.Cleanup(srv.Close)
	return srv, frames
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_SendsFrames(t *testing.T) {
	srv, frames := fakeGateway(t, "secret")

	c := NewClient(wsURL(srv), "secret", nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	msg := message.New().Link("https://a.png").Text("jsmith -- push")
	if err := c.Send(context.Background(), "~zod", "dev-feed", msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-frames:
		var frame ChatFrame
		if err := jsoncodec.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame %s: %v", data, err)
		}
		if frame.Type != "chat-message" || frame.Ship != "~zod" || frame.Chat != "dev-feed" {
			t.Fatalf("unexpected frame header: %+v", frame)
		}
		if !frame.Fragments.Equal(msg) {
			t.Fatalf("fragments = %q, want %q", frame.Fragments.String(), msg.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestClient_SendPreservesOrder(t *testing.T) {
	srv, frames := fakeGateway(t, "")

	c := NewClient(wsURL(srv), "", nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	texts := []string{"one", "two", "three"}
	for _, s := range texts {
		if err := c.Send(context.Background(), "~zod", "c", message.TextMessage(s)); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range texts {
		select {
		case data := <-frames:
			var frame ChatFrame
			if err := jsoncodec.Unmarshal(data, &frame); err != nil {
				t.Fatal(err)
			}
			if got := frame.Fragments.String(); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing frame %q", want)
		}
	}
}

func TestClient_ConnectRejected(t *testing.T) {
	srv, _ := fakeGateway(t, "secret")

	c := NewClient(wsURL(srv), "wrong", nil)
	if err := c.Connect(context.Background()); err == nil {
		c.Close()
		t.Fatal("expected connect to fail with wrong token")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "", nil)
	err := c.Send(context.Background(), "~zod", "c", message.TextMessage("x"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	srv, _ := fakeGateway(t, "")

	c := NewClient(wsURL(srv), "", nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	err := c.Send(context.Background(), "~zod", "c", message.TextMessage("x"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestClient_SendCancelledContext(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Send(ctx, "~zod", "c", message.TextMessage("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
