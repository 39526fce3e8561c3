package pushchannel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Overlord/internal/domain/models"
	applogger "Overlord/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestURLFromBase(t *testing.T) {
	got, err := URLFromBase("http://localhost:8000/api")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8000/ws", got)

	got, err = URLFromBase("https://overlord.example.com")
	require.NoError(t, err)
	require.Equal(t, "wss://overlord.example.com/ws", got)

	_, err = URLFromBase("ftp://nope")
	require.Error(t, err)
}

func TestDialAndRead(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"portfolio_update","total_value":1}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"regime_change","regime":"BEAR"}`))
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	d := New("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", time.Second, 0, applogger.NewNop())
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	msg, err := conn.ReadMessage(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(msg), "portfolio_update")

	msg, err = conn.ReadMessage(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(msg), "BEAR")

	_, err = conn.ReadMessage(context.Background())
	require.ErrorIs(t, err, models.ErrChannelClosed)
}

func TestReadUnblocksOnCancel(t *testing.T) {
	hold := make(chan struct{})
	srv := newWSServer(t, func(c *websocket.Conn) { <-hold })
	defer close(hold)

	d := New("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second, 0, applogger.NewNop())
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.ReadMessage(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailure(t *testing.T) {
	d := New("ws://127.0.0.1:1/ws", 200*time.Millisecond, 0, applogger.NewNop())
	_, err := d.Dial(context.Background())
	require.Error(t, err)
}
