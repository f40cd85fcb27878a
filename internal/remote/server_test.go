// ABOUTME: Tests for the remote control websocket server
// ABOUTME: Drives the handshake and command flow with raw gorilla connections
package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeController struct {
	mu       sync.Mutex
	volume   int
	commands []protocol.Command
}

func (f *fakeController) HandleCommand(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if cmd.Command != protocol.CommandVolume {
		return nil
	}
	if cmd.Value > 100 {
		return errors.Newf("volume %d out of range", cmd.Value).
			Component("test").
			Category(errors.CategoryValidation).
			Build()
	}
	f.volume = cmd.Value
	return nil
}

func (f *fakeController) Status() protocol.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return protocol.Status{State: "playing", Volume: f.volume, Capacity: 4096}
}

// startServer runs s behind httptest and stops both on cleanup
func startServer(t *testing.T, cfg Config) (*Server, *fakeController, string) {
	t.Helper()
	ctrl := &fakeController{volume: 70}
	s := New(ctrl, cfg)
	ts := httptest.NewServer(s.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return s, ctrl, "ws" + strings.TrimPrefix(ts.URL, "http") + "/playout"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func receive(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

// receiveType skips messages until one of msgType arrives
func receiveType(t *testing.T, conn *websocket.Conn, msgType string, v any) {
	t.Helper()
	for i := 0; i < 10; i++ {
		env := receive(t, conn)
		if env.Type == msgType {
			require.NoError(t, env.DecodePayload(v))
			return
		}
	}
	t.Fatalf("no %s message received", msgType)
}

func handshake(t *testing.T, conn *websocket.Conn, id string) protocol.ServerHello {
	t.Helper()
	send(t, conn, protocol.TypeClientHello, protocol.ClientHello{ClientID: id, Name: "test " + id, Version: protocol.Version})
	var hello protocol.ServerHello
	receiveType(t, conn, protocol.TypeServerHello, &hello)
	return hello
}

func TestHandshake(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	s, _, url := startServer(t, Config{
		Name:           "Kitchen",
		Backend:        "wav",
		StatusInterval: time.Hour,
		OnClients: func(n int) {
			mu.Lock()
			defer mu.Unlock()
			counts = append(counts, n)
		},
	})

	conn := dial(t, url)
	hello := handshake(t, conn, "a")
	assert.Equal(t, "Kitchen", hello.Name)
	assert.Equal(t, "wav", hello.Backend)
	assert.Equal(t, protocol.Version, hello.Version)
	assert.NotEmpty(t, hello.ServerID)
	assert.Contains(t, hello.Commands, protocol.CommandSkip)

	var st protocol.Status
	receiveType(t, conn, protocol.TypeStatus, &st)
	assert.Equal(t, 70, st.Volume)
	assert.Equal(t, 1, s.ClientCount())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, counts)
}

func TestHandshakeRejectsBadHello(t *testing.T) {
	_, _, url := startServer(t, Config{StatusInterval: time.Hour})

	tests := []struct {
		name    string
		msgType string
		payload any
	}{
		{"wrong type", protocol.TypeCommand, protocol.Command{Command: "volume"}},
		{"missing id", protocol.TypeClientHello, protocol.ClientHello{Name: "x"}},
		{"missing name", protocol.TypeClientHello, protocol.ClientHello{ClientID: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, url)
			send(t, conn, tt.msgType, tt.payload)

			env := receive(t, conn)
			assert.Equal(t, protocol.TypeError, env.Type)

			_, _, err := conn.ReadMessage()
			assert.Error(t, err, "server hangs up after a failed handshake")
		})
	}
}

func TestDuplicateClientRejected(t *testing.T) {
	s, _, url := startServer(t, Config{StatusInterval: time.Hour})

	first := dial(t, url)
	handshake(t, first, "same")

	second := dial(t, url)
	send(t, second, protocol.TypeClientHello, protocol.ClientHello{ClientID: "same", Name: "again"})
	var perr protocol.Error
	receiveType(t, second, protocol.TypeError, &perr)
	assert.Equal(t, protocol.CodeDuplicateID, perr.Code)
	assert.Equal(t, 1, s.ClientCount())
}

func TestCommandResult(t *testing.T) {
	_, ctrl, url := startServer(t, Config{StatusInterval: time.Hour})
	conn := dial(t, url)
	handshake(t, conn, "a")

	send(t, conn, protocol.TypeCommand, protocol.Command{ID: "1", Command: protocol.CommandVolume, Value: 30})
	var res protocol.Result
	receiveType(t, conn, protocol.TypeResult, &res)
	assert.Equal(t, "1", res.ID)
	assert.True(t, res.OK)
	assert.Equal(t, 30, res.Status.Volume)

	send(t, conn, protocol.TypeCommand, protocol.Command{ID: "2", Command: protocol.CommandVolume, Value: 300})
	receiveType(t, conn, protocol.TypeResult, &res)
	assert.Equal(t, "2", res.ID)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "out of range")
	assert.Equal(t, 30, res.Status.Volume)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Len(t, ctrl.commands, 2)
}

func TestMalformedMessagesReportErrors(t *testing.T) {
	_, _, url := startServer(t, Config{StatusInterval: time.Hour})
	conn := dial(t, url)
	handshake(t, conn, "a")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var perr protocol.Error
	receiveType(t, conn, protocol.TypeError, &perr)
	assert.Equal(t, protocol.CodeMalformed, perr.Code)

	send(t, conn, "player/dance", map[string]int{"speed": 2})
	receiveType(t, conn, protocol.TypeError, &perr)
	assert.Equal(t, protocol.CodeUnexpected, perr.Code)
}

func TestStatusBroadcast(t *testing.T) {
	_, _, url := startServer(t, Config{StatusInterval: 20 * time.Millisecond})

	a := dial(t, url)
	handshake(t, a, "a")
	b := dial(t, url)
	handshake(t, b, "b")

	for _, conn := range []*websocket.Conn{a, b} {
		for i := 0; i < 3; i++ {
			var st protocol.Status
			receiveType(t, conn, protocol.TypeStatus, &st)
			assert.Equal(t, "playing", st.State)
		}
	}
}

func TestRunDisconnectsClients(t *testing.T) {
	ctrl := &fakeController{}
	s := New(ctrl, Config{StatusInterval: time.Hour})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/playout")
	handshake(t, conn, "a")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, s.ClientCount())

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("playout_engine_underruns_total 0\n"))
	})
	s := New(&fakeController{}, Config{Metrics: metrics})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "underruns_total")
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New(&fakeController{}, Config{Addr: "127.0.0.1:0", StatusInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
