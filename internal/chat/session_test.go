package chat

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoom() *Room {
	return &Room{
		Registry: NewRegistry(),
		History:  NewHistory(),
		Hub:      NewHub(DefaultSubscriberBuffer),
		Now:      func() time.Time { return fixedNow },
		Logger:   discardLogger(),
	}
}

func startServer(t *testing.T, room *Room) *Server {
	t.Helper()
	srv := NewServer("127.0.0.1:0", room, discardLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

// expect reads exactly len(want) bytes and compares them.
func (c *testClient) expect(t *testing.T, want string) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(c.r, buf)
	require.NoError(t, err)
	require.Equal(t, want, string(buf))
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(c.conn, line+"\r\n")
	require.NoError(t, err)
}

// expectClosed asserts the server closes the connection without sending
// anything further.
func (c *testClient) expectClosed(t *testing.T) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := c.r.Read(make([]byte, 1))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

// join completes the handshake and returns the replayed history lines.
func join(t *testing.T, srv *Server, nickname string) (*testClient, []string) {
	t.Helper()
	c := dial(t, srv)
	c.expect(t, nicknamePrompt)
	c.send(t, nickname)

	var replay []string
	for {
		line := c.readLine(t)
		if line == startDelimiter {
			return c, replay
		}
		replay = append(replay, line)
	}
}

func TestSession_NicknameLengthGate(t *testing.T) {
	cases := []struct {
		nickname string
		accepted bool
	}{
		{"ab", false},
		{"abc", true},
		{strings.Repeat("n", 32), true},
		{strings.Repeat("n", 33), false},
		{"   ", false},
	}

	for _, tc := range cases {
		t.Run(tc.nickname, func(t *testing.T) {
			room := newTestRoom()
			srv := startServer(t, room)

			c := dial(t, srv)
			c.expect(t, nicknamePrompt)
			c.send(t, tc.nickname)

			if tc.accepted {
				assert.Equal(t, startDelimiter, c.readLine(t))
				assert.Equal(t, 1, room.Registry.Len())
				return
			}
			c.expectClosed(t)
			assert.Equal(t, 0, room.Registry.Len())
		})
	}
}

func TestSession_PasswordGateRejects(t *testing.T) {
	room := newTestRoom()
	room.Secret = PlainSecret("abc12")
	srv := startServer(t, room)

	c := dial(t, srv)
	c.expect(t, passwordPrompt)
	c.send(t, "wrong")
	c.expectClosed(t)

	assert.Equal(t, 0, room.Registry.Len())
}

func TestSession_PasswordGateAccepts(t *testing.T) {
	room := newTestRoom()
	room.Secret = PlainSecret("abc12")
	srv := startServer(t, room)

	c := dial(t, srv)
	c.expect(t, passwordPrompt)
	c.send(t, "  abc12 ")
	c.expect(t, nicknamePrompt)
	c.send(t, "alice")
	assert.Equal(t, startDelimiter, c.readLine(t))
}

func TestSession_BroadcastSkipsSender(t *testing.T) {
	room := newTestRoom()
	srv := startServer(t, room)

	alice, _ := join(t, srv, "alice")
	bob, _ := join(t, srv, "bob")

	alice.send(t, "hello")
	assert.Equal(t, "|2024-05-01 12:00:00| [alice]: hello\r\n", bob.readLine(t))

	// Alice's next line must be Bob's reply, not her own echo.
	bob.send(t, "hi alice")
	assert.Equal(t, "|2024-05-01 12:00:00| [bob]: hi alice\r\n", alice.readLine(t))
}

func TestSession_EmptyLinesIgnored(t *testing.T) {
	room := newTestRoom()
	srv := startServer(t, room)

	alice, _ := join(t, srv, "alice")
	bob, _ := join(t, srv, "bob")

	alice.send(t, "   ")
	alice.send(t, "")
	alice.send(t, "real")

	assert.Equal(t, "|2024-05-01 12:00:00| [alice]: real\r\n", bob.readLine(t))
	assert.Equal(t, 1, room.History.Len())
}

func TestSession_ReplaysHistoryBeforeDelimiter(t *testing.T) {
	room := newTestRoom()
	room.History = NewHistoryFrom([]string{"|2024-04-30 08:00:00| [carol]: earlier\r\n"})
	srv := startServer(t, room)

	alice, _ := join(t, srv, "alice")
	alice.send(t, "first")
	alice.send(t, "second")
	require.Eventually(t, func() bool { return room.History.Len() == 3 }, 2*time.Second, 5*time.Millisecond)

	_, replay := join(t, srv, "bob")
	assert.Equal(t, []string{
		"|2024-04-30 08:00:00| [carol]: earlier\r\n",
		"|2024-05-01 12:00:00| [alice]: first\r\n",
		"|2024-05-01 12:00:00| [alice]: second\r\n",
	}, replay)
}

func TestSession_DisconnectDeregisters(t *testing.T) {
	room := newTestRoom()
	srv := startServer(t, room)

	alice, _ := join(t, srv, "alice")
	require.Equal(t, 1, room.Registry.Len())

	alice.conn.Close()
	assert.Eventually(t, func() bool { return room.Registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return room.Hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_HandshakeTimeout(t *testing.T) {
	room := newTestRoom()
	room.HandshakeTimeout = 50 * time.Millisecond
	srv := startServer(t, room)

	c := dial(t, srv)
	c.expect(t, nicknamePrompt)
	c.expectClosed(t)
	assert.Equal(t, 0, room.Registry.Len())
}

func TestSession_HandshakeTimeoutClearedWhenActive(t *testing.T) {
	room := newTestRoom()
	room.HandshakeTimeout = 50 * time.Millisecond
	srv := startServer(t, room)

	alice, _ := join(t, srv, "alice")
	bob, _ := join(t, srv, "bob")

	time.Sleep(150 * time.Millisecond)
	alice.send(t, "still here")
	assert.Equal(t, "|2024-05-01 12:00:00| [alice]: still here\r\n", bob.readLine(t))
}

func TestSession_UnknownSenderRecord(t *testing.T) {
	room := newTestRoom()
	sub := room.Hub.Subscribe()
	defer sub.Close()

	s := &session{id: "ghost:1", room: room, logger: discardLogger()}
	s.broadcast("boo")

	msg := receive(t, sub)
	assert.Equal(t, ConnID("ghost:1"), msg.Origin)
	assert.Equal(t, "|2024-05-01 12:00:00| [unknown]: boo\r\n", msg.Text)
	assert.Equal(t, []string{msg.Text}, room.History.Snapshot())
}

func TestServer_StopClosesSessions(t *testing.T) {
	room := newTestRoom()
	srv := startServer(t, room)

	alice, _ := join(t, srv, "alice")
	srv.Stop()

	alice.expectClosed(t)
	assert.Equal(t, 0, room.Registry.Len())
}

func TestServer_StartBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), newTestRoom(), discardLogger())
	assert.Error(t, srv.Start())
}

// flakyConn fails every write once failWrites is set.
type flakyConn struct {
	net.Conn
	failWrites atomic.Bool
	failed     atomic.Int32
}

func (c *flakyConn) Write(p []byte) (int, error) {
	if c.failWrites.Load() {
		c.failed.Add(1)
		return 0, errors.New("connection reset by peer")
	}
	return c.Conn.Write(p)
}

func TestSession_WriteFailureKeepsSession(t *testing.T) {
	room := newTestRoom()
	client, server := net.Pipe()
	fc := &flakyConn{Conn: server}

	done := make(chan struct{})
	go func() {
		defer close(done)
		HandleSession(fc, room)
	}()

	c := &testClient{conn: client, r: bufio.NewReader(client)}
	c.expect(t, nicknamePrompt)
	c.send(t, "alice")
	c.expect(t, startDelimiter)
	require.Eventually(t, func() bool { return room.Registry.Len() == 1 }, time.Second, time.Millisecond)

	fc.failWrites.Store(true)
	room.Hub.Publish(Message{Text: "|ts| [bob]: lost\r\n", Origin: "other:1"})
	require.Eventually(t, func() bool { return fc.failed.Load() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, room.Registry.Len())
	assert.Equal(t, "alice", room.Registry.Get("pipe"))

	c.send(t, "still here")
	require.Eventually(t, func() bool { return room.History.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"|2024-05-01 12:00:00| [alice]: still here\r\n"}, room.History.Snapshot())

	require.NoError(t, client.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after client closed")
	}
	assert.Equal(t, 0, room.Registry.Len())
}
