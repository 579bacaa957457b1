package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room is the state shared by every session of one server: the registry,
// the replay history and the broadcast hub, plus handshake settings.
type Room struct {
	Registry *Registry
	History  *History
	Hub      *Hub

	// Secret gates the handshake with a password prompt. Nil disables it.
	Secret Secret

	// HandshakeTimeout bounds the password and nickname reads. Zero waits
	// forever.
	HandshakeTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (r *Room) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Room) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

type session struct {
	id     ConnID
	conn   net.Conn
	room   *Room
	logger *slog.Logger
}

// HandleSession runs one connection from handshake to disconnect. The
// connection is closed when it returns.
func HandleSession(conn net.Conn, room *Room) {
	defer func() {
		_ = conn.Close()
	}()

	s := &session{
		id:   ConnID(conn.RemoteAddr().String()),
		conn: conn,
		room: room,
	}
	s.logger = room.logger().With("conn", string(s.id), "session", uuid.NewString())

	reader := bufio.NewReader(conn)

	nickname, err := s.handshake(reader)
	if err != nil {
		reason := handshakeReason(err)
		HandshakeFailures.WithLabelValues(reason).Inc()
		s.logger.Info("handshake rejected", "reason", reason)
		return
	}

	room.Registry.Insert(s.id, nickname)
	s.logger.Info("user added", "nickname", nickname)
	defer func() {
		if name, ok := room.Registry.Remove(s.id); ok {
			s.logger.Info("client disconnected", "nickname", name)
		}
	}()

	// Subscribe before the snapshot so nothing published in between is lost.
	sub := room.Hub.Subscribe()
	defer sub.Close()

	if err := writeString(conn, replayBlock(room.History.Snapshot())); err != nil {
		s.logger.Warn("history replay failed", "error", err)
	}

	s.loop(reader, sub)
}

func (s *session) handshake(reader *bufio.Reader) (string, error) {
	if t := s.room.HandshakeTimeout; t > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(t)); err != nil {
			return "", fmt.Errorf("set deadline: %w", err)
		}
	}

	if s.room.Secret != nil {
		if err := writeString(s.conn, passwordPrompt); err != nil {
			return "", fmt.Errorf("prompt: %w", err)
		}
		line, err := readLine(reader)
		if err != nil {
			return "", err
		}
		if !s.room.Secret.Verify(strings.TrimSpace(line)) {
			return "", ErrBadPassword
		}
	}

	if err := writeString(s.conn, nicknamePrompt); err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}
	line, err := readLine(reader)
	if err != nil {
		return "", err
	}
	nickname := strings.TrimSpace(line)
	if err := ValidateNickname(nickname); err != nil {
		return "", err
	}

	if s.room.HandshakeTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return "", fmt.Errorf("clear deadline: %w", err)
		}
	}
	return nickname, nil
}

// ValidateNickname accepts names of MinNicknameLen to MaxNicknameLen
// characters.
func ValidateNickname(nickname string) error {
	n := len([]rune(nickname))
	if n < MinNicknameLen || n > MaxNicknameLen {
		return ErrNicknameLength
	}
	return nil
}

func handshakeReason(err error) string {
	switch {
	case errors.Is(err, ErrBadPassword):
		return "bad_password"
	case errors.Is(err, ErrNicknameLength):
		return "nickname_length"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, io.EOF):
		return "disconnected"
	default:
		return "io_error"
	}
}

func replayBlock(records []string) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(rec)
	}
	b.WriteString(startDelimiter)
	return b.String()
}

type inbound struct {
	line string
	err  error
}

// loop services socket lines and hub messages, whichever is ready first,
// until the socket read fails or the hub shuts down.
func (s *session) loop(reader *bufio.Reader, sub *Subscription) {
	lines := make(chan inbound)
	done := make(chan struct{})
	defer close(done)
	go pumpLines(reader, lines, done)

	for {
		select {
		case in := <-lines:
			if in.err != nil {
				if !errors.Is(in.err, io.EOF) {
					s.logger.Debug("read failed", "error", in.err)
				}
				return
			}
			s.broadcast(in.line)

		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if msg.Origin == s.id {
				continue
			}
			if err := writeString(s.conn, msg.Text); err != nil {
				s.logger.Warn("write failed", "error", err)
				continue
			}
			MessagesTotal.WithLabelValues("delivered").Inc()
		}
	}
}

func (s *session) broadcast(line string) {
	payload := strings.TrimSpace(line)
	if payload == "" {
		MessagesTotal.WithLabelValues("ignored").Inc()
		return
	}

	start := time.Now()
	nickname := s.room.Registry.Get(s.id)
	record := FormatRecord(s.room.now(), nickname, payload)
	s.room.History.Append(record)
	s.room.Hub.Publish(Message{Text: record, Origin: s.id})

	MessagesTotal.WithLabelValues("broadcast").Inc()
	BroadcastDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("message broadcast", "nickname", nickname, "bytes", len(payload))
}

// pumpLines feeds socket lines into out until a read fails or done closes.
func pumpLines(r *bufio.Reader, out chan<- inbound, done <-chan struct{}) {
	for {
		line, err := readLine(r)
		select {
		case out <- inbound{line: line, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}
