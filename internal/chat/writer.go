package chat

import (
	"io"
	"net"
	"time"
)

// writeTimeout bounds how long a stalled peer can hold a single write.
const writeTimeout = 10 * time.Second

func writeString(conn net.Conn, s string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(conn, s)
	return err
}
