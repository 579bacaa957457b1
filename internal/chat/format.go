package chat

import (
	"strings"
	"time"
)

const recordTimeLayout = "2006-01-02 15:04:05"

// FormatRecord renders a chat line exactly as it is stored and transmitted:
//
//	|2006-01-02 15:04:05| [nickname]: payload\r\n
func FormatRecord(at time.Time, nickname, payload string) string {
	if nickname == "" {
		nickname = UnknownNickname
	}
	var b strings.Builder
	b.Grow(len(recordTimeLayout) + len(nickname) + len(payload) + 10)
	b.WriteByte('|')
	b.WriteString(at.Local().Format(recordTimeLayout))
	b.WriteString("| [")
	b.WriteString(nickname)
	b.WriteString("]: ")
	b.WriteString(strings.TrimSpace(payload))
	b.WriteString("\r\n")
	return b.String()
}
