package chat

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogMarker precedes a chat record in a transcript log line:
//
//	2024-05-01 10:00:00 - INFO: Message: [|2024-05-01 10:00:00| [alice]: hi]
const LogMarker = "INFO: Message: ["

const tailBlockSize = 4096

// LoadHistoryFromLog seeds a History with the last max chat records found in
// the transcript log at path. A missing or unreadable log yields an empty
// history.
func LoadHistoryFromLog(path string, max int, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}

	records, err := ReadLogTail(path, max)
	if err != nil {
		logger.Warn("could not load chat history from log", "path", path, "error", err)
		return NewHistory()
	}

	logger.Info("chat history bootstrapped", "source", "log", "path", path, "records", len(records))
	return NewHistoryFrom(records)
}

// ReadLogTail returns up to max records from the end of the log at path in
// chronological order, each terminated by "\r\n". Lines without LogMarker are
// skipped.
func ReadLogTail(path string, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	// Collected newest first.
	records := make([]string, 0, min(max, 64))
	err = eachLineReverse(f, info.Size(), func(line []byte) bool {
		if rec, ok := parseLogLine(string(line)); ok {
			records = append(records, rec)
		}
		return len(records) < max
	})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func parseLogLine(line string) (string, bool) {
	idx := strings.Index(line, LogMarker)
	if idx < 0 {
		return "", false
	}
	rec := line[idx+len(LogMarker):]
	rec = strings.TrimSuffix(rec, "]")
	return rec + "\r\n", true
}

// eachLineReverse calls fn for every line of r from last to first, reading
// fixed-size blocks backwards from size. Line terminators are stripped and
// empty lines are skipped. It stops early when fn returns false.
func eachLineReverse(r io.ReaderAt, size int64, fn func(line []byte) bool) error {
	var carry []byte
	pos := size

	for pos > 0 {
		n := int64(tailBlockSize)
		if pos < n {
			n = pos
		}
		pos -= n

		buf := make([]byte, n, n+int64(len(carry)))
		if _, err := r.ReadAt(buf, pos); err != nil && err != io.EOF {
			return err
		}
		buf = append(buf, carry...)

		for {
			i := bytes.LastIndexByte(buf, '\n')
			if i < 0 {
				break
			}
			line := bytes.TrimRight(buf[i+1:], "\r")
			buf = buf[:i]
			if len(line) == 0 {
				continue
			}
			if !fn(line) {
				return nil
			}
		}
		carry = append([]byte(nil), buf...)
	}

	if line := bytes.TrimRight(carry, "\r"); len(line) > 0 {
		fn(line)
	}
	return nil
}
