package chat

// ConnID identifies a live connection. It is derived from the peer address,
// so it is unique only while the connection stays open.
type ConnID string

// UnknownNickname is substituted when a connection has no registry entry.
const UnknownNickname = "unknown"

const (
	MinNicknameLen = 3
	MaxNicknameLen = 32

	// DefaultMaxHistory is the number of records retained for replay.
	DefaultMaxHistory = 999

	// DefaultSubscriberBuffer is the per-subscriber queue depth of the hub.
	DefaultSubscriberBuffer = 8
)

const (
	passwordPrompt = "Enter password: "
	nicknamePrompt = "Enter nickname: "
	startDelimiter = "+---------------Start chatting---------------+\r\n"
)

// Message is a formatted record travelling through the hub together with the
// connection that produced it.
type Message struct {
	Text   string
	Origin ConnID
}

var (
	ErrBadPassword    = errorString("bad_password")
	ErrNicknameLength = errorString("nickname_length")
)

type errorString string

func (e errorString) Error() string { return string(e) }
