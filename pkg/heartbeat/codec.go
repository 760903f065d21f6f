package heartbeat

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ContentType is the media type of an encoded heartbeat message.
const ContentType = "application/x-protobuf"

// timestampField is the protobuf field number of Message.TimestampMs.
const timestampField protowire.Number = 1

// ErrMalformed is returned by Decode for any input that is not exactly one encoded Message.
var ErrMalformed = errors.New("malformed heartbeat message")

// Message is a ping sent by or on behalf of a tracked connection.
type Message struct {
	TimestampMs uint64 // Milliseconds since the Unix epoch, set by the sender
}

// Encode serializes m using the protobuf wire format. The timestamp field is always
// emitted, including for a zero timestamp.
func Encode(m Message) []byte {
	b := make([]byte, 0, protowire.SizeTag(timestampField)+protowire.SizeVarint(m.TimestampMs))
	b = protowire.AppendTag(b, timestampField, protowire.VarintType)
	return protowire.AppendVarint(b, m.TimestampMs)
}

// Decode parses a Message produced by Encode.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	if num != timestampField || typ != protowire.VarintType {
		return Message{}, fmt.Errorf("%w: unexpected field %d (wire type %d)", ErrMalformed, num, typ)
	}

	v, m := protowire.ConsumeVarint(b[n:])
	if m < 0 {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
	}
	if rest := len(b) - n - m; rest != 0 {
		return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, rest)
	}

	return Message{TimestampMs: v}, nil
}

// Latency returns how long ago, relative to now, the message was stamped by its sender.
// Clock skew that would yield a negative value is reported as zero.
func (m Message) Latency(now time.Time) time.Duration {
	if m.TimestampMs > math.MaxInt64 {
		return 0
	}
	d := now.Sub(time.UnixMilli(int64(m.TimestampMs)))
	if d < 0 {
		return 0
	}
	return d
}

// Now returns a Message stamped with the given time.
func Now(t time.Time) Message {
	ms := t.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	return Message{TimestampMs: uint64(ms)}
}
