package nmea

import (
	"fmt"
	"strings"
)

// MaxSentenceBytes bounds a pending sentence. Real sentences are at most 82
// characters; a longer run without a '$' is discarded.
const MaxSentenceBytes = 1024

type FramerStats struct {
	Accepted   uint64 `json:"accepted"`
	Unverified uint64 `json:"unverified"`
	Rejected   uint64 `json:"rejected"`
	Overflow   uint64 `json:"overflow"`
}

// Framer reassembles sentences from a byte stream. A sentence starts at '$'
// and ends right before the next '$', so the newest sentence stays buffered
// until the one after it begins. CR and LF are dropped on arrival.
//
// Framer is not safe for concurrent use.
type Framer struct {
	buf      []byte
	skipping bool
	stats    FramerStats
}

func NewFramer() *Framer {
	return &Framer{buf: make([]byte, 0, 128)}
}

// Feed appends p and returns every sentence completed by it, in order.
// Sentences with a bad checksum are dropped.
func (f *Framer) Feed(p []byte) []string {
	var out []string
	for _, c := range p {
		switch {
		case c == '\r' || c == '\n':
			continue
		case c == '$':
			if len(f.buf) > 0 {
				if s, ok := f.verify(f.buf); ok {
					out = append(out, s)
				}
			}
			f.buf = append(f.buf[:0], c)
			f.skipping = false
		case f.skipping || len(f.buf) == 0:
			// Noise before the first '$' or after an overflow.
		case len(f.buf) >= MaxSentenceBytes:
			f.buf = f.buf[:0]
			f.skipping = true
			f.stats.Overflow++
		default:
			f.buf = append(f.buf, c)
		}
	}
	return out
}

// Pending returns the bytes held while waiting for the next '$'.
func (f *Framer) Pending() int {
	return len(f.buf)
}

func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.skipping = false
}

func (f *Framer) Stats() FramerStats {
	return f.stats
}

func (f *Framer) verify(b []byte) (string, bool) {
	s := strings.TrimRight(string(b), " \t")
	if len(s) < 2 {
		f.stats.Rejected++
		return "", false
	}
	switch VerifyChecksum(s) {
	case ChecksumOK:
		f.stats.Accepted++
	case ChecksumAbsent:
		f.stats.Unverified++
	default:
		f.stats.Rejected++
		return "", false
	}
	return s, true
}

type ChecksumResult int

const (
	ChecksumAbsent ChecksumResult = iota
	ChecksumOK
	ChecksumMismatch
)

// Checksum returns the XOR of payload as two uppercase hex digits.
func Checksum(payload string) string {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("%02X", ck)
}

// VerifyChecksum checks the "*HH" section of a '$' sentence. A sentence with
// no '*' or fewer than two characters after it has no checksum to verify.
// The comparison is case-sensitive.
func VerifyChecksum(sentence string) ChecksumResult {
	if !strings.HasPrefix(sentence, "$") {
		return ChecksumAbsent
	}
	star := strings.IndexByte(sentence, '*')
	if star < 0 || len(sentence)-star-1 < 2 {
		return ChecksumAbsent
	}
	if Checksum(sentence[1:star]) != sentence[star+1:star+3] {
		return ChecksumMismatch
	}
	return ChecksumOK
}

// Tag identifies a sentence. Standard sentences carry a two-letter talker
// (GP, GN, GL, ...) and a three-letter type; proprietary sentences start with
// 'P' and keep their full name in Type.
type Tag struct {
	Talker string `json:"talker,omitempty"`
	Type   string `json:"type"`
}

func (t Tag) String() string {
	return t.Talker + t.Type
}

func ParseTag(sentence string) Tag {
	s := strings.TrimPrefix(sentence, "$")
	if i := strings.IndexAny(s, ",*"); i >= 0 {
		s = s[:i]
	}
	if strings.HasPrefix(s, "P") || len(s) < 5 {
		return Tag{Type: s}
	}
	return Tag{Talker: s[:2], Type: s[2:]}
}

// Fields returns the comma-separated fields of sentence with the leading '$'
// and the checksum section removed. Fields[0] is the tag.
func Fields(sentence string) []string {
	s := strings.TrimPrefix(sentence, "$")
	if i := strings.IndexByte(s, '*'); i >= 0 {
		s = s[:i]
	}
	return strings.Split(s, ",")
}
