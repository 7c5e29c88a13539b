package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Mode is the negotiated direction of a stream exchange, named from the
// initiator's side.
type Mode string

const (
	// ModeSend: the initiator sends one snapshot, the responder receives it.
	ModeSend Mode = "send"
	// ModeReceive: the responder sends one snapshot, the initiator receives it.
	ModeReceive Mode = "receive"
	// ModeBidirectional: the initiator sends then receives.
	ModeBidirectional Mode = "bidirectional"
)

// maxModeTokenLen bounds how far ReadMode scans for the newline.
const maxModeTokenLen = 32

// DefaultMaxFrameSize caps the payload length ReadFrame accepts.
const DefaultMaxFrameSize int64 = 8 << 30

// ParseMode validates a mode token.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSend, ModeReceive, ModeBidirectional:
		return m, nil
	}
	return "", &ProtocolError{Msg: fmt.Sprintf("unknown mode %q", s)}
}

// initiatorSends reports whether the initiator sends a snapshot in mode m.
func (m Mode) initiatorSends() bool {
	return m == ModeSend || m == ModeBidirectional
}

// initiatorReceives reports whether the initiator receives a snapshot in mode m.
func (m Mode) initiatorReceives() bool {
	return m == ModeReceive || m == ModeBidirectional
}

// WriteMode writes the mode token and its terminating newline.
func WriteMode(w io.Writer, m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, string(m)+"\n"); err != nil {
		return fmt.Errorf("write mode: %w", err)
	}
	return nil
}

// ReadMode reads one newline-terminated mode token.
func ReadMode(r *bufio.Reader) (Mode, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", &ProtocolError{Msg: "stream ended before mode token", Err: io.ErrUnexpectedEOF}
			}
			return "", &ProtocolError{Msg: "read mode", Err: err}
		}
		if b == '\n' {
			break
		}
		if sb.Len() >= maxModeTokenLen {
			return "", &ProtocolError{Msg: "mode token too long"}
		}
		sb.WriteByte(b)
	}
	return ParseMode(sb.String())
}

// WriteFrame writes the 8-byte little-endian length followed by exactly size
// bytes copied from payload.
func WriteFrame(w io.Writer, payload io.Reader, size int64) error {
	if size < 0 {
		return &ProtocolError{Msg: fmt.Sprintf("negative frame size %d", size)}
	}
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(size))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}

	n, err := io.CopyN(w, payload, size)
	if err != nil {
		if n < size && errors.Is(err, io.EOF) {
			return &ProtocolError{Msg: fmt.Sprintf("payload source ended after %d of %d bytes", n, size)}
		}
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame and copies its payload to dst. It returns the
// payload length. A length above max, or a stream that ends before the
// declared length, is a *ProtocolError.
func ReadFrame(r io.Reader, dst io.Writer, max int64) (int64, error) {
	var header [8]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		return 0, &ProtocolError{Msg: fmt.Sprintf("short length prefix (%d of 8 bytes)", n), Err: err}
	}

	length := binary.LittleEndian.Uint64(header[:])
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	if length > uint64(max) {
		return 0, &ProtocolError{Msg: fmt.Sprintf("frame length %d exceeds limit %d", length, max)}
	}

	n, err := io.CopyN(dst, r, int64(length))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, &ProtocolError{Msg: fmt.Sprintf("payload truncated at %d of %d bytes", n, length), Err: io.ErrUnexpectedEOF}
		}
		return n, fmt.Errorf("read frame payload: %w", err)
	}
	return n, nil
}
