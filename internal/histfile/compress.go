package histfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Reader yields decompressed bytes from a possibly zstd-compressed stream.
type Reader struct {
	io.Reader
	dec *zstd.Decoder
}

// NewReader sniffs r for the zstd magic number and decompresses if present.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if !bytes.Equal(head, zstdMagic) {
		return &Reader{Reader: br}, nil
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	return &Reader{Reader: dec, dec: dec}, nil
}

// Close releases the decoder. It does not close the underlying reader.
func (r *Reader) Close() {
	if r.dec != nil {
		r.dec.Close()
	}
}

// Compressed reports whether an output path asks for zstd.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// NewWriter returns a writer that compresses to w with zstd. Close flushes
// the final frame and does not close w.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	return enc, nil
}
