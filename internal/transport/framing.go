// Package transport implements the framed byte stream between editor and
// daemon, plus the ingress noise filter.
package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"wisp/internal/protocol"
	"wisp/internal/wisperr"
)

// maxFrameSize bounds a single frame body. Anything larger is treated as a
// protocol violation rather than buffered.
const maxFrameSize = 32 << 20

// FrameReader decodes length-prefixed frames from a byte stream. Each frame
// is a header block of "Name: value" lines terminated by a blank line, where
// Content-Length gives the exact byte count of the JSON body that follows.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r for frame decoding.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Read returns the next frame body. A malformed header or truncated body
// yields a ProtocolError; the connection is unusable afterwards because the
// stream position is lost.
func (fr *FrameReader) Read() ([]byte, error) {
	length := -1

	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				return nil, io.EOF
			}
			return nil, wisperr.Wrap(wisperr.ProtocolError, "reading frame header", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, wisperr.Newf(wisperr.ProtocolError, "malformed header line %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, wisperr.Newf(wisperr.ProtocolError, "bad Content-Length %q", strings.TrimSpace(value))
			}
			length = n
		}
		// Other headers (Content-Type) are tolerated and ignored.
	}

	if length < 0 {
		return nil, wisperr.New(wisperr.ProtocolError, "frame missing Content-Length header")
	}
	if length > maxFrameSize {
		return nil, wisperr.Newf(wisperr.ProtocolError, "frame of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, wisperr.Wrap(wisperr.ProtocolError, "truncated frame body", err)
	}
	return body, nil
}

// ReadMessage reads and decodes the next frame into a protocol message.
// A frame whose body is not valid JSON is a ProtocolError, but unlike a
// framing failure it leaves the stream aligned on the next frame.
func (fr *FrameReader) ReadMessage() (*protocol.Message, error) {
	body, err := fr.Read()
	if err != nil {
		return nil, err
	}

	var msg protocol.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, wisperr.Wrap(wisperr.ProtocolError, "decoding frame body", err)
	}
	return &msg, nil
}

// FrameWriter encodes length-prefixed frames onto a byte stream. Writes are
// serialized so concurrent responders cannot interleave frames.
type FrameWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewFrameWriter wraps w for frame encoding.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: bufio.NewWriter(w)}
}

// Write emits one frame containing body.
func (fw *FrameWriter) Write(body []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fmt.Fprintf(fw.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := fw.w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return fw.w.Flush()
}

// WriteMessage encodes msg as JSON and emits it as one frame.
func (fw *FrameWriter) WriteMessage(msg *protocol.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return fw.Write(body)
}
