package transport

import (
	"io"
	"net"
	"os"
)

// Stream is a bidirectional byte channel carrying frames.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

type stdioStream struct {
	in  io.ReadCloser
	out io.WriteCloser
}

// Stdio returns the process stdin/stdout as a Stream. Closing it closes
// stdout only; stdin stays open so a restarting supervisor can reuse it.
func Stdio() Stream {
	return &stdioStream{in: os.Stdin, out: os.Stdout}
}

func (s *stdioStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdioStream) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *stdioStream) Close() error                { return s.out.Close() }

// WrapConn adapts a network connection to a Stream, disabling Nagle
// batching on TCP so small response frames are not held back.
func WrapConn(conn net.Conn) Stream {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return conn
}

// Pipe returns two connected in-memory streams. Frames written to one side
// are readable on the other. Used by tests and the status client path.
func Pipe() (Stream, Stream) {
	c1, c2 := net.Pipe()
	return c1, c2
}
