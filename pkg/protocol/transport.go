package protocol

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Transport carries whole lines between client and service.
// Send writes one newline-terminated line; Receive returns the next line without its terminator.
type Transport interface {
	Send(ctx context.Context, line []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

const transportLogPrefix = "protocol:transport"

type lineResult struct {
	line []byte
	err  error
}

// StreamTransport frames lines over any reader/writer pair, such as a child process's
// stdio or an in-memory pipe.
type StreamTransport struct {
	w      io.Writer
	closer []io.Closer

	writeMu sync.Mutex
	lines   chan lineResult
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewStreamTransport starts a reader goroutine on r. If r or w implement io.Closer they are
// closed by Close.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	t := &StreamTransport{
		w:     w,
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = append(t.closer, c)
	}
	if c, ok := r.(io.Closer); ok {
		t.closer = append(t.closer, c)
	}

	t.wg.Add(1)
	go t.readLines(r)
	return t
}

func (t *StreamTransport) readLines(r io.Reader) {
	defer t.wg.Done()
	defer close(t.lines)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			select {
			case t.lines <- lineResult{line: line}:
			case <-t.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug(fmt.Sprintf("%s - reader stopped: %v", transportLogPrefix, err))
			}
			select {
			case t.lines <- lineResult{err: fmt.Errorf("%w: %v", ErrClosed, err)}:
			case <-t.done:
			}
			return
		}
	}
}

// Send writes line, appending a newline if missing.
func (t *StreamTransport) Send(ctx context.Context, line []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("%w: write failed: %v", ErrClosed, err)
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: flush failed: %v", ErrProtocol, err)
		}
	}
	return nil
}

// Receive waits for the next line or ctx cancellation.
func (t *StreamTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case res, ok := <-t.lines:
		if !ok {
			return nil, ErrClosed
		}
		return res.line, res.err
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying streams and waits for the reader goroutine.
func (t *StreamTransport) Close() error {
	var firstErr error
	t.once.Do(func() {
		close(t.done)
		for _, c := range t.closer {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	t.wg.Wait()
	return firstErr
}

var _ Transport = (*StreamTransport)(nil)
