// Package stdio implements the line-framed STDIO transport: one JSON-RPC
// envelope per newline-terminated line on stdin, one per line on stdout.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/corvusruntime/mcprt/logx"
	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/types"
)

// Transport implements types.Transport over stdin/stdout: a
// bufio.Scanner-based read loop, one object per line, and a mutex-guarded
// writer so concurrent handler goroutines never interleave output.
// Grounded on the teacher's StdioTransport (transport/stdio/stdio.go).
type Transport struct {
	reader io.Reader
	writer io.Writer
	logger types.Logger

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// New builds a Transport over stdin/stdout with the given logger (nil uses
// a fresh logx.DefaultLogger).
func New(logger types.Logger) *Transport {
	return NewWithReadWriter(os.Stdin, os.Stdout, logger)
}

// NewWithReadWriter builds a Transport over an arbitrary reader/writer
// pair, letting tests substitute pipes for stdin/stdout.
func NewWithReadWriter(reader io.Reader, writer io.Writer, logger types.Logger) *Transport {
	if logger == nil {
		logger = logx.NewDefaultLogger()
	}
	if f, ok := writer.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		writer = bufio.NewWriter(writer)
	}
	return &Transport{reader: reader, writer: writer, logger: logger, done: make(chan struct{})}
}

// Start runs the read loop until ctx is cancelled, stdin hits EOF, or Close
// is called. Each line is handed to handler; handler's non-nil response is
// written back immediately (so a STDIO peer never needs the session-keyed
// HandleMessage signature — one process, one implicit session).
func (t *Transport) Start(ctx context.Context, handler types.MessageHandler) error {
	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lineCopy := make([]byte, len(line))
		copy(lineCopy, line)

		if !json.Valid(lineCopy) {
			t.logger.Error("stdio: received invalid JSON: %s", string(lineCopy))
			_ = t.sendParseError("invalid JSON")
			continue
		}

		resp, err := handler(ctx, lineCopy)
		if err != nil {
			t.logger.Error("stdio: handler error: %v", err)
			continue
		}
		if resp == nil {
			continue
		}
		if err := t.Send(ctx, resp); err != nil {
			t.logger.Error("stdio: failed to send response: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio: scanner error: %w", err)
	}
	close(t.done)
	return nil
}

// Send writes one newline-terminated JSON message to stdout.
func (t *Transport) Send(ctx context.Context, message []byte) error {
	t.closeMu.Lock()
	closed := t.closed
	t.closeMu.Unlock()
	if closed {
		return fmt.Errorf("stdio: transport is closed")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	data := bytes.TrimRight(message, "\n")
	data = append(data, '\n')
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("stdio: write failed: %w", err)
	}
	if flusher, ok := t.writer.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			t.logger.Warn("stdio: flush failed: %v", err)
		}
	}
	return nil
}

// Close marks the transport closed; Start's read loop exits on the next
// scan boundary or when its context is cancelled.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if closer, ok := t.reader.(io.Closer); ok {
		_ = closer.Close()
	}
	return nil
}

func (t *Transport) sendParseError(message string) error {
	resp := protocol.NewErrorResponse(nil, protocol.CodeParseError, message, nil)
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return t.Send(context.Background(), raw)
}

var _ types.Transport = (*Transport)(nil)
