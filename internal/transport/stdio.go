package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// stdioClientID is the fixed identity of the stdio peer; there is only
// ever one, so rate limiting buckets all stdio traffic together.
const stdioClientID = "stdio"

// errNoContentLength marks a header block without a Content-Length.
// Such input is skipped, not fatal.
var errNoContentLength = errors.New("missing Content-Length header")

// StdioTransport frames JSON-RPC messages over stdin/stdout with
// Content-Length headers, LSP style:
//
//	Content-Length: <n>\r\n
//	\r\n
//	<n bytes of JSON>
type StdioTransport struct {
	handler MessageHandler
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer

	writeMu sync.Mutex
	sem     chan struct{}
	wg      sync.WaitGroup

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewStdioTransport creates a stdio transport bound to the process
// stdin/stdout. maxConcurrent bounds in-flight message handling.
func NewStdioTransport(handler MessageHandler, maxConcurrent int, logger *slog.Logger) *StdioTransport {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &StdioTransport{
		handler: handler,
		logger:  logger,
		in:      os.Stdin,
		out:     os.Stdout,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Start reads framed messages until EOF or cancellation. A clean EOF is
// a normal shutdown and returns nil.
func (t *StdioTransport) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancelMu.Lock()
	t.cancel = cancel
	t.cancelMu.Unlock()
	defer cancel()

	t.logger.Info("stdio transport started")
	reader := bufio.NewReader(t.in)

	for {
		if runCtx.Err() != nil {
			break
		}

		body, err := t.readMessage(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.logger.Info("stdin closed, shutting down")
				break
			}
			if errors.Is(err, errNoContentLength) {
				t.logger.Warn("skipping unframed input")
				continue
			}
			t.logger.Error("failed to read message", "error", err)
			return err
		}

		t.sem <- struct{}{}
		t.wg.Add(1)
		go func(msg []byte) {
			defer func() {
				<-t.sem
				t.wg.Done()
			}()
			if reply := t.handler(runCtx, msg, stdioClientID); reply != nil {
				if err := t.writeMessage(reply); err != nil {
					t.logger.Error("failed to write response", "error", err)
				}
			}
		}(body)
	}

	t.wg.Wait()
	return nil
}

// Stop cancels the read loop and waits for in-flight handlers.
func (t *StdioTransport) Stop(ctx context.Context) error {
	t.cancelMu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancelMu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readMessage parses one framed message. Unrecognized header lines are
// skipped; a missing or invalid Content-Length is a protocol error.
func (t *StdioTransport) readMessage(reader *bufio.Reader) ([]byte, error) {
	contentLength := -1

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				return nil, io.EOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", strings.TrimSpace(value))
			}
			contentLength = n
		}
	}

	if contentLength < 0 {
		return nil, errNoContentLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, fmt.Errorf("truncated message body: %w", err)
	}
	return body, nil
}

// writeMessage frames and writes one message; the mutex keeps
// concurrent responses from interleaving.
func (t *StdioTransport) writeMessage(body []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := fmt.Fprintf(t.out, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err := t.out.Write(body)
	return err
}
