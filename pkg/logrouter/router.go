package logrouter

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// MaxChunkSize bounds a single write; longer lines are split at this size
const MaxChunkSize = 64 * 1024

// StreamType names one output stream of a process
type StreamType string

const (
	StreamStdout StreamType = "stdout"
	StreamStderr StreamType = "stderr"
)

// Sinks are the destination paths of one managed process. An empty path
// disables that destination.
type Sinks struct {
	Stdout   string `yaml:"out_file,omitempty"`
	Stderr   string `yaml:"error_file,omitempty"`
	Combined string `yaml:"log_file,omitempty"`
}

// Stats counts what a session copied
type Stats struct {
	StdoutBytes int64
	StderrBytes int64
	WriteErrors int64
}

// Router attaches copy sessions to process output streams. Sink write
// failures are reported to the fallback logger and never stop a copy loop.
type Router struct {
	logger logging.Logger
}

func NewRouter(logger logging.Logger) *Router {
	return &Router{logger: logger}
}

// Session copies the two streams of one process run
type Session struct {
	name     string
	logger   logging.Logger
	stdout   *sink
	stderr   *sink
	combined *sink

	stdoutBytes int64
	stderrBytes int64
	writeErrors int64

	wg   sync.WaitGroup
	done chan struct{}
}

// Attach opens the sinks in append mode and starts draining both readers.
// The readers are closed once drained.
func (r *Router) Attach(name string, sinks Sinks, stdout, stderr io.ReadCloser) *Session {
	s := &Session{
		name:   name,
		logger: r.logger,
		done:   make(chan struct{}),
	}
	if sinks.Stdout != "" {
		s.stdout = newSink(sinks.Stdout)
	}
	if sinks.Stderr != "" {
		s.stderr = newSink(sinks.Stderr)
	}
	if sinks.Combined != "" {
		s.combined = newSink(sinks.Combined)
	}

	if stdout != nil {
		s.wg.Add(1)
		go s.streamReader(stdout, StreamStdout, s.stdout, &s.stdoutBytes)
	}
	if stderr != nil {
		s.wg.Add(1)
		go s.streamReader(stderr, StreamStderr, s.stderr, &s.stderrBytes)
	}

	go func() {
		s.wg.Wait()
		s.closeSinks()
		close(s.done)
	}()

	return s
}

// Done is closed after both streams reached EOF and the sinks are closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session drained or ctx is cancelled
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errors.NewCancelledError("log drain cancelled", ctx.Err()).WithContext("name", s.name)
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		StdoutBytes: atomic.LoadInt64(&s.stdoutBytes),
		StderrBytes: atomic.LoadInt64(&s.stderrBytes),
		WriteErrors: atomic.LoadInt64(&s.writeErrors),
	}
}

func (s *Session) streamReader(stream io.ReadCloser, streamType StreamType, own *sink, counter *int64) {
	defer s.wg.Done()
	defer stream.Close()

	reader := bufio.NewReaderSize(stream, MaxChunkSize)
	failing := false

	for {
		// ReadSlice yields one line, or a full buffer for an over-long line
		chunk, err := reader.ReadSlice('\n')
		if len(chunk) > 0 {
			atomic.AddInt64(counter, int64(len(chunk)))
			failing = s.writeChunk(chunk, streamType, own, failing)
		}
		if err == nil || stderrors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != io.EOF && !isClosedPipe(err) {
			s.logger.Warnf("Error reading from stream, name: %s, stream: %s, error: %v", s.name, streamType, err)
		}
		return
	}
}

// writeChunk writes to the stream sink and then the combined sink. It
// returns whether the last write failed so repeated failures are logged once.
func (s *Session) writeChunk(chunk []byte, streamType StreamType, own *sink, failing bool) bool {
	var writeErr error
	for _, target := range []*sink{own, s.combined} {
		if target == nil {
			continue
		}
		if err := target.Write(chunk); err != nil {
			atomic.AddInt64(&s.writeErrors, 1)
			writeErr = err
		}
	}

	switch {
	case writeErr != nil && !failing:
		s.logger.Errorf("Log sink write failed, name: %s, stream: %s, error: %v", s.name, streamType, writeErr)
		return true
	case writeErr == nil && failing:
		s.logger.Infof("Log sink recovered, name: %s, stream: %s", s.name, streamType)
		return false
	default:
		return writeErr != nil
	}
}

func (s *Session) closeSinks() {
	for _, target := range []*sink{s.stdout, s.stderr, s.combined} {
		if target == nil {
			continue
		}
		if err := target.Close(); err != nil {
			s.logger.Warnf("Failed to close log sink, name: %s, path: %s, error: %v", s.name, target.path, err)
		}
	}
}

// isClosedPipe reports read errors caused by closing our own read end
func isClosedPipe(err error) bool {
	return stderrors.Is(err, os.ErrClosed) || stderrors.Is(err, io.ErrClosedPipe)
}
