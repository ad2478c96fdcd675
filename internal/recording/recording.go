// Package recording captures a joined meeting's audio and video into a file.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/platform"
)

// DefaultContainer is a streamable container that survives an abrupt stop.
const DefaultContainer = "webm"

// ErrNotJoined is returned when recording is requested before the post-join
// signal was observed.
var ErrNotJoined = errors.New("session has not joined the meeting")

// RecordingError wraps a failure of one recording step.
type RecordingError struct {
	Op  string
	Err error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording %s: %v", e.Op, e.Err)
}

func (e *RecordingError) Unwrap() error {
	return e.Err
}

// Source produces the media byte stream of a joined session. Closing the
// stream ends the capture; the final bytes may still be read until EOF.
type Source interface {
	Open(ctx context.Context, session *platform.JoinedSession) (io.ReadCloser, error)
}

// Pipe copies a Source into a file per bot.
type Pipe struct {
	source    Source
	dir       string
	container string
	logger    logging.Logger
}

// New creates a Pipe writing <dir>/bot-<id>.<container>.
func New(source Source, dir, container string, logger logging.Logger) *Pipe {
	if container == "" {
		container = DefaultContainer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipe{
		source:    source,
		dir:       dir,
		container: container,
		logger:    logger.With(logging.F("component", "recording")),
	}
}

// Path returns the output file for a bot.
func (p *Pipe) Path(botID int64) string {
	return filepath.Join(p.dir, fmt.Sprintf("bot-%d.%s", botID, p.container))
}

// Start begins recording. The session must have passed the post-join signal.
func (p *Pipe) Start(ctx context.Context, session *platform.JoinedSession) (*Handle, error) {
	if !session.Joined() {
		return nil, ErrNotJoined
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, &RecordingError{Op: "open", Err: err}
	}
	path := p.Path(session.Identity.ID)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sink, err := os.Create(path)
	if err != nil {
		return nil, &RecordingError{Op: "open", Err: err}
	}

	stream, err := p.source.Open(ctx, session)
	if err != nil {
		sink.Close()
		os.Remove(path)
		return nil, &RecordingError{Op: "capture", Err: err}
	}

	h := &Handle{
		path:      path,
		container: p.container,
		sink:      sink,
		stream:    stream,
		done:      make(chan struct{}),
		startedAt: time.Now(),
		logger:    p.logger.With(logging.F("bot_id", session.Identity.ID)),
	}
	go h.copy()

	h.logger.Info("recording started", logging.F("path", path))
	return h, nil
}

// Handle is one open recording. Stop is safe to call any number of times.
type Handle struct {
	path      string
	container string
	sink      *os.File
	stream    io.ReadCloser
	startedAt time.Time
	logger    logging.Logger

	written atomic.Int64
	done    chan struct{}
	copyErr error

	stopOnce sync.Once
	stopErr  error
}

// Path is the absolute path of the output file.
func (h *Handle) Path() string { return h.path }

// Container is the output container format.
func (h *Handle) Container() string { return h.container }

// StartedAt is when the capture began.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Written returns the bytes written to the sink so far.
func (h *Handle) Written() int64 { return h.written.Load() }

// Done is closed once the capture stream has ended, whether stopped or not.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) copy() {
	defer close(h.done)
	_, err := io.Copy(countingWriter{h.sink, &h.written}, h.stream)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
		h.copyErr = err
		h.logger.Warn("recording sink failed, discarding capture", logging.Err(err))
		// The producer blocks on a full pipe and cannot exit until someone reads.
		io.Copy(io.Discard, h.stream)
	}
}

// Stop ends the capture, drains what is left and closes the file. A capture
// that already ended on its own is not an error. Only the first call does
// any work, so later calls return nil.
func (h *Handle) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		err = h.stop()
		h.stopErr = err
	})
	return err
}

// Err returns the result of the first Stop.
func (h *Handle) Err() error {
	return h.stopErr
}

func (h *Handle) stop() error {
	var errs []error
	if err := h.stream.Close(); err != nil {
		errs = append(errs, &RecordingError{Op: "stop", Err: err})
	}
	<-h.done
	if h.copyErr != nil {
		errs = append(errs, &RecordingError{Op: "write", Err: h.copyErr})
	}
	if err := h.sink.Sync(); err != nil {
		errs = append(errs, &RecordingError{Op: "flush", Err: err})
	}
	if err := h.sink.Close(); err != nil {
		errs = append(errs, &RecordingError{Op: "close", Err: err})
	}

	err := errors.Join(errs...)
	if err != nil {
		h.logger.Warn("recording stopped with errors", logging.Err(err), logging.F("bytes", h.Written()))
	} else {
		h.logger.Info("recording stopped", logging.F("bytes", h.Written()), logging.F("path", h.path))
	}
	return err
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
