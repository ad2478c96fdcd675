package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/platform"
)

const (
	defaultFFmpeg      = "ffmpeg"
	defaultDisplay     = ":99"
	defaultAudioSource = "default"
	defaultFrameRate   = 25
	defaultGrace       = 5 * time.Second
	stderrTail         = 4096
)

var errStreamStopped = errors.New("capture stream stopped")

// FFmpegSource records the X display and PulseAudio output the headful
// browser renders into.
type FFmpegSource struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	Binary string
	// Display is the X display to grab, e.g. ":99".
	Display string
	// AudioSource is the PulseAudio source, usually the sink's monitor.
	AudioSource string
	FrameRate   int
	Width       int
	Height      int
	// Grace is how long ffmpeg gets to finalize after SIGINT before it is killed.
	Grace  time.Duration
	Logger logging.Logger
}

// CheckFFmpeg reports whether the ffmpeg binary can be found.
func (f *FFmpegSource) CheckFFmpeg() error {
	if _, err := exec.LookPath(f.binary()); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): install ffmpeg or set recording.ffmpeg_path", f.binary())
	}
	return nil
}

func (f *FFmpegSource) binary() string {
	if f.Binary != "" {
		return f.Binary
	}
	return defaultFFmpeg
}

// Args returns the ffmpeg arguments for a webm stream on stdout.
func (f *FFmpegSource) Args() []string {
	display := f.Display
	if display == "" {
		display = defaultDisplay
	}
	audio := f.AudioSource
	if audio == "" {
		audio = defaultAudioSource
	}
	rate := f.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	width, height := f.Width, f.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "x11grab",
		"-framerate", strconv.Itoa(rate),
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", display,
		"-f", "pulse",
		"-i", audio,
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-b:v", "1M",
		"-c:a", "libopus",
		"-f", DefaultContainer,
		"pipe:1",
	}
}

// Open starts ffmpeg. The returned stream's Close interrupts ffmpeg so it
// can finalize the container, and kills it if it does not exit in time.
func (f *FFmpegSource) Open(ctx context.Context, session *platform.JoinedSession) (io.ReadCloser, error) {
	logger := f.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	grace := f.Grace
	if grace <= 0 {
		grace = defaultGrace
	}

	pr, pw := io.Pipe()
	cmd := exec.Command(f.binary(), f.Args()...)
	cmd.Stdout = pw
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		PipeReader: pr,
		cmd:        cmd,
		grace:      grace,
		exited:     make(chan struct{}),
		logger:     logger.With(logging.F("pid", cmd.Process.Pid), logging.F("bot_id", session.Identity.ID)),
	}
	go func() {
		err := cmd.Wait()
		s.waitErr = err
		close(s.exited)
		if err != nil && !s.stopping() {
			logger.Warn("ffmpeg exited", logging.Err(err), logging.F("stderr", stderr.String()))
		}
		pw.Close()
	}()
	return s, nil
}

type ffmpegStream struct {
	*io.PipeReader
	cmd     *exec.Cmd
	grace   time.Duration
	logger  logging.Logger
	exited  chan struct{}
	waitErr error

	mu      sync.Mutex
	stopped bool
}

func (s *ffmpegStream) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Close must not be called before the reader is being drained: ffmpeg
// cannot exit while its stdout is full.
func (s *ffmpegStream) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		select {
		case <-s.exited:
		case <-time.After(s.grace):
		}
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	select {
	case <-s.exited:
		// Capture already ended, e.g. the display went away.
		return nil
	default:
	}

	if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to interrupt ffmpeg", logging.Err(err))
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.exited:
		return nil
	case <-timer.C:
	}

	s.logger.Warn("ffmpeg did not exit after interrupt, killing")
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing ffmpeg: %w", err)
	}
	// Wait also waits for the stdout copier, which is stuck if nobody reads.
	s.PipeReader.CloseWithError(errStreamStopped)

	timer.Reset(s.grace)
	select {
	case <-s.exited:
		return nil
	case <-timer.C:
		return fmt.Errorf("ffmpeg (pid %d) did not exit after kill", s.cmd.Process.Pid)
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
