package recording

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/meetbot/internal/browser/browsertest"
	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/platform"
)

// fakeSource streams fixed chunks until closed.
type fakeSource struct {
	chunks  [][]byte
	openErr error

	mu     sync.Mutex
	opened int
	closes int
	pw     *io.PipeWriter
}

func (f *fakeSource) Open(ctx context.Context, session *platform.JoinedSession) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	pr, pw := io.Pipe()
	f.pw = pw
	go func() {
		for _, c := range f.chunks {
			if _, err := pw.Write(c); err != nil {
				return
			}
		}
	}()
	return &fakeStream{PipeReader: pr, src: f}, nil
}

// endCapture simulates the capture terminating on its own.
func (f *fakeSource) endCapture() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pw.Close()
}

type fakeStream struct {
	*io.PipeReader
	src *fakeSource
}

func (s *fakeStream) Close() error {
	s.src.mu.Lock()
	s.src.closes++
	s.src.mu.Unlock()
	return s.src.pw.Close()
}

func joinedSession(id int64) *platform.JoinedSession {
	return &platform.JoinedSession{
		Identity: models.BotIdentity{ID: id, Platform: models.PlatformMeet},
		Session:  browsertest.NewSession(browsertest.NewPage()),
		JoinedAt: time.Now(),
	}
}

func TestStartRefusesUnjoinedSession(t *testing.T) {
	dir := t.TempDir()
	p := New(&fakeSource{}, dir, "", nil)

	js := joinedSession(1)
	js.JoinedAt = time.Time{}
	_, err := p.Start(context.Background(), js)
	assert.ErrorIs(t, err, ErrNotJoined)

	_, err = p.Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotJoined)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordAndStop(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{chunks: [][]byte{[]byte("hello "), []byte("meeting")}}
	p := New(src, dir, "webm", nil)

	js := joinedSession(42)
	h, err := p.Start(context.Background(), js)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bot-42.webm"), h.Path())
	assert.Equal(t, "webm", h.Container())
	assert.False(t, h.StartedAt().Before(js.JoinedAt))

	require.Eventually(t, func() bool { return h.Written() == 13 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.Equal(t, 1, src.closes)

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "hello meeting", string(data))
}

func TestStopAfterCaptureEnded(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{[]byte("partial")}}
	p := New(src, t.TempDir(), "", nil)

	h, err := p.Start(context.Background(), joinedSession(3))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Written() == 7 }, time.Second, 5*time.Millisecond)
	src.endCapture()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("copy did not finish after capture ended")
	}

	assert.NoError(t, h.Stop())
	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestConcurrentStop(t *testing.T) {
	src := &fakeSource{}
	p := New(src, t.TempDir(), "", nil)
	h, err := p.Start(context.Background(), joinedSession(4))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Stop())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, src.closes)
}

func TestSourceOpenFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	p := New(&fakeSource{openErr: errors.New("no display")}, dir, "", nil)

	_, err := p.Start(context.Background(), joinedSession(5))
	var re *RecordingError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "capture", re.Op)

	_, statErr := os.Stat(filepath.Join(dir, "bot-5.webm"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFFmpegArgs(t *testing.T) {
	f := &FFmpegSource{Display: ":1", AudioSource: "meet.monitor", FrameRate: 30}
	args := f.Args()
	assert.Contains(t, args, "x11grab")
	assert.Contains(t, args, ":1")
	assert.Contains(t, args, "meet.monitor")
	assert.Contains(t, args, "1280x720")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestFFmpegSourceInterruptsOnStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on SIGINT")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	body := "#!/bin/sh\ntrap 'printf END; exit 0' INT\nprintf START\nwhile true; do sleep 0.05; done\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	src := &FFmpegSource{Binary: script, Grace: 2 * time.Second}
	p := New(src, t.TempDir(), "", nil)

	h, err := p.Start(context.Background(), joinedSession(6))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Written() >= 5 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Stop())
	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "STARTEND", string(data))
}

func TestCheckFFmpegMissing(t *testing.T) {
	f := &FFmpegSource{Binary: filepath.Join(t.TempDir(), "nope")}
	assert.Error(t, f.CheckFFmpeg())
}

func TestStopAfterSinkWriteFailure(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("needs /dev/full")
	}
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	if _, err := exec.LookPath("yes"); err != nil {
		t.Skip("yes not available")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec yes\n"), 0o755))

	out := filepath.Join(dir, "out")
	src := &FFmpegSource{Binary: script, Grace: 200 * time.Millisecond}
	p := New(src, out, "", nil)
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.Symlink("/dev/full", p.Path(1)))

	h, err := p.Start(context.Background(), joinedSession(1))
	require.NoError(t, err)

	select {
	case <-h.Done():
		t.Fatal("copy ended although the capture is still running")
	case <-time.After(100 * time.Millisecond):
	}

	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop() }()

	select {
	case err := <-stopped:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recording write")
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked after the sink failed")
	}
}
