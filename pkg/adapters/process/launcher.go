package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/google/uuid"
)

// ConnectFlag is appended to the worker's arguments, followed by the
// address it must dial.
const ConnectFlag = "--connect"

// Launcher starts a worker process and waits for it to dial back.
type Launcher struct {
	config  WorkerConfig
	addr    string
	baseDir string
	stderr  io.Writer
	logger  *slog.Logger
}

var _ ports.Launcher = (*Launcher)(nil)

// LauncherOption configures the launcher.
type LauncherOption func(*Launcher)

// WithAddress fixes the listen address. By default every launch gets a
// fresh ipc socket in the temp directory.
func WithAddress(addr string) LauncherOption {
	return func(l *Launcher) {
		l.addr = addr
	}
}

// WithBaseDir sets the working directory for launched workers.
func WithBaseDir(dir string) LauncherOption {
	return func(l *Launcher) {
		l.baseDir = dir
	}
}

// WithStderr forwards the worker's stderr.
func WithStderr(w io.Writer) LauncherOption {
	return func(l *Launcher) {
		l.stderr = w
	}
}

// WithLogger sets the launcher logger.
func WithLogger(logger *slog.Logger) LauncherOption {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// NewLauncher creates a launcher for one worker configuration.
func NewLauncher(cfg WorkerConfig, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		config: cfg,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Launcher) address() string {
	if l.addr != "" {
		return l.addr
	}
	return "ipc://" + filepath.Join(os.TempDir(), "patchbay-"+uuid.NewString()+".sock")
}

// Launch listens, starts the worker and returns once it has connected.
// A worker that fails to connect within timeout is killed.
func (l *Launcher) Launch(ctx context.Context, timeout time.Duration) (ports.MessageChannel, error) {
	if timeout <= 0 {
		timeout = l.config.Timeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	addr := l.address()
	ch, err := Listen(addr)
	if err != nil {
		return nil, err
	}

	args := append(append([]string(nil), l.config.Args...), ConnectFlag, addr)
	cmd := exec.Command(l.config.Command, args...)
	cmd.Dir = l.baseDir
	cmd.Stderr = l.stderr
	cmd.Env = cmd.Environ()
	for k, v := range l.config.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := cmd.Start(); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to start worker %q: %w", l.config.Name, err)
	}
	log := l.logger.With("worker", l.config.Name, "pid", cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	fail := func(err error) (ports.MessageChannel, error) {
		_ = cmd.Process.Kill()
		<-exited
		_ = ch.Close()
		return nil, err
	}

	select {
	case <-ch.Connected():
	case err := <-exited:
		_ = ch.Close()
		return nil, fmt.Errorf("worker %q exited before connecting: %v", l.config.Name, err)
	case <-timer.C:
		log.Warn("worker did not connect", "timeout", timeout)
		return fail(fmt.Errorf("worker %q: %w", l.config.Name, ErrLaunchTimeout))
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	log.Debug("worker connected", "addr", addr)
	return &workerChannel{Channel: ch, cmd: cmd, exited: exited, logger: log}, nil
}

// workerChannel owns the worker process. Closing it closes the socket and
// reaps the process, killing it if it does not exit on its own.
type workerChannel struct {
	*Channel
	cmd    *exec.Cmd
	exited chan error
	logger *slog.Logger
	once   sync.Once
}

func (w *workerChannel) Close() error {
	err := w.Channel.Close()
	w.once.Do(func() {
		select {
		case werr := <-w.exited:
			w.logger.Debug("worker exited", "err", werr)
		case <-time.After(2 * time.Second):
			w.logger.Warn("worker did not exit, killing")
			if w.cmd != nil {
				_ = w.cmd.Process.Kill()
			}
			<-w.exited
		}
	})
	return err
}
