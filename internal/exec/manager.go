package exec

import (
	"os/exec"
	"sync"
	"syscall"

	"github.com/hashicorp/go-gatedio"
	"github.com/hashicorp/go-hclog"

	"rush/internal/task"
)

// Manager tracks every task command currently running so that an
// external interrupt can be forwarded to all of them at once, rather
// than only to the one the terminal's own job control happens to
// reach. Tasks are expected to die promptly on SIGINT/SIGTERM; there
// is no graceful-window or force-kill escalation.
type Manager struct {
	mu       sync.Mutex
	running  map[*exec.Cmd]struct{}
	stopping bool
	logger   hclog.Logger
}

// NewManager returns a Manager ready to track commands.
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		running: make(map[*exec.Cmd]struct{}),
		logger:  logger.Named("exec"),
	}
}

// Run builds and runs t's command to completion, registering it with
// the manager for the duration of its lifetime. Output is captured in
// full and returned on the Result, not streamed, so the caller decides
// what (if anything) to print once the command has finished. Returns
// ErrStopping without starting anything if the manager has already
// begun shutting down.
func (m *Manager) Run(t *task.Task, workDir string) (*Result, error) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil, ErrStopping
	}
	cmd := Build(t, workDir)
	m.mu.Unlock()

	outBuf, errBuf, err := m.start(cmd)
	if err != nil {
		return nil, err
	}

	exitCode := ExitCodeOK
	if err := cmd.Wait(); err != nil {
		exitCode = exitCodeFromError(err)
	}

	m.mu.Lock()
	delete(m.running, cmd)
	m.mu.Unlock()

	return &Result{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: exitCode,
	}, nil
}

func (m *Manager) start(cmd *exec.Cmd) (*gatedio.ByteBuffer, *gatedio.ByteBuffer, error) {
	outBuf, errBuf := gatedio.NewByteBuffer(), gatedio.NewByteBuffer()
	cmd.Stdout = outBuf
	cmd.Stderr = errBuf
	setSetpgid(cmd)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		return nil, nil, ErrStopping
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	m.running[cmd] = struct{}{}
	return outBuf, errBuf, nil
}

// Stop signals every currently-running command's process group with
// sig and marks the manager as stopping, so subsequent Run calls fail
// fast instead of spawning new work during shutdown.
func (m *Manager) Stop(sig syscall.Signal) {
	m.mu.Lock()
	m.stopping = true
	cmds := make([]*exec.Cmd, 0, len(m.running))
	for cmd := range m.running {
		cmds = append(cmds, cmd)
	}
	m.mu.Unlock()

	for _, cmd := range cmds {
		if err := signalGroup(cmd, sig); err != nil {
			m.logger.Debug("signaling child failed", "error", err)
		}
	}
}

// ErrStopping is returned by Run once Stop has been called.
var ErrStopping = errStopping{}

type errStopping struct{}

func (errStopping) Error() string { return "exec manager is stopping" }
