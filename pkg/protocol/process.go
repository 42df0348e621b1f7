package protocol

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const processLogPrefix = "protocol:process"

// processExitGrace is how long Close waits for the child to exit after its stdin closes.
const processExitGrace = 3 * time.Second

// ProcessTransport runs the market-data service as a child process and speaks the
// protocol over its stdin/stdout. The child's stderr is logged.
type ProcessTransport struct {
	*StreamTransport
	cmd  *exec.Cmd
	once sync.Once
}

// StartProcess starts command (split on whitespace, e.g. "marketdata stdio").
func StartProcess(command string, env ...string) (*ProcessTransport, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s - empty command", processLogPrefix)
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	cmd.Stderr = &stderrLogger{name: parts[0]}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get stdin pipe: %w", processLogPrefix, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get stdout pipe: %w", processLogPrefix, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s - failed to start %s: %w", processLogPrefix, parts[0], err)
	}

	slog.Info(fmt.Sprintf("%s - Started %s (pid %d)", processLogPrefix, command, cmd.Process.Pid))
	return &ProcessTransport{
		StreamTransport: NewStreamTransport(stdout, stdin),
		cmd:             cmd,
	}, nil
}

// Close closes the child's stdin, which ends its serve loop, and waits for it to exit.
// The child is killed if it does not exit in time.
func (p *ProcessTransport) Close() error {
	var err error
	p.once.Do(func() {
		err = p.StreamTransport.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case werr := <-done:
			if werr != nil {
				slog.Warn(fmt.Sprintf("%s - child exited: %v", processLogPrefix, werr))
			}
		case <-time.After(processExitGrace):
			slog.Warn(fmt.Sprintf("%s - child did not exit, killing pid %d", processLogPrefix, p.cmd.Process.Pid))
			_ = p.cmd.Process.Kill()
			<-done
		}
	})
	return err
}

// stderrLogger forwards complete lines written by the child to slog.
type stderrLogger struct {
	name string
	mu   sync.Mutex
	buf  []byte
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(l.buf[:i])); line != "" {
			slog.Info(fmt.Sprintf("%s - [%s] %s", processLogPrefix, l.name, line))
		}
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

var _ Transport = (*ProcessTransport)(nil)
