// File: internal/mcp/stdio.go
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/config"
)

// StdioTransport talks to an MCP server subprocess using newline-delimited
// JSON-RPC on its stdin and stdout.
type StdioTransport struct {
	command string
	args    []string
	env     []string
	logger  *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// NewStdioTransport creates a transport for the configured server. The
// subprocess starts on first use.
func NewStdioTransport(server config.MCPServerConfig, logger *zap.Logger) *StdioTransport {
	return &StdioTransport{
		command: server.Command,
		args:    server.Args,
		env:     server.Env,
		logger:  logger.Named("stdio").With(zap.String("command", server.Command)),
	}
}

// start launches the subprocess if it is not running. The process outlives
// individual request contexts. Caller must hold t.mu.
func (t *StdioTransport) start() error {
	if t.cmd != nil {
		return nil
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start subprocess %s: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 1<<20)
	go t.drainStderr(stderr)

	t.logger.Info("MCP subprocess started", zap.Int("pid", cmd.Process.Pid), zap.Strings("args", t.args))
	return nil
}

func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("MCP subprocess stderr", zap.String("line", scanner.Text()))
	}
}

type readResult struct {
	line []byte
	err  error
}

// Send writes the request and reads lines until the matching response
// arrives. Server notifications and log noise in between are skipped.
// A cancelled context kills the subprocess so the pending read unblocks.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.start(); err != nil {
		return nil, err
	}
	if err := t.writeLocked(req); err != nil {
		return nil, err
	}

	for {
		ch := make(chan readResult, 1)
		reader := t.reader
		go func() {
			line, err := reader.ReadBytes('\n')
			ch <- readResult{line: line, err: err}
		}()

		select {
		case <-ctx.Done():
			t.cleanup()
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				t.cleanup()
				return nil, fmt.Errorf("read from subprocess stdout: %w", res.err)
			}
			var resp Response
			if err := json.Unmarshal(res.line, &resp); err != nil {
				t.logger.Debug("Skipping non-JSON line from MCP subprocess", zap.ByteString("line", res.line))
				continue
			}
			if resp.ID == req.ID && (resp.Result != nil || resp.Error != nil) {
				return &resp, nil
			}
			t.logger.Debug("Skipping unmatched MCP message", zap.Int64("id", resp.ID))
		}
	}
}

// Notify writes a notification.
func (t *StdioTransport) Notify(_ context.Context, notif *Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.start(); err != nil {
		return err
	}
	return t.writeLocked(notif)
}

func (t *StdioTransport) writeLocked(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.cleanup()
		return fmt.Errorf("write to subprocess stdin: %w", err)
	}
	return nil
}

// Close closes stdin and waits briefly for the subprocess to exit before killing it.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil {
		return nil
	}
	t.logger.Info("Stopping MCP subprocess", zap.Int("pid", t.cmd.Process.Pid))
	_ = t.stdin.Close()

	done := make(chan error, 1)
	cmd := t.cmd
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.logger.Warn("MCP subprocess did not exit gracefully, killing", zap.Int("pid", cmd.Process.Pid))
		_ = cmd.Process.Kill()
		<-done
	}
	t.cmd, t.stdin, t.reader = nil, nil, nil
	return err
}

// cleanup discards the subprocess after a failure. Caller must hold t.mu.
func (t *StdioTransport) cleanup() {
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.cmd, t.stdin, t.reader = nil, nil, nil
}
