package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// stopGrace is how long Close waits for the subprocess to exit after
// stdin is closed before killing it.
const stopGrace = 5 * time.Second

// StdioConfig configures a stdio MCP transport that communicates with
// a subprocess over stdin/stdout using newline-delimited JSON-RPC.
type StdioConfig struct {
	// Command is the executable and any leading arguments.
	Command []string

	// Args are appended to Command to form the full argv.
	Args []string

	// Env holds additional environment variables for the subprocess.
	// They are appended to a copy of the parent environment handed to
	// the child; the parent process environment is never modified.
	Env map[string]string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// StdioTransport communicates with an MCP server running as a
// subprocess. JSON-RPC messages are newline-delimited on stdin/stdout.
// One request is in flight at a time; a semaphore serializes wire
// access so concurrent callers queue with context-aware waits.
type StdioTransport struct {
	config StdioConfig
	logger *slog.Logger

	sem chan struct{} // capacity 1, guards all state below

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	closed bool
}

// NewStdioTransport creates a stdio transport for the given config.
// The subprocess is not spawned until Start is called.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		config: cfg,
		logger: logger,
		sem:    make(chan struct{}, 1),
	}
}

// acquire takes the wire semaphore, honoring context cancellation.
func (t *StdioTransport) acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case t.sem <- struct{}{}:
	}
	// The select can pick the semaphore even when the context is
	// already cancelled; double-check and hand the token back.
	if err := ctx.Err(); err != nil {
		t.release()
		return err
	}
	return nil
}

// release returns the wire semaphore.
func (t *StdioTransport) release() {
	<-t.sem
}

// Start spawns the subprocess and wires its pipes. Calling Start on a
// transport that is already running is a no-op. The subprocess
// lifecycle is independent of call contexts: it survives individual
// request timeouts and is only terminated by Close or a wire failure.
func (t *StdioTransport) Start(ctx context.Context) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.release()

	if t.closed {
		return fmt.Errorf("start: %w", ErrClosed)
	}
	if t.cmd != nil {
		return nil
	}

	argv := append(append([]string{}, t.config.Command...), t.config.Args...)
	if len(argv) == 0 {
		return errors.New("start: no command configured")
	}

	t.logger.Info("starting MCP subprocess", "command", argv)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = childEnv(t.config.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for logging. It is not part of the protocol.
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stderrPipe.Close()
		stdout.Close()
		stdin.Close()
		return fmt.Errorf("start subprocess %s: %w", argv[0], err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 1<<20) // 1 MiB buffer for large responses

	// Drain stderr in the background.
	go t.drainStderr(stderrPipe)

	t.logger.Info("MCP subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// childEnv builds the subprocess environment: the parent environment
// plus the configured extras in sorted key order.
func childEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// drainStderr reads stderr lines and logs them at debug level.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("MCP subprocess stderr", "line", scanner.Text())
	}
}

// readResult is the outcome of a single line read from stdout.
type readResult struct {
	line []byte
	err  error
}

// Send sends a JSON-RPC request over stdin and reads the response from
// stdout. The semaphore serializes access since stdio is inherently
// sequential. The read is performed in a goroutine so that context
// cancellation can interrupt a blocking read.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.release()

	if err := t.wireReady(req.Method); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	t.logger.Log(ctx, LevelTrace, "wire send", "line", string(data))

	// Write request + newline delimiter.
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.teardown()
		return nil, fmt.Errorf("write to subprocess stdin: %w", err)
	}

	// Read response lines. The subprocess may emit notifications before
	// the actual response, so we loop until we find a matching ID.
	// Reads are performed in a goroutine so context cancellation works.
	for {
		ch := make(chan readResult, 1)
		go func() {
			line, readErr := t.reader.ReadBytes('\n')
			ch <- readResult{line: line, err: readErr}
		}()

		select {
		case <-ctx.Done():
			// Context cancelled or timed out. Kill the subprocess so
			// the blocked read unblocks, then mark the wire dead.
			t.teardown()
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				t.teardown()
				return nil, fmt.Errorf("read from subprocess stdout: %w", res.err)
			}

			t.logger.Log(ctx, LevelTrace, "wire recv", "line", string(res.line))

			var resp Response
			if err := json.Unmarshal(res.line, &resp); err != nil {
				t.logger.Debug("skipping non-JSON line from MCP subprocess",
					"line", string(res.line),
				)
				continue
			}

			// Server-initiated notifications and requests carry no
			// matching ID; we correlate on the request ID.
			if resp.ID == req.ID {
				return &resp, nil
			}

			t.logger.Debug("skipping unmatched MCP message", "id", resp.ID)
		}
	}
}

// Notify sends a JSON-RPC notification over stdin. No response is expected.
func (t *StdioTransport) Notify(ctx context.Context, notif *Notification) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.release()

	if err := t.wireReady(notif.Method); err != nil {
		return err
	}

	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	t.logger.Log(ctx, LevelTrace, "wire send", "line", string(data))

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.teardown()
		return fmt.Errorf("write notification to subprocess stdin: %w", err)
	}

	return nil
}

// wireReady reports whether the wire can carry a message. Caller must
// hold the semaphore.
func (t *StdioTransport) wireReady(method string) error {
	if t.closed {
		return fmt.Errorf("send %s: %w", method, ErrClosed)
	}
	if t.cmd == nil {
		return fmt.Errorf("send %s: %w", method, ErrNotConnected)
	}
	return nil
}

// Close terminates the subprocess and releases resources. It blocks
// until any in-flight request completes. Close is idempotent.
func (t *StdioTransport) Close() error {
	t.sem <- struct{}{}
	defer t.release()

	if t.closed {
		return nil
	}
	t.closed = true

	return t.stop()
}

// stop shuts the subprocess down: close stdin to signal exit, wait up
// to stopGrace, then kill. Caller must hold the semaphore.
func (t *StdioTransport) stop() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}

	t.logger.Info("stopping MCP subprocess", "pid", t.cmd.Process.Pid)

	// Close stdin to signal the subprocess to exit.
	if t.stdin != nil {
		t.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case err := <-done:
		t.cmd = nil
		return err
	case <-time.After(stopGrace):
		t.logger.Warn("MCP subprocess did not exit gracefully, killing",
			"pid", t.cmd.Process.Pid,
		)
		_ = t.cmd.Process.Kill()
		<-done
		t.cmd = nil
		return nil
	}
}

// teardown reaps the process after a wire failure and marks the
// transport closed. Caller must hold the semaphore.
func (t *StdioTransport) teardown() {
	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.cmd = nil
	t.stdin = nil
	t.reader = nil
	t.closed = true
}
