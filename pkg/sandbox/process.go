package sandbox

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
)

// DefaultStopTimeout is how long Destroy waits for a worker to exit before
// killing it.
const DefaultStopTimeout = 5 * time.Second

// Process creates one child process per context. The child runs [Serve]
// with a [Local] facility, so resolution semantics are identical; the
// process boundary only adds isolation.
type Process struct {
	// Path is the worker executable. Empty means the running binary.
	Path string
	// Args precede the worker flags. NewProcess sets {WorkerCommand}.
	Args []string
	// Env is appended to the current environment.
	Env         []string
	SearchPaths []string
	// Stderr receives the worker's stderr. Nil means os.Stderr.
	Stderr      io.Writer
	StopTimeout time.Duration
	Logger      *log.Logger
}

// NewProcess returns a facility that re-executes the running binary's
// worker subcommand.
func NewProcess(searchPaths []string, logger *log.Logger) *Process {
	return &Process{
		Args:        []string{WorkerCommand},
		SearchPaths: searchPaths,
		Logger:      logger,
	}
}

// Create starts a worker and waits for its handshake.
func (p *Process) Create(ctx context.Context, name, baseDir string) (Context, error) {
	path := p.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeContextLifecycle, err, "locate worker executable")
		}
		path = exe
	}
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	stderr := p.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	stop := p.StopTimeout
	if stop <= 0 {
		stop = DefaultStopTimeout
	}

	args := append(append([]string(nil), p.Args...), WorkerArgs(name, baseDir, p.SearchPaths)...)
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeContextLifecycle, err, "create context %s", name)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeContextLifecycle, err, "create context %s", name)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeContextLifecycle, err, "start worker for %s", name)
	}

	c := &processContext{
		name:    name,
		baseDir: baseDir,
		cmd:     cmd,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		dec:     json.NewDecoder(stdout),
		stop:    stop,
		logger:  logger,
	}

	var hello response
	if err := c.dec.Decode(&hello); err != nil {
		c.kill()
		return nil, errors.Wrap(errors.ErrCodeContextLifecycle, err, "handshake with worker for %s", name)
	}
	if hello.Error != nil || !hello.Ready {
		c.kill()
		return nil, errors.Wrap(errors.ErrCodeContextLifecycle, hello.Error.err(), "worker for %s refused to start", name)
	}
	c.id = hello.ID

	logger.Debug("worker started", "id", c.id, "name", name, "pid", cmd.Process.Pid)
	return c, nil
}

type processContext struct {
	id      string
	name    string
	baseDir string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *json.Encoder
	dec     *json.Decoder
	stop    time.Duration
	logger  *log.Logger

	mu        sync.Mutex
	destroyed bool
	broken    error
}

func (c *processContext) ID() string      { return c.id }
func (c *processContext) Name() string    { return c.name }
func (c *processContext) BaseDir() string { return c.baseDir }

func (c *processContext) LoadFromPath(ctx context.Context, path string) (*artifact.Artifact, error) {
	resp, err := c.call(ctx, request{Op: opLoad, Path: path})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.err()
	}
	if resp.Artifact == nil {
		return nil, errors.New(errors.ErrCodeContextLifecycle, "worker for %s sent an empty load response", c.name)
	}
	return resp.Artifact, nil
}

func (c *processContext) Resolve(ctx context.Context, d artifact.Declaration) (Outcome, error) {
	resp, err := c.call(ctx, request{Op: opResolve, Dependency: &d})
	if err != nil {
		return Outcome{}, err
	}
	if resp.Error != nil {
		return Outcome{}, resp.Error.err()
	}
	if resp.Outcome == nil {
		return Outcome{}, errors.New(errors.ErrCodeContextLifecycle, "worker for %s sent an empty resolve response", c.name)
	}
	return resp.Outcome.outcome(), nil
}

func (c *processContext) call(ctx context.Context, req request) (response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return response{}, errors.New(errors.ErrCodeContextLifecycle, "context %s already destroyed", c.name)
	}
	if c.broken != nil {
		return response{}, c.broken
	}
	if err := ctx.Err(); err != nil {
		return response{}, err
	}

	if err := c.enc.Encode(req); err != nil {
		c.broken = errors.Wrap(errors.ErrCodeContextLifecycle, err, "send %s to worker for %s", req.Op, c.name)
		return response{}, c.broken
	}
	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		c.broken = errors.Wrap(errors.ErrCodeContextLifecycle, err, "read %s reply from worker for %s", req.Op, c.name)
		return response{}, c.broken
	}
	return resp, nil
}

// Destroy asks the worker to release its context, then reaps it. A worker
// that does not exit within the stop timeout is killed.
func (c *processContext) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true

	var errs []error
	if c.broken == nil {
		if err := c.enc.Encode(request{Op: opDestroy}); err != nil {
			errs = append(errs, err)
		} else {
			var resp response
			if err := c.dec.Decode(&resp); err != nil {
				errs = append(errs, err)
			} else if resp.Error != nil {
				errs = append(errs, resp.Error.err())
			}
		}
	}
	_ = c.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
	case <-time.After(c.stop):
		_ = c.cmd.Process.Kill()
		<-done
		errs = append(errs, errors.New(errors.ErrCodeTimeout, "worker did not exit within %s", c.stop))
	}
	c.logger.Debug("worker stopped", "id", c.id, "name", c.name)

	if len(errs) > 0 {
		return errors.Wrap(errors.ErrCodeContextLifecycle, stderrors.Join(errs...), "destroy context %s", c.name)
	}
	return nil
}

func (c *processContext) kill() {
	_ = c.stdin.Close()
	_ = c.cmd.Process.Kill()
	_ = c.cmd.Wait()
}
