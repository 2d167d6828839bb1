package actions

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ASoldo/orca/internal/bus"
	"github.com/ASoldo/orca/internal/command"
	"github.com/ASoldo/orca/internal/k8s"
	"github.com/ASoldo/orca/internal/kinds"
	"github.com/ASoldo/orca/internal/logging"
)

// drainWindow is how long Shutdown waits for tasks to honor cancellation
// before they are detached and their output dropped.
const drainWindow = 250 * time.Millisecond

// outputFlush batches task output lines before publishing to the bus.
const outputFlush = 100 * time.Millisecond

// Supervisor dispatches background tasks and the single foreground slot.
// It exclusively owns subprocess and stream handles; the runtime loop never
// blocks on them directly.
type Supervisor struct {
	client k8s.Client
	bus    *bus.Bus

	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
	wg      sync.WaitGroup
	fgBusy  bool
}

// NewSupervisor creates a supervisor publishing to the given bus.
func NewSupervisor(client k8s.Client, b *bus.Bus) *Supervisor {
	return &Supervisor{
		client:  client,
		bus:     b,
		cancels: map[int]context.CancelFunc{},
	}
}

// AcquireForeground claims the terminal for a foreground action (edit, exec,
// shell). At most one runs at a time; a second request fails with ActionBusy.
func (s *Supervisor) AcquireForeground() *command.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fgBusy {
		return command.Errf(command.KindActionBusy, "another foreground action is running")
	}
	s.fgBusy = true
	return nil
}

// ReleaseForeground returns the terminal to the renderer.
func (s *Supervisor) ReleaseForeground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fgBusy = false
}

// ForegroundBusy reports whether the terminal is handed to a child.
func (s *Supervisor) ForegroundBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fgBusy
}

func (s *Supervisor) register() (int, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[id] = cancel
	return id, ctx
}

func (s *Supervisor) unregister(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

// Cancel stops one background task; it must honor the cancellation at its
// next suspension point.
func (s *Supervisor) Cancel(taskID int) {
	s.unregister(taskID)
}

// Shutdown cancels everything and waits out the drain window.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainWindow):
		logging.Warn("tasks did not drain in time, detaching")
	}
}

// StartLogTail streams pod logs into bus TaskOutput events. Returns the task
// id the owning overlay cancels on close.
func (s *Supervisor) StartLogTail(namespace, pod string, opts k8s.LogOptions) int {
	id, ctx := s.register()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(id)

		stream, err := s.client.Logs(ctx, namespace, pod, opts)
		if err != nil {
			s.bus.Publish(bus.TaskExit{TaskID: id, Err: err})
			return
		}
		defer stream.Close()
		go func() {
			<-ctx.Done()
			stream.Close()
		}()
		s.pumpLines(ctx, id, stream)
	}()
	return id
}

// pumpLines reads a stream line-wise, batching into TaskOutput events on a
// flush interval. Publishing applies back-pressure when the bus is full.
func (s *Supervisor) pumpLines(ctx context.Context, id int, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lines := []string{}
	flush := time.NewTicker(outputFlush)
	defer flush.Stop()

	lineCh := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		for scanner.Scan() {
			select {
			case lineCh <- scanner.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	publish := func() {
		if len(lines) == 0 {
			return
		}
		batch := make([]string, len(lines))
		copy(batch, lines)
		lines = lines[:0]
		s.bus.Publish(bus.TaskOutput{TaskID: id, Lines: batch})
	}

	for {
		select {
		case <-ctx.Done():
			publish()
			s.bus.Publish(bus.TaskExit{TaskID: id, Err: nil})
			return
		case line := <-lineCh:
			lines = append(lines, line)
		case <-flush.C:
			publish()
		case err := <-scanErr:
			publish()
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			s.bus.Publish(bus.TaskExit{TaskID: id, Err: err})
			return
		}
	}
}

// StartPortForward launches the forwarder for an already-registered PF
// session. For services the backing pod resolves first. State transitions
// post to the bus; the runtime loop applies them to the registry.
func (s *Supervisor) StartPortForward(session *PFSession) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		podName := session.Name
		if session.Kind != kinds.Pods {
			resolved, err := s.client.PodForService(context.Background(), session.Namespace, session.Name)
			if err != nil {
				s.bus.Publish(bus.PFTransition{ID: session.ID, State: PFFailed.String(), Reason: err.Error()})
				return
			}
			podName = resolved
		}

		ready := make(chan struct{})
		var stderr bytes.Buffer
		go func() {
			select {
			case <-ready:
				s.bus.Publish(bus.PFTransition{ID: session.ID, State: PFLive.String()})
			case <-session.stop:
			}
		}()

		err := s.client.PortForward(k8s.PortForwardRequest{
			Namespace:  session.Namespace,
			PodName:    podName,
			LocalPort:  session.LocalPort,
			RemotePort: session.RemotePort,
			Ready:      ready,
			Stop:       session.stop,
			Out:        io.Discard,
			ErrOut:     &stderr,
		})
		if err != nil {
			reason := strings.TrimSpace(stderr.String())
			if reason == "" {
				reason = err.Error()
			}
			logging.Warn("port-forward failed", "target", session.Target(), "error", err)
			s.bus.Publish(bus.PFTransition{ID: session.ID, State: PFFailed.String(), Reason: reason})
			return
		}
		s.bus.Publish(bus.PFTransition{ID: session.ID, State: PFClosed.String()})
	}()
}

// devopsTimeouts matches the per-tool deadlines of the external read-only
// integrations.
var devopsTimeouts = map[string]time.Duration{
	"argocd":    20 * time.Second,
	"helm":      6 * time.Second,
	"tf":        15 * time.Second,
	"ansible":   15 * time.Second,
	"docker":    10 * time.Second,
	"rbac":      12 * time.Second,
	"oc":        6 * time.Second,
	"kustomize": 8 * time.Second,
}

// devopsArgv maps a tool verb to the command line actually run when the user
// gives no arguments.
var devopsArgv = map[string][]string{
	"argocd":    {"argocd", "app", "list"},
	"helm":      {"helm", "list", "-A"},
	"tf":        {"terraform", "show", "-no-color"},
	"ansible":   {"ansible", "--version"},
	"docker":    {"docker", "ps"},
	"rbac":      {"kubectl", "auth", "can-i", "--list"},
	"oc":        {"oc", "project"},
	"kustomize": {"kustomize", "version"},
}

// StartDevOpsTool runs an external CLI read-only with the tool's timeout,
// streaming captured output into a task buffer. Returns the task id.
func (s *Supervisor) StartDevOpsTool(tool string, args []string) int {
	id, ctx := s.register()

	base := devopsArgv[tool]
	bin := tool
	if len(base) > 0 {
		bin = base[0]
	}
	var argv []string
	if len(args) > 0 {
		argv = append([]string{bin}, args...)
	} else if len(base) > 0 {
		argv = append([]string(nil), base...)
	} else {
		argv = []string{bin}
	}
	timeout := devopsTimeouts[tool]
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(id)

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			s.bus.Publish(bus.TaskOutput{TaskID: id, Lines: strings.Split(strings.TrimRight(string(out), "\n"), "\n")})
		}
		if runCtx.Err() == context.DeadlineExceeded {
			err = command.Errf(command.KindTimeout, "%s timed out after %s", argv[0], timeout)
		}
		s.bus.Publish(bus.TaskExit{TaskID: id, Err: err})
	}()
	return id
}

// StartPlugin runs a user-defined plugin with its configured timeout and
// retries, streaming output like a devops tool.
func (s *Supervisor) StartPlugin(name string, argv []string, timeout time.Duration, retries int) int {
	id, ctx := s.register()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(id)

		var lastErr error
		for attempt := 0; attempt <= retries; attempt++ {
			if ctx.Err() != nil {
				break
			}
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
			out, err := cmd.CombinedOutput()
			cancel()
			if len(out) > 0 {
				s.bus.Publish(bus.TaskOutput{TaskID: id, Lines: strings.Split(strings.TrimRight(string(out), "\n"), "\n")})
			}
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
			logging.Warn("plugin failed", "plugin", name, "attempt", attempt+1, "error", err)
		}
		s.bus.Publish(bus.TaskExit{TaskID: id, Err: lastErr})
	}()
	return id
}
