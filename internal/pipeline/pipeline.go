// Package pipeline implements the background capture pipeline.
//
// A pipeline owns one worker goroutine that repeatedly waits (bounded) for the
// link to become readable, receives one frame, discards frames shorter than an
// ARP frame, applies the filter engine, queues accepted frames and publishes the
// new queue depth to an optional notifier.
//
// Shutdown is cooperative: Stop only sets a flag, which the worker checks once per
// wait interval, so a stop takes effect within one PollTimeout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/filter"
	"firestige.xyz/arpfuzzer/internal/queue"
)

const (
	DefaultPollTimeout = 3 * time.Second
	MaxPollTimeout     = 10 * time.Second
	DefaultBufferSize  = 65535
)

// State represents the pipeline lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Receiver is the readable side of a link socket.
type Receiver interface {
	// Wait blocks up to timeout and reports whether a frame is readable.
	Wait(timeout time.Duration) (bool, error)
	// Receive reads exactly one frame into buf.
	Receive(buf []byte) (int, error)
}

// Notifier publishes the queue depth after each accepted frame.
type Notifier interface {
	Notify(depth int) error
	Close() error
}

// Connector opens a notifier when the worker starts.
type Connector func(ctx context.Context) (Notifier, error)

// Config contains pipeline configuration.
type Config struct {
	Interface   string // Metrics and log label
	Receiver    Receiver
	Filter      *filter.Engine // nil accepts every frame
	Queue       *queue.Queue
	Connect     Connector     // nil disables notifications
	PollTimeout time.Duration // Bounded wait per iteration, 0 = DefaultPollTimeout
	BufferSize  int           // Receive buffer size, 0 = DefaultBufferSize
}

// Pipeline represents a single capture worker and its lifecycle.
type Pipeline struct {
	iface       string
	receiver    Receiver
	filter      *filter.Engine
	queue       *queue.Queue
	connect     Connector
	pollTimeout time.Duration
	bufferSize  int
	metrics     *Metrics

	// Runtime state
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	done     chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// New validates cfg and creates an idle pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Receiver == nil {
		return nil, fmt.Errorf("%w: pipeline requires a receiver", core.ErrConfigInvalid)
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("%w: pipeline requires a queue", core.ErrConfigInvalid)
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.PollTimeout < 0 || cfg.PollTimeout > MaxPollTimeout {
		return nil, fmt.Errorf("%w: poll timeout %s out of range (0, %s]",
			core.ErrConfigInvalid, cfg.PollTimeout, MaxPollTimeout)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize < core.FrameLen {
		return nil, fmt.Errorf("%w: buffer size %d smaller than a frame", core.ErrConfigInvalid, cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		iface:       cfg.Interface,
		receiver:    cfg.Receiver,
		filter:      cfg.Filter,
		queue:       cfg.Queue,
		connect:     cfg.Connect,
		pollTimeout: cfg.PollTimeout,
		bufferSize:  cfg.BufferSize,
		metrics:     NewMetrics(cfg.Interface),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	p.metrics.setState(StateIdle)
	return p, nil
}

// setState updates the state (not thread-safe, must hold mu lock).
func (p *Pipeline) setState(s State) {
	p.state = s
	p.metrics.setState(s)
	slog.Info("pipeline state changed", "interface", p.iface, "state", s)
}

// Start transitions Idle → Running and spawns the worker.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("%w: start in state %s", core.ErrPipelineLifecycle, p.state)
	}
	slog.Info("pipeline starting",
		"interface", p.iface,
		"poll_timeout", p.pollTimeout,
		"filter", p.filter.String(),
		"notify", p.connect != nil,
	)
	p.setState(StateRunning)

	go p.run()
	return nil
}

// Stop requests shutdown. It does not wait for the worker; use Wait or Close.
// Stop before Start is a no-op and leaves the pipeline startable.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return
	}
	p.stopping.Store(true)
	p.cancel()
	p.setState(StateShuttingDown)
}

// Wait blocks until the worker has exited. It returns immediately for a
// pipeline that was never started.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	idle := p.state == StateIdle
	p.mu.Unlock()
	if idle {
		return
	}
	<-p.done
}

// Close stops the pipeline, joins the worker and returns its terminal error.
// Closing a never-started pipeline moves it straight to Stopped.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.state == StateIdle {
		p.setState(StateStopped)
		p.cancel()
		close(p.done)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.Stop()
	p.Wait()
	return p.Err()
}

// Done is closed once the pipeline reaches Stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that terminated the worker, or nil after a clean stop.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}

func (p *Pipeline) run() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.finish(fmt.Errorf("%w: capture worker panic: %v", core.ErrPipelineLifecycle, r))
		}
	}()

	p.finish(p.loop())
}

// loop is the worker body. Errors are returned to run and never retried.
func (p *Pipeline) loop() error {
	var notifier Notifier
	if p.connect != nil {
		n, err := p.connect(p.ctx)
		if err != nil {
			return fmt.Errorf("connect notifier: %w", err)
		}
		notifier = n
		defer func() {
			if err := notifier.Close(); err != nil {
				slog.Debug("notifier close failed", "interface", p.iface, "error", err)
			}
		}()
	}

	buf := make([]byte, p.bufferSize)
	for !p.stopping.Load() {
		ready, err := p.receiver.Wait(p.pollTimeout)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		if !ready {
			continue
		}

		n, err := p.receiver.Receive(buf)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		p.metrics.incReceived()

		frame, err := core.FrameFromBytes(buf[:n])
		if err != nil {
			p.metrics.incShort()
			slog.Debug("frame discarded", "interface", p.iface, "len", n, "reason", "short")
			continue
		}
		if !p.filter.Apply(&frame) {
			p.metrics.incFiltered()
			continue
		}

		item, depth := p.queue.Push(frame, time.Now())
		p.metrics.incQueued(depth)
		slog.Debug("frame queued",
			"interface", p.iface,
			"seq", item.Seq,
			"opcode", frame.Opcode(),
			"sender_ip", frame.SenderIP().String(),
			"target_ip", frame.TargetIP().String(),
			"depth", depth,
		)

		if notifier != nil {
			err := notifier.Notify(depth)
			p.metrics.incNotified(err)
			if err != nil {
				return fmt.Errorf("notify: %w", err)
			}
		}
	}
	return nil
}

// finish records the terminal error and moves to Stopped.
func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil && p.stopping.Load() && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		slog.Error("capture pipeline failed", "interface", p.iface, "error", err)
	}
	p.err = err
	p.setState(StateStopped)
	p.cancel()
	slog.Info("pipeline stopped", "interface", p.iface, "stats", p.metrics.Snapshot())
}
