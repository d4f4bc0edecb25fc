// Package fuzzer ties the frame under construction, the link socket, the capture
// queue and the capture pipeline together behind one control surface.
package fuzzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/filter"
	"firestige.xyz/arpfuzzer/internal/metrics"
	"firestige.xyz/arpfuzzer/internal/notify"
	"firestige.xyz/arpfuzzer/internal/pipeline"
	"firestige.xyz/arpfuzzer/internal/queue"
)

// Link is a bound link-layer socket.
type Link interface {
	pipeline.Receiver
	Send(f *core.Frame) (int, error)
	Close() error
}

// Config contains fuzzer configuration.
type Config struct {
	Interface   string
	Link        Link
	Frame       core.Frame
	Filter      *filter.Engine
	Notify      *notify.Config // nil disables queue-depth notifications
	PollTimeout time.Duration
}

// Fuzzer is safe for concurrent use.
type Fuzzer struct {
	iface       string
	link        Link
	notify      *notify.Config
	pollTimeout time.Duration
	queue       *queue.Queue

	// mu guards the frame under construction. It is never held across I/O.
	mu    sync.Mutex
	frame core.Frame

	// capMu guards the capture pipeline and its filter.
	capMu    sync.Mutex
	filter   *filter.Engine
	pipeline *pipeline.Pipeline

	sent       prometheus.Counter
	sendErrors prometheus.Counter
	depth      prometheus.Gauge
}

// New creates a fuzzer. Capture is not started.
func New(cfg Config) (*Fuzzer, error) {
	if cfg.Link == nil {
		return nil, fmt.Errorf("%w: fuzzer requires a link", core.ErrConfigInvalid)
	}
	return &Fuzzer{
		iface:       cfg.Interface,
		link:        cfg.Link,
		notify:      cfg.Notify,
		pollTimeout: cfg.PollTimeout,
		queue:       queue.New(),
		frame:       cfg.Frame,
		filter:      cfg.Filter,
		sent:        metrics.FramesSentTotal.WithLabelValues(cfg.Interface),
		sendErrors:  metrics.SendErrorsTotal.WithLabelValues(cfg.Interface),
		depth:       metrics.QueueDepth.WithLabelValues(cfg.Interface),
	}, nil
}

// Interface returns the interface name.
func (f *Fuzzer) Interface() string {
	return f.iface
}

// Set writes one field of the frame under construction.
func (f *Fuzzer) Set(field core.Field, v core.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.frame.Set(field, v); err != nil {
		return err
	}
	slog.Debug("frame field set", "field", field.String(), "value", v.String())
	return nil
}

// AllDestMAC names the pseudo-field that sets both destination hardware addresses.
const AllDestMAC = "all-dst-mac"

// SetByName parses name and raw and writes the field. AllDestMAC (also
// allDstMAC or all_dst_mac) goes through SetAllDestMAC.
func (f *Fuzzer) SetByName(name string, raw any) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case AllDestMAC, "alldstmac", "all_dst_mac":
		v, err := core.ParseValue(core.KindMAC, raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", AllDestMAC, err)
		}
		f.SetAllDestMAC(v.MAC())
		return nil
	}

	field, err := core.ParseField(name)
	if err != nil {
		return err
	}
	v, err := core.ParseValue(field.Kind(), raw)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	return f.Set(field, v)
}

// SetAllDestMAC sets both the link header destination and the ARP target hardware address.
func (f *Fuzzer) SetAllDestMAC(mac core.HardwareAddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame.SetHdrDstMAC(mac)
	f.frame.SetTargetMAC(mac)
	slog.Debug("destination addresses set", "mac", mac.String())
}

// Get reads one field of the frame under construction.
func (f *Fuzzer) Get(field core.Field) core.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame.Get(field)
}

// Frame returns a copy of the frame under construction.
func (f *Fuzzer) Frame() core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

// SetFrame replaces the frame under construction.
func (f *Fuzzer) SetFrame(frame core.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = frame
}

// Send transmits the current frame once.
func (f *Fuzzer) Send() (int, error) {
	frame := f.Frame()
	n, err := f.link.Send(&frame)
	if err != nil {
		f.sendErrors.Inc()
		return n, err
	}
	f.sent.Inc()
	slog.Debug("frame sent",
		"interface", f.iface,
		"opcode", frame.Opcode(),
		"target_ip", frame.TargetIP().String(),
	)
	return n, nil
}

// SendRepeat sends the current frame count times, pausing interval between sends.
// It returns the number of frames sent before the first error or cancellation.
func (f *Fuzzer) SendRepeat(ctx context.Context, count int, interval time.Duration) (int, error) {
	sent := 0
	for i := 0; i < count; i++ {
		if i > 0 && interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return sent, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		if _, err := f.Send(); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// SetFilter replaces the capture filter. It fails while capture is running.
func (f *Fuzzer) SetFilter(e *filter.Engine) error {
	f.capMu.Lock()
	defer f.capMu.Unlock()
	if f.pipeline != nil && f.pipeline.State() != pipeline.StateStopped {
		return fmt.Errorf("%w: filter change while capture is %s", core.ErrPipelineLifecycle, f.pipeline.State())
	}
	f.filter = e
	return nil
}

// Filter returns the capture filter.
func (f *Fuzzer) Filter() *filter.Engine {
	f.capMu.Lock()
	defer f.capMu.Unlock()
	return f.filter
}

// StartCapture starts a new capture pipeline. A stopped pipeline is replaced;
// a running one is an error.
func (f *Fuzzer) StartCapture() error {
	f.capMu.Lock()
	defer f.capMu.Unlock()

	if f.pipeline != nil && f.pipeline.State() != pipeline.StateStopped {
		return fmt.Errorf("%w: capture already %s", core.ErrPipelineLifecycle, f.pipeline.State())
	}

	b := pipeline.NewBuilder().
		WithInterface(f.iface).
		WithReceiver(f.link).
		WithFilter(f.filter).
		WithQueue(f.queue)
	if f.pollTimeout > 0 {
		b.WithPollTimeout(f.pollTimeout)
	}
	if f.notify != nil {
		b.WithNotify(*f.notify)
	}
	p, err := b.Build()
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	f.pipeline = p
	return nil
}

// StopCapture stops the pipeline and waits for the worker to exit.
// It returns the error that terminated the worker, if any.
func (f *Fuzzer) StopCapture() error {
	f.capMu.Lock()
	p := f.pipeline
	f.capMu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

// CaptureStatus describes the capture pipeline.
type CaptureStatus struct {
	State  string         `json:"state"`
	Error  string         `json:"error,omitempty"`
	Filter string         `json:"filter"`
	Queue  int            `json:"queue"`
	Stats  pipeline.Stats `json:"stats"`
}

// CaptureStatus returns the pipeline state, its terminal error and counters.
func (f *Fuzzer) CaptureStatus() CaptureStatus {
	f.capMu.Lock()
	p := f.pipeline
	st := CaptureStatus{
		State:  pipeline.StateIdle.String(),
		Filter: f.filter.String(),
		Queue:  f.queue.Size(),
	}
	f.capMu.Unlock()

	if p != nil {
		st.State = p.State().String()
		st.Stats = p.Stats()
		if err := p.Err(); err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

// CaptureDone returns a channel closed when the current pipeline stops,
// or nil when capture was never started.
func (f *Fuzzer) CaptureDone() <-chan struct{} {
	f.capMu.Lock()
	defer f.capMu.Unlock()
	if f.pipeline == nil {
		return nil
	}
	return f.pipeline.Done()
}

// Pop removes the oldest captured frame, or returns core.ErrQueueEmpty.
func (f *Fuzzer) Pop() (core.CapturedFrame, error) {
	item, err := f.queue.Pop()
	if err == nil {
		f.depth.Set(float64(f.queue.Size()))
	}
	return item, err
}

// Available returns the number of captured frames waiting to be popped.
func (f *Fuzzer) Available() int {
	return f.queue.Size()
}

// Close stops capture, discards unconsumed frames and closes the link.
func (f *Fuzzer) Close() error {
	if err := f.StopCapture(); err != nil {
		slog.Warn("capture ended with error", "interface", f.iface, "error", err)
	}
	if n := f.queue.Discard(); n > 0 {
		slog.Info("discarded unconsumed frames", "interface", f.iface, "count", n)
	}
	f.depth.Set(0)
	return f.link.Close()
}
