// Package pipeline implements pipeline construction.
package pipeline

import (
	"context"
	"time"

	"firestige.xyz/arpfuzzer/internal/filter"
	"firestige.xyz/arpfuzzer/internal/notify"
	"firestige.xyz/arpfuzzer/internal/queue"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			PollTimeout: DefaultPollTimeout,
			BufferSize:  DefaultBufferSize,
		},
	}
}

// WithInterface sets the interface label used in logs and metrics.
func (b *Builder) WithInterface(name string) *Builder {
	b.config.Interface = name
	return b
}

// WithReceiver sets the frame source.
func (b *Builder) WithReceiver(r Receiver) *Builder {
	b.config.Receiver = r
	return b
}

// WithFilter sets the filter engine.
func (b *Builder) WithFilter(e *filter.Engine) *Builder {
	b.config.Filter = e
	return b
}

// WithQueue sets the capture queue.
func (b *Builder) WithQueue(q *queue.Queue) *Builder {
	b.config.Queue = q
	return b
}

// WithPollTimeout sets the bounded wait per worker iteration.
func (b *Builder) WithPollTimeout(d time.Duration) *Builder {
	b.config.PollTimeout = d
	return b
}

// WithNotify publishes queue depths over a Unix socket notification channel.
func (b *Builder) WithNotify(cfg notify.Config) *Builder {
	b.config.Connect = func(ctx context.Context) (Notifier, error) {
		ch, err := notify.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}
