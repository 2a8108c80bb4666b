package follow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Batch is a run of consecutive lines. Offset is the file position after the
// last line.
type Batch struct {
	Lines  []string
	Offset int64
}

// BatchSender submits one batch
type BatchSender interface {
	SendBatch(ctx context.Context, batch Batch) error
}

// Batcher accumulates lines and flushes them when maxLines is reached or
// maxWait elapses
type Batcher struct {
	maxLines     int
	maxWait      time.Duration
	flushTimeout time.Duration
	logger       *zap.Logger
	sender       BatchSender

	lineChan chan Line
	pending  []string
	offset   int64
}

// NewBatcher creates a batcher with a queue of queueSize lines
func NewBatcher(maxLines int, maxWait time.Duration, queueSize int, logger *zap.Logger, sender BatchSender) *Batcher {
	if maxLines <= 0 {
		maxLines = 1
	}
	if queueSize <= 0 {
		queueSize = maxLines
	}
	return &Batcher{
		maxLines:     maxLines,
		maxWait:      maxWait,
		flushTimeout: 30 * time.Second,
		logger:       logger,
		sender:       sender,
		lineChan:     make(chan Line, queueSize),
		pending:      make([]string, 0, maxLines),
	}
}

// Lines returns the channel the watcher writes to
func (b *Batcher) Lines() chan<- Line {
	return b.lineChan
}

// Run batches lines until ctx is done, then flushes what is left
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.maxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain()
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.flushTimeout)
			b.flush(flushCtx)
			cancel()
			return ctx.Err()

		case line := <-b.lineChan:
			b.add(line)
			if len(b.pending) >= b.maxLines {
				b.flush(ctx)
				ticker.Reset(b.maxWait)
			}

		case <-ticker.C:
			// Time threshold reached
			b.flush(ctx)
		}
	}
}

func (b *Batcher) add(line Line) {
	b.pending = append(b.pending, line.Text)
	if line.Offset > b.offset {
		b.offset = line.Offset
	}
}

// drain moves queued lines into the pending batch without blocking
func (b *Batcher) drain() {
	for {
		select {
		case line := <-b.lineChan:
			b.add(line)
		default:
			return
		}
	}
}

func (b *Batcher) flush(ctx context.Context) {
	for len(b.pending) > 0 {
		n := len(b.pending)
		if n > b.maxLines {
			n = b.maxLines
		}
		batch := Batch{Lines: make([]string, n)}
		copy(batch.Lines, b.pending[:n])
		b.pending = b.pending[n:]
		if len(b.pending) == 0 {
			batch.Offset = b.offset
			b.pending = make([]string, 0, b.maxLines)
		}

		b.logger.Debug("Flushing batch", zap.Int("size", len(batch.Lines)))

		if err := b.sender.SendBatch(ctx, batch); err != nil {
			b.logger.Error("Failed to send batch",
				zap.Error(err),
				zap.Int("size", len(batch.Lines)))
		}
	}
}
