// Package follow tails a local log file and submits new lines as agent-file
// batches, one history entry per batch.
package follow

import (
	"context"
	"errors"
	"strings"

	"github.com/oicur0t/forwardog/internal/config"
	"github.com/oicur0t/forwardog/internal/dispatch"
	"github.com/oicur0t/forwardog/internal/monitoring"
	"github.com/oicur0t/forwardog/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Submitter runs one submission
type Submitter interface {
	Submit(ctx context.Context, kind models.Kind, state models.EditableState) models.SubmissionResult
}

// DispatchSender turns batches into agent-file submissions
type DispatchSender struct {
	submitter Submitter
	service   string
	source    string
	committer func(offset int64)
	logger    *zap.Logger
}

// SendBatch submits the batch and commits its offset. Failed submissions are
// recorded in history like any other attempt and are not retried.
func (s *DispatchSender) SendBatch(ctx context.Context, batch Batch) error {
	monitoring.FollowBatchSize.Observe(float64(len(batch.Lines)))

	result := s.submitter.Submit(ctx, models.KindAgentFile, models.AgentFileState{
		Text:    strings.Join(batch.Lines, "\n"),
		Service: s.service,
		Source:  s.source,
	})
	if !result.Success && result.Message == dispatch.ErrBusy.Error() {
		return dispatch.ErrBusy
	}
	if !result.Success {
		s.logger.Warn("Batch submission failed",
			zap.Int("size", len(batch.Lines)),
			zap.String("message", result.Message))
	}

	if batch.Offset > 0 && s.committer != nil {
		s.committer(batch.Offset)
	}
	return nil
}

// Follower wires a Watcher to a Batcher
type Follower struct {
	watcher *Watcher
	batcher *Batcher
	logger  *zap.Logger
}

// New creates a follower for path
func New(path string, cfg config.FollowConfig, fromStart bool, submitter Submitter, logger *zap.Logger) *Follower {
	sender := &DispatchSender{
		submitter: submitter,
		service:   cfg.Service,
		source:    cfg.Source,
		logger:    logger,
	}
	batcher := NewBatcher(cfg.MaxLines, cfg.MaxWait, cfg.QueueSize, logger, sender)
	watcher := NewWatcher(path, cfg.StateFile, fromStart, logger, batcher.Lines())
	sender.committer = watcher.Commit

	return &Follower{
		watcher: watcher,
		batcher: batcher,
		logger:  logger,
	}
}

// Run follows the file until ctx is cancelled
func (f *Follower) Run(ctx context.Context) error {
	// The watcher gets its own context so its final state save runs after
	// the batcher's last flush has committed
	watchCtx, stopWatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWatch()

	var watchErr error
	watchDone := make(chan struct{})
	go func() {
		watchErr = f.watcher.Run(watchCtx)
		close(watchDone)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.batcher.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-watchDone:
			if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
				return watchErr
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	stopWatch()
	<-watchDone

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
