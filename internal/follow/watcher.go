package follow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nxadm/tail"
	"go.uber.org/zap"
)

// Line is one line read from the followed file. Offset is the file position
// just after it.
type Line struct {
	Text   string
	Offset int64
}

// FileState is the persisted read position of a followed file
type FileState struct {
	Offset   int64     `json:"offset"`
	LastRead time.Time `json:"last_read"`
}

// Watcher tails one file and sends its lines to a channel. Offsets are only
// persisted once Commit confirms the lines were submitted.
type Watcher struct {
	path          string
	stateFile     string
	fromStart     bool
	saveInterval  time.Duration
	logger        *zap.Logger
	lineChan      chan<- Line
	sendTimeout   time.Duration
	pollForChange bool

	stateMu sync.RWMutex
	state   map[string]*FileState
}

// NewWatcher creates a watcher for path. Without saved state it starts at the
// end of the file, or at the beginning when fromStart is set.
func NewWatcher(path, stateFile string, fromStart bool, logger *zap.Logger, lineChan chan<- Line) *Watcher {
	return &Watcher{
		path:          path,
		stateFile:     stateFile,
		fromStart:     fromStart,
		saveInterval:  10 * time.Second,
		logger:        logger,
		lineChan:      lineChan,
		sendTimeout:   5 * time.Second,
		pollForChange: true,
		state:         make(map[string]*FileState),
	}
}

// Run tails the file until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	// Load previous state
	if err := w.loadState(); err != nil {
		w.logger.Warn("Failed to load follow state, starting fresh", zap.Error(err))
	}

	saverCtx, stopSaver := context.WithCancel(ctx)
	defer stopSaver()
	go w.stateSaver(saverCtx)

	err := w.tailFile(ctx)

	// Save state one last time before exiting
	if saveErr := w.saveState(); saveErr != nil {
		w.logger.Error("Failed to save final follow state", zap.Error(saveErr))
	}
	return err
}

// Commit records that everything up to offset has been submitted
func (w *Watcher) Commit(offset int64) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	if cur, ok := w.state[w.path]; ok && cur.Offset >= offset {
		return
	}
	w.state[w.path] = &FileState{Offset: offset, LastRead: time.Now().UTC()}
}

// Offset returns the last committed offset
func (w *Watcher) Offset() (int64, bool) {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	s, ok := w.state[w.path]
	if !ok {
		return 0, false
	}
	return s.Offset, true
}

func (w *Watcher) tailFile(ctx context.Context) error {
	config := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      w.pollForChange,
		Logger:    tail.DiscardingLogger,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	}
	if w.fromStart {
		config.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}

	// If we have previous state, seek to that position
	if offset, ok := w.Offset(); ok {
		config.Location = &tail.SeekInfo{Offset: offset, Whence: io.SeekStart}
		w.logger.Info("Resuming from saved position",
			zap.String("file", w.path),
			zap.Int64("offset", offset))
	}

	w.logger.Info("Following file", zap.String("file", w.path))

	t, err := tail.TailFile(w.path, config)
	if err != nil {
		return fmt.Errorf("failed to tail file %s: %w", w.path, err)
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping follow", zap.String("file", w.path))
			return ctx.Err()

		case line, ok := <-t.Lines:
			if !ok {
				return errors.New("tail channel closed")
			}
			if line.Err != nil {
				w.logger.Error("Error reading line", zap.String("file", w.path), zap.Error(line.Err))
				continue
			}

			// SeekInfo is the reader position right after this line
			offset := line.SeekInfo.Offset

			text := strings.TrimRight(line.Text, "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}

			select {
			case w.lineChan <- Line{Text: text, Offset: offset}:
			case <-time.After(w.sendTimeout):
				w.logger.Warn("Timeout queueing line, dropping it",
					zap.String("file", w.path),
					zap.Int64("offset", offset))
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// stateSaver periodically saves state to disk
func (w *Watcher) stateSaver(ctx context.Context) {
	ticker := time.NewTicker(w.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.saveState(); err != nil {
				w.logger.Error("Failed to save follow state", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) saveState() error {
	if w.stateFile == "" {
		return nil
	}

	w.stateMu.RLock()
	data, err := json.MarshalIndent(w.state, "", "  ")
	w.stateMu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.stateFile), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(w.stateFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	w.logger.Debug("Follow state saved", zap.String("state_file", w.stateFile))
	return nil
}

func (w *Watcher) loadState() error {
	if w.stateFile == "" {
		return nil
	}

	data, err := os.ReadFile(w.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if err := json.Unmarshal(data, &w.state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	w.logger.Info("Follow state loaded", zap.String("state_file", w.stateFile), zap.Int("files", len(w.state)))
	return nil
}
