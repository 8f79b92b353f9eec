package collab

import (
	"context"
	"sync"
	"time"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/logging"
	"github.com/codecoalition/collabd/internal/infrastructure/metrics"
)

// WorkspaceKeeper holds the latest synced tree per room and mirrors it to
// durable storage on a debounced schedule. Persistence is advisory: failures
// are logged and swallowed, and nothing on the relay path ever waits for it.
type WorkspaceKeeper struct {
	snapshots domain.SnapshotRepository
	logger    logging.Logger
	metrics   *metrics.Collectors
	flushWait time.Duration

	mu     sync.Mutex
	trees  map[string]*domain.WorkspaceNode
	timers map[string]*time.Timer
}

func NewWorkspaceKeeper(snapshots domain.SnapshotRepository, logger logging.Logger, collectors *metrics.Collectors, flushWait time.Duration) *WorkspaceKeeper {
	if flushWait <= 0 {
		flushWait = 200 * time.Millisecond
	}

	return &WorkspaceKeeper{
		snapshots: snapshots,
		logger:    logger,
		metrics:   collectors,
		flushWait: flushWait,
		trees:     make(map[string]*domain.WorkspaceNode),
		timers:    make(map[string]*time.Timer),
	}
}

// HandleSync records the room's latest tree and schedules a debounced flush.
func (k *WorkspaceKeeper) HandleSync(roomID string, tree *domain.WorkspaceNode) {
	if tree == nil {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.trees[roomID] = tree

	if k.snapshots == nil {
		return
	}

	if timer, ok := k.timers[roomID]; ok {
		timer.Stop()
	}
	k.timers[roomID] = time.AfterFunc(k.flushWait, func() {
		k.flush(roomID)
	})
}

// DropRoom flushes any still-buffered tree and forgets the room. Called when
// the last member leaves.
func (k *WorkspaceKeeper) DropRoom(roomID string) {
	k.mu.Lock()
	tree := k.trees[roomID]
	delete(k.trees, roomID)
	if timer, ok := k.timers[roomID]; ok {
		timer.Stop()
		delete(k.timers, roomID)
	}
	k.mu.Unlock()

	if tree != nil && k.snapshots != nil {
		go k.persist(roomID, tree)
	}
}

// Tree returns the last synced tree for a room, if any.
func (k *WorkspaceKeeper) Tree(roomID string) *domain.WorkspaceNode {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.trees[roomID]
}

func (k *WorkspaceKeeper) flush(roomID string) {
	k.mu.Lock()
	tree := k.trees[roomID]
	delete(k.timers, roomID)
	k.mu.Unlock()

	if tree == nil {
		return
	}
	k.persist(roomID, tree)
}

func (k *WorkspaceKeeper) persist(roomID string, tree *domain.WorkspaceNode) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := k.snapshots.Save(ctx, roomID, tree); err != nil {
		if k.metrics != nil {
			k.metrics.SnapshotWrites.WithLabelValues("error").Inc()
		}
		k.logger.Error(logging.Workspace, logging.SnapshotPersist, "failed to persist workspace snapshot",
			map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		return
	}

	if k.metrics != nil {
		k.metrics.SnapshotWrites.WithLabelValues("ok").Inc()
	}
}
