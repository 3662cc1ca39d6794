package pipeline

import (
	"context"
	"sync"

	"github.com/projectopenrap/buildimage/src/buildimage/target"
)

// HookFunc is a board- or platform-specific step
type HookFunc func(ctx context.Context, bc *BuildContext) error

// BoardHooks are the capabilities a board contributes. Nil hooks are no-ops.
type BoardHooks struct {
	Prepare HookFunc
	Config  HookFunc
	Build   HookFunc
}

var (
	boardsMu sync.RWMutex
	boards   = map[target.BoardKind]BoardHooks{
		target.BoardRPi: {},
		target.BoardOPi: {},
	}
)

// RegisterBoardHooks sets the hooks for a board, replacing any previous entry
func RegisterBoardHooks(board target.BoardKind, hooks BoardHooks) {
	boardsMu.Lock()
	defer boardsMu.Unlock()
	boards[board] = hooks
}

// boardHooks returns the hooks registered for board; unknown boards get none
func boardHooks(board target.BoardKind) BoardHooks {
	boardsMu.RLock()
	defer boardsMu.RUnlock()
	return boards[board]
}

func (h HookFunc) run(ctx context.Context, bc *BuildContext) error {
	if h == nil {
		return nil
	}
	return h(ctx, bc)
}

// Platform stages delegate unchanged to the board of the target

func platformPrepare(ctx context.Context, bc *BuildContext) error {
	return boardHooks(bc.Target.Board).Prepare.run(ctx, bc)
}

func platformConfig(ctx context.Context, bc *BuildContext) error {
	return boardHooks(bc.Target.Board).Config.run(ctx, bc)
}

func platformBuild(ctx context.Context, bc *BuildContext) error {
	return boardHooks(bc.Target.Board).Build.run(ctx, bc)
}
