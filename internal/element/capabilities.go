package element

import "github.com/r3e-network/pool-orchestrator/internal/elementid"

// MoveTargets maps a controller id to the per-axis targets calc_move
// produced for that controller.
type MoveTargets map[elementid.ID]map[elementid.ID]float64

// Moveable is the capability the Scheduler depends on exclusively:
// anything that can decompose into physical motor targets.
type Moveable interface {
	// CalcMove expands src (the arity-matched target vector for this
	// element) into per-controller, per-motor physical targets.
	CalcMove(src []float64) (MoveTargets, error)

	// Size is the arity of this Moveable's position vector (1 for a
	// motor or pseudo-motor, len(members) for a group).
	Size() int

	// RegisterMovingThread/ClearMovingThread track the thread id driving
	// this Moveable's current motion so concurrent state reads return
	// accurate per-thread progress.
	RegisterMovingThread(threadID uint64)
	ClearMovingThread()
	MovingThread() (uint64, bool)
}

// HasExtraAttributes is implemented by elements whose controller exposes
// per-axis configurable knobs.
type HasExtraAttributes interface {
	ExtraAttribute(name string) (any, bool)
	SetExtraAttribute(name string, value any)
}

// Readable is the generic value-producing capability: CounterTimer and
// ZeroD read a float64, OneD a []float64, TwoD a [][]float64, IORegister
// an int64.
type Readable[T any] interface {
	ReadOne() (T, error)
}
