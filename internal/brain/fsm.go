package brain

import "github.com/andresmejia3/rashplayer/internal/types"

// Transition is the state machine step. Inputs are whether any vision result
// was found this cycle and whether arbitration produced a non-none action.
// Paused and error are absorbing; only SetState leaves them.
func Transition(cur types.GameState, found, actionPending bool) types.GameState {
	switch cur {
	case types.StateIdle:
		if found {
			return types.StateDetecting
		}
	case types.StateDetecting:
		if actionPending {
			return types.StateActionPending
		}
		if !found {
			return types.StateIdle
		}
	case types.StateActionPending:
		return types.StateExecuting
	case types.StateExecuting:
		return types.StateDetecting
	}
	return cur
}
