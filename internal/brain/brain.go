// Package brain turns vision results into at most one action per cycle.
//
// A Brain keeps a bounded variable store seeded from found results, a rule
// set arbitrated by priority, and the game state machine. Process runs one
// decision cycle against a segment and raises result-ready when done.
package brain

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/rashplayer/internal/logging"
	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
)

var (
	ErrNoRules      = errors.New("no rules")
	ErrRuleCapacity = errors.New("too many rules")
	ErrInvalidState = errors.New("invalid game state")
	ErrInvalidAlias = errors.New("invalid alias")
	ErrNilSegment   = errors.New("nil segment")
)

// Action defaults applied to every chosen rule.
const (
	DefaultDurationMs = 50
	DefaultRandomize  = 0.3
)

// priorityFloor is the best priority before any rule has won. Rules at or
// below it never fire.
const priorityFloor int32 = -1

type rule struct {
	types.Rule
	cond Condition
}

// Outcome describes one Process cycle.
type Outcome struct {
	Action    types.ActionCommand
	Committed bool // action was written to the segment
	Found     bool // at least one found result
	Previous  types.GameState
	State     types.GameState
	Latency   time.Duration
}

type Brain struct {
	mu        sync.Mutex
	rules     []rule
	vars      *Variables
	state     types.GameState
	aliases   map[uint32][]string
	overflows uint64
	logger    *slog.Logger
}

// New returns an idle brain with no rules. A nil logger discards output.
func New(logger *slog.Logger) *Brain {
	return &Brain{
		vars:   NewVariables(types.MaxVariables),
		state:  types.StateIdle,
		logger: logging.OrDiscard(logger),
	}
}

// LoadRules replaces the active rule set. Conditions are tokenized here,
// once. On failure the previous set stays active.
func (b *Brain) LoadRules(rules []types.Rule) error {
	if len(rules) == 0 {
		return ErrNoRules
	}
	if len(rules) > types.MaxRules {
		return fmt.Errorf("%w: %d rules, limit %d", ErrRuleCapacity, len(rules), types.MaxRules)
	}
	compiled := make([]rule, len(rules))
	for i, r := range rules {
		compiled[i] = rule{Rule: r, cond: Compile(r.Condition)}
	}

	b.mu.Lock()
	b.rules = compiled
	b.mu.Unlock()
	b.logger.Info("rules loaded", "count", len(rules))
	return nil
}

// Bind installs profile aliases: a found result for id also sets
// "<name>_x" and "<name>_y". Binding replaces any previous aliases.
func (b *Brain) Bind(aliases map[string]uint32) error {
	byID := make(map[uint32][]string, len(aliases))
	for name, id := range aliases {
		if name == "" || !validIdent(name) {
			return fmt.Errorf("%w: %q", ErrInvalidAlias, name)
		}
		byID[id] = append(byID[id], name)
	}
	for _, names := range byID {
		slices.Sort(names)
	}

	b.mu.Lock()
	b.aliases = byID
	b.mu.Unlock()
	return nil
}

func validIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(isAlpha(c) || c == '_' || (i > 0 && isDigit(c))) {
			return false
		}
	}
	return true
}

func (b *Brain) SetState(st types.GameState) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidState, uint32(st))
	}
	b.mu.Lock()
	prev := b.state
	b.state = st
	b.mu.Unlock()
	if prev != st {
		b.logger.Info("state set", "from", prev.String(), "to", st.String())
	}
	return nil
}

func (b *Brain) State() types.GameState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Variable returns the current value of name, zero when unset.
func (b *Brain) Variable(name string) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vars.Get(name)
}

// SetVariable writes a game-logic variable directly.
func (b *Brain) SetVariable(name string, value int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vars.Set(name, value)
}

// Variables returns a snapshot of the store.
func (b *Brain) Variables() map[string]int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int32, b.vars.Len())
	b.vars.Each(func(n string, v int32) { out[n] = v })
	return out
}

// Overflows counts variable writes dropped because the store was full.
func (b *Brain) Overflows() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflows
}

// Evaluate seeds variables from the found results and returns the action of
// the winning rule, or a none action. With no results at all the rules are
// not consulted.
//
// Rules are scanned in order; a rule replaces the current winner only when
// its priority is strictly greater and its condition holds. The scan starts
// from a best priority of -1, so negative-priority rules never win. Among equal
// priorities the first registered true rule wins and later ones are never
// tested.
func (b *Brain) Evaluate(results []types.VisionResult) types.ActionCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evaluate(results)
}

func (b *Brain) evaluate(results []types.VisionResult) types.ActionCommand {
	if len(results) == 0 {
		return types.ActionCommand{}
	}
	for _, r := range results {
		if r.Found {
			b.seed(r)
		}
	}

	var best *rule
	bestPriority := priorityFloor
	for i := range b.rules {
		r := &b.rules[i]
		if r.Priority <= bestPriority {
			continue
		}
		if r.cond.Eval(b.vars) {
			best, bestPriority = r, r.Priority
		}
	}
	if best == nil {
		return types.ActionCommand{}
	}

	cmd := types.ActionCommand{
		Kind:       best.Action,
		Start:      best.Target,
		End:        best.End,
		DurationMs: best.DurationMs,
		HoldMs:     best.HoldMs,
		Randomize:  DefaultRandomize,
	}
	if cmd.DurationMs <= 0 {
		cmd.DurationMs = DefaultDurationMs
	}
	return cmd
}

func (b *Brain) seed(r types.VisionResult) {
	prefix := "trigger_" + strconv.FormatUint(uint64(r.TriggerID), 10)
	b.set(prefix+"_x", r.Location.X)
	b.set(prefix+"_y", r.Location.Y)
	b.set(prefix+"_found", 1)
	for _, name := range b.aliases[r.TriggerID] {
		b.set(name+"_x", r.Location.X)
		b.set(name+"_y", r.Location.Y)
	}
}

func (b *Brain) set(name string, v int32) {
	if err := b.vars.Set(name, v); err != nil {
		if b.overflows == 0 {
			b.logger.Warn("variable store full, dropping writes", "name", name, "limit", types.MaxVariables)
		}
		b.overflows++
	}
}

// Process runs one decision cycle over seg: evaluate the published results,
// step the state machine, and commit the action only when the new state is
// action-pending. State, brain latency and total latency are written on
// every cycle, then result-ready is raised.
func (b *Brain) Process(seg *segment.Segment) (Outcome, error) {
	if seg == nil {
		return Outcome{}, ErrNilSegment
	}
	start := time.Now()
	results := seg.Results()

	found := false
	for _, r := range results {
		if r.Found {
			found = true
			break
		}
	}

	b.mu.Lock()
	action := b.evaluate(results)
	pending := action.Kind != types.ActionNone
	prev := b.state
	b.state = Transition(prev, found, pending)
	out := Outcome{
		Action:    action,
		Committed: pending && b.state == types.StateActionPending,
		Found:     found,
		Previous:  prev,
		State:     b.state,
	}
	b.mu.Unlock()

	if out.Committed {
		seg.SetPendingAction(action)
	}
	seg.SetState(out.State)
	out.Latency = time.Since(start)
	seg.SetBrainLatency(out.Latency)
	seg.SetResultReady(true)

	if prev != out.State {
		b.logger.Debug("state transition", "from", prev.String(), "to", out.State.String(),
			"action", action.Kind.String(), "committed", out.Committed)
	}
	return out, nil
}
