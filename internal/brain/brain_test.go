package brain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/rashplayer/internal/segment"
	"github.com/andresmejia3/rashplayer/internal/types"
)

func vars(kv map[string]int32) *Variables {
	v := NewVariables(types.MaxVariables)
	for k, val := range kv {
		v.Set(k, val)
	}
	return v
}

func TestConditionEval(t *testing.T) {
	tests := []struct {
		expr string
		vars map[string]int32
		want bool
	}{
		{"bird_y > gap_center_y + 20", map[string]int32{"bird_y": 150, "gap_center_y": 100}, true},
		{"bird_y > gap_center_y + 20", map[string]int32{"bird_y": 100, "gap_center_y": 100}, false},
		{"10 - 3 - 2 == 9", nil, true},
		{"10 - 3 - 2 == 5", nil, false},
		{"x", map[string]int32{"x": 3}, true},
		{"x", nil, false},
		{"unknown == 0", nil, true},
		{"a >= 2 && b <= 1", map[string]int32{"a": 2, "b": 1}, true},
		{"a >= 2 && b <= 1", map[string]int32{"a": 2, "b": 2}, false},
		{"a == 1 || b == 1", map[string]int32{"b": 1}, true},
		{"a != 1", nil, true},
		{"a < -5", map[string]int32{"a": -6}, true},
		{"flag && other", map[string]int32{"flag": 1, "other": 1}, true},
		{"flag && other", map[string]int32{"flag": 1}, false},
		{"", nil, false},
		{"x ? 1", map[string]int32{"x": 1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			if got := Compile(tc.expr).Eval(vars(tc.vars)); got != tc.want {
				t.Errorf("Eval(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestRightToLeftArithmetic(t *testing.T) {
	e := evaluator{toks: tokenize("10 - 3 - 2"), vars: NewVariables(1)}
	if v := e.value(); v != 9 {
		t.Fatalf("10 - 3 - 2 = %d, want 9", v)
	}
}

func TestTokenize(t *testing.T) {
	toks := tokenize("a>=-3&&b_1 != 4")
	kinds := []tokenKind{tokVariable, tokGE, tokNumber, tokAnd, tokVariable, tokNE, tokNumber}
	if len(toks) != len(kinds) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(kinds), toks)
	}
	for i, k := range kinds {
		if toks[i].kind != k {
			t.Errorf("token %d kind = %d, want %d", i, toks[i].kind, k)
		}
	}
	if toks[2].num != -3 || toks[4].name != "b_1" {
		t.Errorf("token values = %+v", toks)
	}
}

func TestTokenizeLongIdentifier(t *testing.T) {
	long := strings.Repeat("x", 31) + "yz"
	toks := tokenize(long + " == 3")
	if len(toks) != 3 || toks[0].kind != tokVariable || toks[1].kind != tokEQ {
		t.Fatalf("tokens = %+v", toks)
	}
	if toks[0].name != strings.Repeat("x", 31) {
		t.Errorf("name = %q, want the first 31 bytes", toks[0].name)
	}
}

func TestVariableNames(t *testing.T) {
	v := NewVariables(2)
	long := strings.Repeat("a", 40)
	if err := v.Set(long, 7); err != nil {
		t.Fatal(err)
	}
	if got := v.Get(strings.Repeat("a", 31)); got != 7 {
		t.Errorf("truncated lookup = %d, want 7", got)
	}
	v.Set("b", 1)
	if err := v.Set("c", 1); !errors.Is(err, ErrVariableCapacity) {
		t.Errorf("expected ErrVariableCapacity, got %v", err)
	}
	if err := v.Set("b", 2); err != nil {
		t.Errorf("overwrite at capacity failed: %v", err)
	}
}

func TestLoadRules(t *testing.T) {
	b := New(nil)
	if err := b.LoadRules(nil); !errors.Is(err, ErrNoRules) {
		t.Errorf("empty: got %v", err)
	}
	if err := b.LoadRules(make([]types.Rule, types.MaxRules+1)); !errors.Is(err, ErrRuleCapacity) {
		t.Errorf("over capacity: got %v", err)
	}
	if err := b.LoadRules(make([]types.Rule, types.MaxRules)); err != nil {
		t.Errorf("at capacity: %v", err)
	}
}

func TestEvaluateTieBreak(t *testing.T) {
	b := New(nil)
	b.LoadRules([]types.Rule{
		{Condition: "1", Action: types.ActionTap, Target: types.Point{X: 1}, Priority: 5},
		{Condition: "1", Action: types.ActionSwipe, Target: types.Point{X: 2}, Priority: 5},
		{Condition: "0", Action: types.ActionDrag, Target: types.Point{X: 3}, Priority: 9},
		{Condition: "1", Action: types.ActionWait, Target: types.Point{X: 4}, Priority: 3},
	})
	a := b.Evaluate([]types.VisionResult{{TriggerID: 1}})
	if a.Kind != types.ActionTap || a.Start.X != 1 {
		t.Errorf("winner = %+v, want the first priority-5 tap", a)
	}
	if a.DurationMs != DefaultDurationMs || a.Randomize != DefaultRandomize {
		t.Errorf("defaults not applied: %+v", a)
	}
}

func TestEvaluateHigherPriorityLater(t *testing.T) {
	b := New(nil)
	b.LoadRules([]types.Rule{
		{Condition: "1", Action: types.ActionTap, Priority: 1},
		{Condition: "trigger_4_found", Action: types.ActionLongPress, Priority: 2, HoldMs: 300, DurationMs: 400},
	})
	a := b.Evaluate([]types.VisionResult{{TriggerID: 4, Found: true, Location: types.Point{X: 10, Y: 20}}})
	if a.Kind != types.ActionLongPress || a.HoldMs != 300 || a.DurationMs != 400 {
		t.Errorf("winner = %+v", a)
	}
	if b.Variable("trigger_4_x") != 10 || b.Variable("trigger_4_y") != 20 {
		t.Errorf("variables = %v", b.Variables())
	}
}

func TestEvaluateNegativePriorityNeverFires(t *testing.T) {
	tests := []struct {
		name  string
		rules []types.Rule
		want  types.ActionKind
	}{
		{"only negative", []types.Rule{{Condition: "1", Action: types.ActionTap, Priority: -5}}, types.ActionNone},
		{"at floor", []types.Rule{{Condition: "1", Action: types.ActionTap, Priority: -1}}, types.ActionNone},
		{"zero wins", []types.Rule{
			{Condition: "1", Action: types.ActionTap, Priority: -5},
			{Condition: "1", Action: types.ActionSwipe, Priority: 0},
		}, types.ActionSwipe},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := New(nil)
			if err := b.LoadRules(tc.rules); err != nil {
				t.Fatalf("load rules: %v", err)
			}
			a := b.Evaluate([]types.VisionResult{{TriggerID: 1, Found: true}})
			if a.Kind != tc.want {
				t.Errorf("action = %v, want %v", a.Kind, tc.want)
			}
		})
	}
}

func TestEvaluateNoResults(t *testing.T) {
	b := New(nil)
	b.LoadRules([]types.Rule{{Condition: "1", Action: types.ActionTap, Priority: 1}})
	if a := b.Evaluate(nil); a.Kind != types.ActionNone {
		t.Errorf("action with no results = %+v", a)
	}
}

func TestAliases(t *testing.T) {
	b := New(nil)
	if err := b.Bind(map[string]uint32{"bird": 1, "gap_center": 2}); err != nil {
		t.Fatal(err)
	}
	if err := b.Bind(map[string]uint32{"bad name": 1}); !errors.Is(err, ErrInvalidAlias) {
		t.Errorf("expected ErrInvalidAlias, got %v", err)
	}
	// failed Bind keeps the previous aliases
	b.LoadRules([]types.Rule{{Condition: "bird_y > gap_center_y + 20", Action: types.ActionTap, Priority: 10}})

	a := b.Evaluate([]types.VisionResult{
		{TriggerID: 1, Found: true, Location: types.Point{X: 50, Y: 150}},
		{TriggerID: 2, Found: true, Location: types.Point{X: 200, Y: 100}},
	})
	if a.Kind != types.ActionTap {
		t.Errorf("expected tap, got %+v", a)
	}
	if b.Variable("bird_x") != 50 || b.Variable("gap_center_x") != 200 {
		t.Errorf("aliases not seeded: %v", b.Variables())
	}

	// without a binding, ids carry no names
	plain := New(nil)
	plain.Evaluate([]types.VisionResult{{TriggerID: 1, Found: true, Location: types.Point{X: 5}}})
	if _, ok := plain.Variables()["bird_x"]; ok {
		t.Error("bird_x set without an alias")
	}
}

func TestVariableOverflowCounted(t *testing.T) {
	b := New(nil)
	results := make([]types.VisionResult, 0, 30)
	for i := 0; i < 30; i++ {
		results = append(results, types.VisionResult{TriggerID: uint32(i), Found: true})
	}
	b.Evaluate(results)
	if got := len(b.Variables()); got != types.MaxVariables {
		t.Errorf("variables = %d, want %d", got, types.MaxVariables)
	}
	if b.Overflows() == 0 {
		t.Error("overflow not counted")
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from          types.GameState
		found, action bool
		want          types.GameState
	}{
		{types.StateIdle, false, false, types.StateIdle},
		{types.StateIdle, true, false, types.StateDetecting},
		{types.StateIdle, true, true, types.StateDetecting},
		{types.StateDetecting, true, true, types.StateActionPending},
		{types.StateDetecting, false, true, types.StateActionPending},
		{types.StateDetecting, false, false, types.StateIdle},
		{types.StateDetecting, true, false, types.StateDetecting},
		{types.StateActionPending, false, false, types.StateExecuting},
		{types.StateExecuting, false, false, types.StateDetecting},
		{types.StatePaused, true, true, types.StatePaused},
		{types.StateError, true, true, types.StateError},
	}
	for _, tc := range tests {
		name := fmt.Sprintf("%s/%v/%v", tc.from, tc.found, tc.action)
		t.Run(name, func(t *testing.T) {
			if got := Transition(tc.from, tc.found, tc.action); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestProcessTraversal(t *testing.T) {
	seg := segment.NewInMemory()
	b := New(nil)
	b.LoadRules([]types.Rule{{Condition: "trigger_1_found", Action: types.ActionTap, Target: types.Point{X: 7, Y: 8}, Priority: 1}})

	seg.WriteResults([]types.VisionResult{{TriggerID: 1, Found: true}})

	want := []struct {
		state     types.GameState
		committed bool
	}{
		{types.StateDetecting, false},
		{types.StateActionPending, true},
		{types.StateExecuting, false},
		{types.StateDetecting, false},
		{types.StateActionPending, true},
	}
	for i, w := range want {
		seg.SetResultReady(false)
		out, err := b.Process(seg)
		if err != nil {
			t.Fatal(err)
		}
		if out.State != w.state || out.Committed != w.committed {
			t.Fatalf("cycle %d: state=%s committed=%v, want %s %v", i, out.State, out.Committed, w.state, w.committed)
		}
		if seg.State() != w.state || !seg.ResultReady() {
			t.Fatalf("cycle %d: segment state=%s ready=%v", i, seg.State(), seg.ResultReady())
		}
	}
	if a := seg.PendingAction(); a.Kind != types.ActionTap || a.Start != (types.Point{X: 7, Y: 8}) {
		t.Errorf("pending action = %+v", a)
	}
}

func TestProcessCommitCoupling(t *testing.T) {
	seg := segment.NewInMemory()
	b := New(nil)
	b.LoadRules([]types.Rule{{Condition: "1", Action: types.ActionTap, Priority: 1}})
	seg.WriteResults([]types.VisionResult{{TriggerID: 1, Found: true}})

	// idle -> detecting: an action is chosen but the new state is not action-pending
	out, _ := b.Process(seg)
	if out.Action.Kind != types.ActionTap || out.Committed {
		t.Fatalf("first cycle: %+v", out)
	}
	if seg.PendingAction().Kind != types.ActionNone {
		t.Error("action committed outside action-pending")
	}
}

func TestProcessDegradedCycle(t *testing.T) {
	seg := segment.NewInMemory()
	seg.SetVisionLatency(5 * time.Millisecond)
	b := New(nil)
	b.SetState(types.StateDetecting)

	out, err := b.Process(seg)
	if err != nil {
		t.Fatal(err)
	}
	if out.State != types.StateIdle {
		t.Errorf("state = %s, want idle", out.State)
	}
	if !seg.ResultReady() || seg.State() != types.StateIdle {
		t.Error("state and ready flag must be written on an empty cycle")
	}
	if vision, brain, total := seg.Latencies(); total != vision+brain || total < 5*time.Millisecond {
		t.Errorf("latencies not written: vision=%v brain=%v total=%v", vision, brain, total)
	}
}

func TestAbsorbingStates(t *testing.T) {
	seg := segment.NewInMemory()
	b := New(nil)
	b.LoadRules([]types.Rule{{Condition: "1", Action: types.ActionTap, Priority: 1}})
	seg.WriteResults([]types.VisionResult{{TriggerID: 1, Found: true}})

	for _, st := range []types.GameState{types.StatePaused, types.StateError} {
		b.SetState(st)
		for i := 0; i < 3; i++ {
			out, _ := b.Process(seg)
			if out.State != st || out.Committed {
				t.Fatalf("%s: left absorbing state: %+v", st, out)
			}
		}
	}
	b.SetState(types.StateIdle)
	if out, _ := b.Process(seg); out.State != types.StateDetecting {
		t.Errorf("after resume: %s", out.State)
	}
}

func TestSetStateInvalid(t *testing.T) {
	b := New(nil)
	if err := b.SetState(types.GameState(42)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if b.State() != types.StateIdle {
		t.Errorf("state changed on failure: %s", b.State())
	}
	if _, err := b.Process(nil); !errors.Is(err, ErrNilSegment) {
		t.Errorf("expected ErrNilSegment, got %v", err)
	}
}
