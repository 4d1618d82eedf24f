package rules

import (
	"io"
	"testing"
	"time"

	"github.com/mecattaf/smart-tiling/internal/config"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

func testLogger() *util.Logger {
	return util.NewLoggerWithWriter(util.LevelError, io.Discard)
}

func mustParse(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestCompileSkipsMalformedRules(t *testing.T) {
	cfg := mustParse(t, `
rules:
  - name: good
    parent:
      app_id: kitty
    actions:
      - set_mode: v after
  - name: no-parent-criteria
    parent: {}
    actions:
      - set_mode: v
  - name: no-actions
    parent:
      app_id: kitty
    actions: []
  - name: good
    parent:
      app_id: foot
    actions:
      - place: below
`)
	rules := Compile(cfg.Rules, testLogger())
	if len(rules) != 1 {
		t.Fatalf("compiled %d rules, want 1", len(rules))
	}
	if rules[0].Name != "good" {
		t.Fatalf("kept rule %q, want good", rules[0].Name)
	}
	if len(rules[0].Parent.AppIDs) != 1 || rules[0].Parent.AppIDs[0] != "kitty" {
		t.Fatalf("duplicate name kept the wrong rule: parent app ids %v", rules[0].Parent.AppIDs)
	}
}

func TestCompileSetMode(t *testing.T) {
	cases := []struct {
		value string
		want  SetModeAction
		ok    bool
	}{
		{"v after", SetModeAction{Axis: AxisVertical, Modifier: ModifierAfter}, true},
		{"h", SetModeAction{Axis: AxisHorizontal}, true},
		{"h beg", SetModeAction{Axis: AxisHorizontal, Modifier: ModifierBeg}, true},
		{"x after", SetModeAction{}, false},
		{"v sideways", SetModeAction{}, false},
		{"", SetModeAction{}, false},
	}
	for _, tc := range cases {
		got, err := compileSetMode(tc.value)
		if tc.ok != (err == nil) {
			t.Fatalf("compileSetMode(%q): err=%v, want ok=%v", tc.value, err, tc.ok)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("compileSetMode(%q) = %+v, want %+v", tc.value, got, tc.want)
		}
	}
}

func TestCompileSizeRatioBounds(t *testing.T) {
	for _, v := range []float64{0.05, 0.99, 1.0, 0.0, -0.3} {
		_, err := compileActions([]config.ActionConfig{{Key: "size_ratio", Value: v}})
		if err == nil {
			t.Fatalf("size_ratio %v compiled, want rejection", v)
		}
	}
	for _, v := range []float64{0.1, 0.333, 0.9} {
		actions, err := compileActions([]config.ActionConfig{{Key: "size_ratio", Value: v}})
		if err != nil {
			t.Fatalf("size_ratio %v: %v", v, err)
		}
		a := actions[0].(SizeRatioAction)
		if a.Value != v {
			t.Fatalf("size_ratio value %v, want %v", a.Value, v)
		}
		if a.Axis != AxisVertical {
			t.Fatalf("size_ratio axis %q without placement, want v", a.Axis)
		}
	}
}

func TestSizeRatioAxisFollowsPlacement(t *testing.T) {
	actions, err := compileActions([]config.ActionConfig{
		{Key: "place", Value: "right"},
		{Key: "size_ratio", Value: 0.4},
	})
	if err != nil {
		t.Fatalf("compileActions: %v", err)
	}
	a := actions[1].(SizeRatioAction)
	if a.Axis != AxisHorizontal {
		t.Fatalf("size_ratio axis %q after place right, want h", a.Axis)
	}
}

func TestUnknownActionCompiles(t *testing.T) {
	actions, err := compileActions([]config.ActionConfig{
		{Key: "place", Value: "below"},
		{Key: "teleport", Value: "elsewhere"},
	})
	if err != nil {
		t.Fatalf("compileActions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("compiled %d actions, want 2", len(actions))
	}
	u, ok := actions[1].(UnknownAction)
	if !ok {
		t.Fatalf("action 1 is %T, want UnknownAction", actions[1])
	}
	if u.Key != "teleport" || u.Kind() != "teleport" {
		t.Fatalf("unknown action key %q kind %q", u.Key, u.Kind())
	}
}

func TestDisabledBooleanActionsAreDropped(t *testing.T) {
	actions, err := compileActions([]config.ActionConfig{
		{Key: "inherit_cwd", Value: false},
		{Key: "preserve_column", Value: true},
	})
	if err != nil {
		t.Fatalf("compileActions: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("compiled %d actions, want 1", len(actions))
	}
	if _, ok := actions[0].(PreserveColumnAction); !ok {
		t.Fatalf("action 0 is %T, want PreserveColumnAction", actions[0])
	}
}

func TestDirectionMode(t *testing.T) {
	cases := map[Direction]struct {
		axis Axis
		mod  Modifier
	}{
		DirectionBelow: {AxisVertical, ModifierAfter},
		DirectionAbove: {AxisVertical, ModifierBefore},
		DirectionRight: {AxisHorizontal, ModifierAfter},
		DirectionLeft:  {AxisHorizontal, ModifierBefore},
	}
	for dir, want := range cases {
		axis, mod := dir.Mode()
		if axis != want.axis || mod != want.mod {
			t.Fatalf("%s.Mode() = (%s, %s), want (%s, %s)", dir, axis, mod, want.axis, want.mod)
		}
	}
}

func TestCriteriaMatching(t *testing.T) {
	c, err := compileCriteria(config.MatcherConfig{
		AppID:        config.StringList{"kitty", "foot"},
		TitlePattern: config.StringList{"*Vim*"},
	})
	if err != nil {
		t.Fatalf("compileCriteria: %v", err)
	}
	cases := []struct {
		desc state.Descriptor
		want bool
	}{
		{state.Descriptor{AppID: "kitty"}, true},
		{state.Descriptor{AppID: "foot"}, true},
		{state.Descriptor{AppID: "alacritty"}, false},
		{state.Descriptor{Title: "editing in NVIM today"}, true},
		{state.Descriptor{Title: "plain shell"}, false},
		{state.Descriptor{}, false},
	}
	for _, tc := range cases {
		if got := c.Matches(tc.desc); got != tc.want {
			t.Fatalf("Matches(%+v) = %v, want %v", tc.desc, got, tc.want)
		}
	}
}

func TestEmptyCriteriaNeverMatchDirectly(t *testing.T) {
	var c MatchCriteria
	if c.Matches(state.Descriptor{AppID: "kitty", Title: "anything"}) {
		t.Fatal("empty criteria matched a descriptor")
	}
	if !c.Empty() {
		t.Fatal("Empty() = false for zero criteria")
	}
}

func TestEmptyChildAcceptsAnyWindow(t *testing.T) {
	r := &Rule{Name: "open"}
	if !r.ChildMatches(state.Descriptor{AppID: "whatever"}) {
		t.Fatal("empty child section rejected a window")
	}
	r.Child = MatchCriteria{AppIDs: []string{"nvim"}}
	if r.ChildMatches(state.Descriptor{AppID: "whatever"}) {
		t.Fatal("populated child section accepted a non-matching window")
	}
}

func TestEngineFirstMatchWins(t *testing.T) {
	cfg := mustParse(t, `
rules:
  - name: first
    parent:
      app_id: kitty
    actions:
      - set_mode: v after
  - name: second
    parent:
      app_id: kitty
    actions:
      - place: below
`)
	e := NewEngine(testLogger(), 0)
	if n := e.Load(cfg.Rules); n != 2 {
		t.Fatalf("loaded %d rules, want 2", n)
	}
	r := e.MatchParent(state.Descriptor{AppID: "kitty"})
	if r == nil || r.Name != "first" {
		t.Fatalf("matched %v, want rule first", r)
	}
}

func TestEngineOverwriteDiscardsEarlierPending(t *testing.T) {
	e := NewEngine(testLogger(), 0)
	a := &Rule{Name: "a"}
	b := &Rule{Name: "b"}
	e.RecordParentMatch("1", a, 10, state.Descriptor{AppID: "kitty"}, "", time.Minute)
	e.RecordParentMatch("1", b, 11, state.Descriptor{AppID: "foot"}, "", time.Minute)
	pm, ok := e.PendingFor("1")
	if !ok {
		t.Fatal("no pending match after overwrite")
	}
	if pm.Rule.Name != "b" || pm.ParentID != 11 {
		t.Fatalf("pending match is %q parent %d, want b parent 11", pm.Rule.Name, pm.ParentID)
	}
}

func TestEngineResolveKeepsPendingAlive(t *testing.T) {
	e := NewEngine(testLogger(), 0)
	r := &Rule{Name: "terminal-editor"}
	e.RecordParentMatch("1", r, 10, state.Descriptor{AppID: "kitty"}, "", time.Minute)

	pm, ok := e.ResolveChild("1", 20, state.Descriptor{AppID: "nvim"})
	if !ok {
		t.Fatal("first child did not resolve")
	}
	if pm.Rule.Name != "terminal-editor" {
		t.Fatalf("resolved against %q", pm.Rule.Name)
	}
	if _, ok := e.ResolveChild("1", 21, state.Descriptor{AppID: "nvim"}); !ok {
		t.Fatal("second child did not resolve; pending was cleared")
	}
	rel, ok := e.RelationshipFor(20)
	if !ok {
		t.Fatal("no relationship recorded for first child")
	}
	if rel.ParentID != 10 || rel.ChildID != 20 {
		t.Fatalf("relationship %+v, want parent 10 child 20", rel)
	}
	if _, ok := e.RelationshipFor(21); !ok {
		t.Fatal("no relationship recorded for second child")
	}
}

func TestEngineResolveAfterDeadline(t *testing.T) {
	e := NewEngine(testLogger(), 0)
	now := time.Unix(1000, 0)
	e.SetClock(func() time.Time { return now })
	e.RecordParentMatch("1", &Rule{Name: "r"}, 10, state.Descriptor{AppID: "kitty"}, "", 15*time.Second)

	now = now.Add(14 * time.Second)
	if _, ok := e.ResolveChild("1", 20, state.Descriptor{}); !ok {
		t.Fatal("child within the deadline did not resolve")
	}
	now = now.Add(2 * time.Second)
	if _, ok := e.ResolveChild("1", 21, state.Descriptor{}); ok {
		t.Fatal("child after the deadline resolved")
	}
	if _, ok := e.PendingFor("1"); ok {
		t.Fatal("expired pending match still visible")
	}
}

func TestEngineSweep(t *testing.T) {
	e := NewEngine(testLogger(), time.Minute)
	now := time.Unix(1000, 0)
	e.SetClock(func() time.Time { return now })
	e.RecordParentMatch("1", &Rule{Name: "r"}, 10, state.Descriptor{}, "", 10*time.Second)
	if _, ok := e.ResolveChild("1", 20, state.Descriptor{}); !ok {
		t.Fatal("child did not resolve")
	}
	now = now.Add(2 * time.Minute)
	var expired []string
	if n := e.Sweep(func(pm PendingMatch) { expired = append(expired, pm.Rule.Name) }); n != 2 {
		t.Fatalf("Sweep removed %d entries, want 2", n)
	}
	if len(expired) != 1 || expired[0] != "r" {
		t.Fatalf("expired callbacks = %v, want [r]", expired)
	}
}

func TestEngineIgnoresParentAsItsOwnChild(t *testing.T) {
	e := NewEngine(testLogger(), 0)
	e.RecordParentMatch("1", &Rule{Name: "r"}, 10, state.Descriptor{AppID: "kitty"}, "", time.Minute)
	if _, ok := e.ResolveChild("1", 10, state.Descriptor{AppID: "kitty"}); ok {
		t.Fatal("parent resolved as its own child")
	}
}
