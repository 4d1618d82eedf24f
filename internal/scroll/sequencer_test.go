package scroll

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mecattaf/smart-tiling/internal/ipc"
	"github.com/mecattaf/smart-tiling/internal/layout"
	"github.com/mecattaf/smart-tiling/internal/proc"
	"github.com/mecattaf/smart-tiling/internal/rules"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

type fakeConn struct {
	commands []string
	refuse   map[string]string
}

func (f *fakeConn) Command(_ context.Context, command string) ([]ipc.CommandResult, error) {
	f.commands = append(f.commands, command)
	if reason, ok := f.refuse[command]; ok {
		return []ipc.CommandResult{{Success: false, Error: reason}}, nil
	}
	return []ipc.CommandResult{{Success: true}}, nil
}

func testLogger() *util.Logger {
	return util.NewLoggerWithWriter(util.LevelError, io.Discard)
}

func newTestSequencer(conn Commander) *Sequencer {
	return NewSequencer(conn, proc.NewInspectorAt("/nonexistent"), state.NewStores(), testLogger(), false)
}

func TestCommandStrings(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{SetModeCommand(rules.AxisVertical, rules.ModifierAfter), "set_mode v after"},
		{SetModeCommand(rules.AxisHorizontal, rules.ModifierNone), "set_mode h"},
		{SetSizeCommand(rules.AxisVertical, 0.333), "set_size v 0.333"},
		{SetSizeCommand(rules.AxisHorizontal, 0.5), "set_size h 0.5"},
		{ResizeCommand("width", 66), "resize set width 66 ppt"},
		{SplitCommand(12, layout.SplitVertical), "[con_id=12] splitv"},
		{MarkCommand(42, "_smart_parent_1_abcd1234"), "[con_id=42] mark --add _smart_parent_1_abcd1234"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("command = %q, want %q", tc.got, tc.want)
		}
	}
}

func TestNewParentMarkShape(t *testing.T) {
	mark := NewParentMark()
	parts := strings.Split(mark, "_")
	// _smart_parent_{unix}_{suffix} splits into ["", "smart", "parent", unix, suffix].
	if len(parts) != 5 || parts[1] != "smart" || parts[2] != "parent" {
		t.Fatalf("mark %q has unexpected shape", mark)
	}
	if _, err := strconv.ParseInt(parts[3], 10, 64); err != nil {
		t.Fatalf("mark %q timestamp: %v", mark, err)
	}
	if len(parts[4]) != 8 {
		t.Fatalf("mark %q suffix length %d, want 8", mark, len(parts[4]))
	}
	if NewParentMark() == mark {
		t.Fatal("consecutive marks collided")
	}
}

func TestParentPhaseRunsOnlySetMode(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSequencer(conn)
	rule := &rules.Rule{
		Name: "terminal-editor",
		Actions: []rules.Action{
			rules.SetModeAction{Axis: rules.AxisVertical, Modifier: rules.ModifierAfter},
			rules.PlaceAction{Direction: rules.DirectionBelow},
			rules.SizeRatioAction{Value: 0.333, Axis: rules.AxisVertical},
		},
	}
	report := s.ExecuteParentPhase(context.Background(), rule, &state.Window{ID: 1}, "1")
	if !report.Handled() {
		t.Fatal("parent phase not handled")
	}
	if diff := cmp.Diff([]string{"set_mode v after"}, conn.commands); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestChildPhaseOrderAndVocabulary(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSequencer(conn)
	rule := &rules.Rule{
		Name: "terminal-editor",
		Actions: []rules.Action{
			rules.SetModeAction{Axis: rules.AxisVertical, Modifier: rules.ModifierAfter},
			rules.PlaceAction{Direction: rules.DirectionBelow},
			rules.SizeRatioAction{Value: 0.333, Axis: rules.AxisVertical},
		},
	}
	report := s.ExecuteChildPhase(context.Background(), rule, &state.Window{ID: 1}, &state.Window{ID: 2}, "1")
	if diff := cmp.Diff([]string{"place", "size_ratio"}, report.Executed); diff != "" {
		t.Fatalf("executed mismatch (-want +got):\n%s", diff)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("failures: %+v", report.Failed)
	}
	want := []string{"set_mode v after", "set_size v 0.333"}
	if diff := cmp.Diff(want, conn.commands); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestChildPhaseUnknownActionFailsButOthersRun(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSequencer(conn)
	rule := &rules.Rule{
		Name: "mixed",
		Actions: []rules.Action{
			rules.PlaceAction{Direction: rules.DirectionBelow},
			rules.UnknownAction{Key: "teleport", RawValue: "elsewhere"},
		},
	}
	report := s.ExecuteChildPhase(context.Background(), rule, &state.Window{ID: 1}, &state.Window{ID: 2}, "1")
	if !report.Handled() {
		t.Fatal("report not handled despite a successful action")
	}
	if diff := cmp.Diff([]string{"place"}, report.Executed); diff != "" {
		t.Fatalf("executed mismatch (-want +got):\n%s", diff)
	}
	wantFailed := []ActionFailure{{Kind: "teleport", Reason: "unknown action type"}}
	if diff := cmp.Diff(wantFailed, report.Failed); diff != "" {
		t.Fatalf("failed mismatch (-want +got):\n%s", diff)
	}
}

func TestChildPhaseContinuesPastRefusedCommand(t *testing.T) {
	conn := &fakeConn{refuse: map[string]string{"set_mode v after": "nope"}}
	s := newTestSequencer(conn)
	rule := &rules.Rule{
		Name: "stubborn",
		Actions: []rules.Action{
			rules.PlaceAction{Direction: rules.DirectionBelow},
			rules.SizeRatioAction{Value: 0.5, Axis: rules.AxisVertical},
		},
	}
	report := s.ExecuteChildPhase(context.Background(), rule, &state.Window{ID: 1}, &state.Window{ID: 2}, "1")
	if diff := cmp.Diff([]string{"size_ratio"}, report.Executed); diff != "" {
		t.Fatalf("executed mismatch (-want +got):\n%s", diff)
	}
	if len(report.Failed) != 1 || report.Failed[0].Kind != "place" {
		t.Fatalf("failed = %+v, want one place failure", report.Failed)
	}
}

func TestInheritCwdStoresShellDirectory(t *testing.T) {
	root := t.TempDir()
	cwd := t.TempDir()
	dir := filepath.Join(root, "100")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	stat := "100 (kitty) S 1 1 1 0 -1 4194304 0 0 0 0\n"
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink(cwd, filepath.Join(dir, "cwd")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	stores := state.NewStores()
	s := NewSequencer(&fakeConn{}, proc.NewInspectorAt(root), stores, testLogger(), false)
	rule := &rules.Rule{Name: "cwd", Actions: []rules.Action{rules.InheritCwdAction{}}}
	report := s.ExecuteChildPhase(context.Background(), rule, &state.Window{ID: 1, PID: 100}, &state.Window{ID: 2}, "1")
	if !report.Handled() {
		t.Fatalf("inherit_cwd failed: %+v", report.Failed)
	}
	entry, ok := stores.Cwd.Get("1")
	if !ok {
		t.Fatal("no inherited cwd stored")
	}
	if entry.Path != cwd || entry.OwnerID != 1 {
		t.Fatalf("stored %+v", entry)
	}
}

func TestInheritCwdWithoutPIDFails(t *testing.T) {
	s := newTestSequencer(&fakeConn{})
	rule := &rules.Rule{Name: "cwd", Actions: []rules.Action{rules.InheritCwdAction{}}}
	report := s.ExecuteChildPhase(context.Background(), rule, &state.Window{ID: 1}, &state.Window{ID: 2}, "1")
	if report.Handled() {
		t.Fatal("inherit_cwd succeeded without a pid")
	}
	if len(report.Failed) != 1 || report.Failed[0].Kind != "inherit_cwd" {
		t.Fatalf("failed = %+v", report.Failed)
	}
}

func TestPreserveColumnSnapshotsGeometry(t *testing.T) {
	stores := state.NewStores()
	s := NewSequencer(&fakeConn{}, proc.NewInspectorAt("/nonexistent"), stores, testLogger(), false)
	rule := &rules.Rule{Name: "col", Actions: []rules.Action{rules.PreserveColumnAction{}}}
	parent := &state.Window{
		ID:       1,
		Layout:   "splitv",
		Geometry: layout.Rect{X: 10, Y: 20, Width: 800, Height: 600},
	}
	report := s.ExecuteChildPhase(context.Background(), rule, parent, &state.Window{ID: 2}, "1")
	if !report.Handled() {
		t.Fatalf("preserve_column failed: %+v", report.Failed)
	}
	entry, ok := stores.Dimensions.Get("1")
	if !ok {
		t.Fatal("no preserved dimensions stored")
	}
	if entry.Geometry.Width != 800 || entry.ParentLayout != "splitv" {
		t.Fatalf("stored %+v", entry)
	}
}

func TestDryRunSendsNothing(t *testing.T) {
	conn := &fakeConn{}
	s := NewSequencer(conn, proc.NewInspectorAt("/nonexistent"), state.NewStores(), testLogger(), true)
	rule := &rules.Rule{Name: "dry", Actions: []rules.Action{rules.PlaceAction{Direction: rules.DirectionBelow}}}
	report := s.ExecuteChildPhase(context.Background(), rule, &state.Window{ID: 1}, &state.Window{ID: 2}, "1")
	if !report.Handled() {
		t.Fatal("dry run did not report the action as executed")
	}
	if len(conn.commands) != 0 {
		t.Fatalf("dry run sent commands: %v", conn.commands)
	}
}
