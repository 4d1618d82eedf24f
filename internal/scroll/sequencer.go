package scroll

import (
	"context"
	"fmt"
	"time"

	"github.com/mecattaf/smart-tiling/internal/ipc"
	"github.com/mecattaf/smart-tiling/internal/proc"
	"github.com/mecattaf/smart-tiling/internal/rules"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

// Commander runs compositor commands. Satisfied by *ipc.Client.
type Commander interface {
	Command(ctx context.Context, command string) ([]ipc.CommandResult, error)
}

// ActionFailure records one action that could not be completed.
type ActionFailure struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// ExecutionReport summarizes one phase of rule execution. Failures do
// not abort the phase; later actions still run.
type ExecutionReport struct {
	Executed []string        `json:"executed"`
	Failed   []ActionFailure `json:"failed"`
}

// Handled reports whether at least one action took effect.
func (r ExecutionReport) Handled() bool {
	return len(r.Executed) > 0
}

func (r *ExecutionReport) ok(kind string) {
	r.Executed = append(r.Executed, kind)
}

func (r *ExecutionReport) fail(kind, reason string) {
	r.Failed = append(r.Failed, ActionFailure{Kind: kind, Reason: reason})
}

// Sequencer executes a rule's actions against the compositor in their
// configured order.
type Sequencer struct {
	conn   Commander
	proc   *proc.Inspector
	stores *state.Stores
	logger *util.Logger
	dryRun bool
}

// NewSequencer returns a sequencer. With dryRun set, commands are
// logged instead of sent.
func NewSequencer(conn Commander, inspector *proc.Inspector, stores *state.Stores, logger *util.Logger, dryRun bool) *Sequencer {
	return &Sequencer{
		conn:   conn,
		proc:   inspector,
		stores: stores,
		logger: logger,
		dryRun: dryRun,
	}
}

// Run sends a single command, honoring dry-run mode. Command failures
// reported by the compositor come back as errors.
func (s *Sequencer) Run(ctx context.Context, command string) error {
	if s.dryRun {
		s.logger.Infof("dry-run: %s", command)
		return nil
	}
	results, err := s.conn.Command(ctx, command)
	if err != nil {
		return err
	}
	for _, res := range results {
		if !res.Success {
			if res.Error == "" {
				return fmt.Errorf("command %q refused", command)
			}
			return fmt.Errorf("command %q refused: %s", command, res.Error)
		}
	}
	return nil
}

// MarkParent tags the parent window with a fresh mark and returns the
// mark id.
func (s *Sequencer) MarkParent(ctx context.Context, conID int64) (string, error) {
	mark := NewParentMark()
	if err := s.Run(ctx, MarkCommand(conID, mark)); err != nil {
		return "", err
	}
	return mark, nil
}

// ExecuteParentPhase runs the actions that must take effect before the
// child window appears. Only set_mode participates; everything else
// waits for the child.
func (s *Sequencer) ExecuteParentPhase(ctx context.Context, rule *rules.Rule, parent *state.Window, workspace string) ExecutionReport {
	var report ExecutionReport
	for _, action := range rule.Actions {
		a, ok := action.(rules.SetModeAction)
		if !ok {
			continue
		}
		if err := s.Run(ctx, SetModeCommand(a.Axis, a.Modifier)); err != nil {
			s.logger.Warnf("scroll: rule %q set_mode: %v", rule.Name, err)
			report.fail(a.Kind(), err.Error())
			continue
		}
		report.ok(a.Kind())
	}
	return report
}

// ExecuteChildPhase runs the remaining actions once the child window
// has appeared. Actions run in configured order; a failure is recorded
// and the sequence continues.
func (s *Sequencer) ExecuteChildPhase(ctx context.Context, rule *rules.Rule, parent *state.Window, child *state.Window, workspace string) ExecutionReport {
	var report ExecutionReport
	for _, action := range rule.Actions {
		switch a := action.(type) {
		case rules.SetModeAction:
			// Already applied in the parent phase.
		case rules.PlaceAction:
			axis, mod := a.Direction.Mode()
			if err := s.Run(ctx, SetModeCommand(axis, mod)); err != nil {
				report.fail(a.Kind(), err.Error())
				continue
			}
			report.ok(a.Kind())
		case rules.SizeRatioAction:
			if err := s.Run(ctx, SetSizeCommand(a.Axis, a.Value)); err != nil {
				report.fail(a.Kind(), err.Error())
				continue
			}
			report.ok(a.Kind())
		case rules.InheritCwdAction:
			if err := s.inheritCwd(parent, workspace); err != nil {
				report.fail(a.Kind(), err.Error())
				continue
			}
			report.ok(a.Kind())
		case rules.PreserveColumnAction:
			if err := s.preserveColumn(parent, workspace); err != nil {
				report.fail(a.Kind(), err.Error())
				continue
			}
			report.ok(a.Kind())
		default:
			report.fail(action.Kind(), "unknown action type")
		}
	}
	return report
}

func (s *Sequencer) inheritCwd(parent *state.Window, workspace string) error {
	if parent == nil || parent.PID <= 0 {
		return fmt.Errorf("parent pid unknown")
	}
	cwd, err := s.proc.EffectiveWorkingDirectory(parent.PID)
	if err != nil {
		return err
	}
	s.stores.Cwd.Put(workspace, state.InheritedCwd{
		Workspace: workspace,
		OwnerID:   parent.ID,
		Path:      cwd,
		CreatedAt: time.Now(),
	}, state.DefaultAuxTTL)
	s.logger.Debugf("scroll: inherited cwd %q on workspace %q", cwd, workspace)
	return nil
}

func (s *Sequencer) preserveColumn(parent *state.Window, workspace string) error {
	if parent == nil {
		return fmt.Errorf("parent window unknown")
	}
	s.stores.Dimensions.Put(workspace, state.PreservedDimensions{
		Workspace: workspace,
		OwnerID:   parent.ID,
		Geometry: state.WindowGeometry{
			X:      parent.Geometry.X,
			Y:      parent.Geometry.Y,
			Width:  parent.Geometry.Width,
			Height: parent.Geometry.Height,
		},
		ParentWidth:  parent.Geometry.Width,
		ParentHeight: parent.Geometry.Height,
		ParentLayout: parent.Layout,
		CreatedAt:    time.Now(),
	}, state.DefaultAuxTTL)
	return nil
}
