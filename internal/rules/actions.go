package rules

import "fmt"

// Axis names a split orientation on the scroll tiling grid.
type Axis string

const (
	AxisHorizontal Axis = "h"
	AxisVertical   Axis = "v"
)

// Modifier names an insertion position for set_mode.
type Modifier string

const (
	ModifierNone   Modifier = ""
	ModifierAfter  Modifier = "after"
	ModifierBefore Modifier = "before"
	ModifierEnd    Modifier = "end"
	ModifierBeg    Modifier = "beg"
)

// Direction names where a child window should land relative to its parent.
type Direction string

const (
	DirectionBelow Direction = "below"
	DirectionAbove Direction = "above"
	DirectionRight Direction = "right"
	DirectionLeft  Direction = "left"
)

// Mode translates a placement direction into the set_mode axis and
// insertion modifier that realize it.
func (d Direction) Mode() (Axis, Modifier) {
	switch d {
	case DirectionBelow:
		return AxisVertical, ModifierAfter
	case DirectionAbove:
		return AxisVertical, ModifierBefore
	case DirectionRight:
		return AxisHorizontal, ModifierAfter
	default:
		return AxisHorizontal, ModifierBefore
	}
}

// Action is one compiled directive in a rule's ordered action list.
type Action interface {
	Kind() string
}

// SetModeAction switches the split axis, optionally with an insertion
// position, before the child window appears.
type SetModeAction struct {
	Axis     Axis
	Modifier Modifier
}

func (SetModeAction) Kind() string { return "set_mode" }

func (a SetModeAction) String() string {
	if a.Modifier == ModifierNone {
		return fmt.Sprintf("set_mode %s", a.Axis)
	}
	return fmt.Sprintf("set_mode %s %s", a.Axis, a.Modifier)
}

// PlaceAction positions the child relative to the parent.
type PlaceAction struct {
	Direction Direction
}

func (PlaceAction) Kind() string { return "place" }

func (a PlaceAction) String() string {
	return fmt.Sprintf("place %s", a.Direction)
}

// SizeRatioAction resizes the child to a fraction of the container on
// the axis established by the rule's placement.
type SizeRatioAction struct {
	Value float64
	Axis  Axis
}

func (SizeRatioAction) Kind() string { return "size_ratio" }

func (a SizeRatioAction) String() string {
	return fmt.Sprintf("size_ratio %g on %s", a.Value, a.Axis)
}

// InheritCwdAction records the parent's working directory so the child
// can be launched inside it.
type InheritCwdAction struct{}

func (InheritCwdAction) Kind() string { return "inherit_cwd" }

func (InheritCwdAction) String() string { return "inherit_cwd" }

// PreserveColumnAction snapshots the parent's column geometry so it can
// be restored after the child closes.
type PreserveColumnAction struct{}

func (PreserveColumnAction) Kind() string { return "preserve_column" }

func (PreserveColumnAction) String() string { return "preserve_column" }

// UnknownAction carries an unrecognized key through compilation so the
// failure surfaces at execution time instead of dropping the rule.
type UnknownAction struct {
	Key      string
	RawValue interface{}
}

func (a UnknownAction) Kind() string { return a.Key }

func (a UnknownAction) String() string {
	return fmt.Sprintf("%s (unknown)", a.Key)
}

func parseAxis(s string) (Axis, error) {
	switch Axis(s) {
	case AxisHorizontal, AxisVertical:
		return Axis(s), nil
	}
	return "", fmt.Errorf("invalid axis %q (want h or v)", s)
}

func parseModifier(s string) (Modifier, error) {
	switch Modifier(s) {
	case ModifierAfter, ModifierBefore, ModifierEnd, ModifierBeg:
		return Modifier(s), nil
	}
	return "", fmt.Errorf("invalid position %q (want after, before, end, or beg)", s)
}

func parseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionBelow, DirectionAbove, DirectionRight, DirectionLeft:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q (want below, above, right, or left)", s)
}
