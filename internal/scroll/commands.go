// Package scroll turns compiled rule actions into the command
// vocabulary of the scroll compositor and executes them in order.
package scroll

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mecattaf/smart-tiling/internal/layout"
	"github.com/mecattaf/smart-tiling/internal/rules"
)

// SetModeCommand builds a set_mode command, with an optional insertion
// position.
func SetModeCommand(axis rules.Axis, mod rules.Modifier) string {
	if mod == rules.ModifierNone {
		return fmt.Sprintf("set_mode %s", axis)
	}
	return fmt.Sprintf("set_mode %s %s", axis, mod)
}

// SetSizeCommand builds a set_size command for a fraction of the
// container on the given axis.
func SetSizeCommand(axis rules.Axis, ratio float64) string {
	return fmt.Sprintf("set_size %s %s", axis, strconv.FormatFloat(ratio, 'g', -1, 64))
}

// ResizeCommand builds a resize to a percentage of the output.
func ResizeCommand(dimension string, ppt int) string {
	return fmt.Sprintf("resize set %s %d ppt", dimension, ppt)
}

// SplitCommand builds a split command for a container.
func SplitCommand(conID int64, o layout.Orientation) string {
	return fmt.Sprintf("[con_id=%d] %s", conID, o)
}

// MarkCommand builds a mark command for a container.
func MarkCommand(conID int64, mark string) string {
	return fmt.Sprintf("[con_id=%d] mark --add %s", conID, mark)
}

// NewParentMark returns a unique mark id for a matched parent window.
func NewParentMark() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("_smart_parent_%d_%s", time.Now().Unix(), id)
}
