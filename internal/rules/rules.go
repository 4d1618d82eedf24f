// Package rules compiles raw rule configuration into matchable rules
// and tracks the pending parent matches and parent-child relationships
// that drive two-phase layout decisions.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mecattaf/smart-tiling/internal/config"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

// Rule is a compiled correlation rule: when a window matching Parent is
// focused and a window matching Child appears within the rule timeout,
// the actions run in order.
type Rule struct {
	Name    string
	Parent  MatchCriteria
	Child   MatchCriteria
	Actions []Action
}

// ChildMatches applies the child-side policy: an empty child section
// accepts any window that appears while the parent match is pending.
func (r *Rule) ChildMatches(d state.Descriptor) bool {
	if r.Child.Empty() {
		return true
	}
	return r.Child.Matches(d)
}

// Compile validates and compiles each rule independently. Malformed
// rules are logged and skipped so one bad entry never takes down the
// rest of the set.
func Compile(cfgs []config.RuleConfig, logger *util.Logger) []*Rule {
	out := make([]*Rule, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for i, cfg := range cfgs {
		rule, err := compileRule(cfg)
		if err != nil {
			logger.Warnf("skipping rule %d (%s): %v", i, cfg.Name, err)
			continue
		}
		if seen[rule.Name] {
			logger.Warnf("skipping rule %d: duplicate name %q", i, rule.Name)
			continue
		}
		seen[rule.Name] = true
		out = append(out, rule)
	}
	return out
}

func compileRule(cfg config.RuleConfig) (*Rule, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	parent, err := compileCriteria(cfg.Parent)
	if err != nil {
		return nil, fmt.Errorf("parent: %w", err)
	}
	if parent.Empty() {
		return nil, fmt.Errorf("parent requires at least one of app_id, class, title_pattern")
	}
	child, err := compileCriteria(cfg.Child)
	if err != nil {
		return nil, fmt.Errorf("child: %w", err)
	}
	if len(cfg.Actions) == 0 {
		return nil, fmt.Errorf("actions cannot be empty")
	}
	actions, err := compileActions(cfg.Actions)
	if err != nil {
		return nil, err
	}
	return &Rule{
		Name:    cfg.Name,
		Parent:  parent,
		Child:   child,
		Actions: actions,
	}, nil
}

func compileCriteria(cfg config.MatcherConfig) (MatchCriteria, error) {
	c := MatchCriteria{
		AppIDs:  append([]string(nil), cfg.AppID...),
		Classes: append([]string(nil), cfg.Class...),
	}
	for _, raw := range cfg.TitlePattern {
		p, err := compileTitlePattern(raw)
		if err != nil {
			return MatchCriteria{}, fmt.Errorf("title_pattern %q: %w", raw, err)
		}
		c.TitlePatterns = append(c.TitlePatterns, p)
	}
	return c, nil
}

func compileActions(cfgs []config.ActionConfig) ([]Action, error) {
	actions := make([]Action, 0, len(cfgs))
	// size_ratio resizes along the axis the rule placed the child on;
	// with no placement yet the vertical axis applies.
	axis := AxisVertical
	for i, cfg := range cfgs {
		switch cfg.Key {
		case "set_mode":
			a, err := compileSetMode(cfg.Value)
			if err != nil {
				return nil, fmt.Errorf("action %d (set_mode): %w", i, err)
			}
			actions = append(actions, a)
		case "place":
			a, err := compilePlace(cfg.Value)
			if err != nil {
				return nil, fmt.Errorf("action %d (place): %w", i, err)
			}
			axis, _ = a.Direction.Mode()
			actions = append(actions, a)
		case "size_ratio":
			v, err := toFloat(cfg.Value)
			if err != nil {
				return nil, fmt.Errorf("action %d (size_ratio): %w", i, err)
			}
			if v < 0.1 || v > 0.9 {
				return nil, fmt.Errorf("action %d (size_ratio): %v out of range [0.1, 0.9]", i, v)
			}
			actions = append(actions, SizeRatioAction{Value: v, Axis: axis})
		case "inherit_cwd":
			enabled, err := toBool(cfg.Value)
			if err != nil {
				return nil, fmt.Errorf("action %d (inherit_cwd): %w", i, err)
			}
			if enabled {
				actions = append(actions, InheritCwdAction{})
			}
		case "preserve_column":
			enabled, err := toBool(cfg.Value)
			if err != nil {
				return nil, fmt.Errorf("action %d (preserve_column): %w", i, err)
			}
			if enabled {
				actions = append(actions, PreserveColumnAction{})
			}
		default:
			actions = append(actions, UnknownAction{Key: cfg.Key, RawValue: cfg.Value})
		}
	}
	return actions, nil
}

func compileSetMode(value interface{}) (SetModeAction, error) {
	s, ok := value.(string)
	if !ok {
		return SetModeAction{}, fmt.Errorf("want a string like \"v after\", got %T", value)
	}
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return SetModeAction{}, fmt.Errorf("want \"axis [position]\", got %q", s)
	}
	axis, err := parseAxis(fields[0])
	if err != nil {
		return SetModeAction{}, err
	}
	mod := ModifierNone
	if len(fields) == 2 {
		mod, err = parseModifier(fields[1])
		if err != nil {
			return SetModeAction{}, err
		}
	}
	return SetModeAction{Axis: axis, Modifier: mod}, nil
}

func compilePlace(value interface{}) (PlaceAction, error) {
	s, ok := value.(string)
	if !ok {
		return PlaceAction{}, fmt.Errorf("want a direction string, got %T", value)
	}
	dir, err := parseDirection(strings.TrimSpace(s))
	if err != nil {
		return PlaceAction{}, err
	}
	return PlaceAction{Direction: dir}, nil
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %T", value)
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", v)
	case int:
		return v != 0, nil
	}
	return false, fmt.Errorf("not a boolean: %T", value)
}
