package rules

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/mecattaf/smart-tiling/internal/state"
)

// TitlePattern is a compiled case-insensitive glob over window titles.
type TitlePattern struct {
	Raw     string
	matcher glob.Glob
}

func compileTitlePattern(raw string) (TitlePattern, error) {
	g, err := glob.Compile(strings.ToLower(raw))
	if err != nil {
		return TitlePattern{}, err
	}
	return TitlePattern{Raw: raw, matcher: g}, nil
}

// MatchCriteria describes one side of a rule. A window matches when any
// populated field matches; fields are ORed, as are entries within a
// field's list.
type MatchCriteria struct {
	AppIDs        []string
	Classes       []string
	TitlePatterns []TitlePattern
}

// Empty reports whether no criteria are configured.
func (c MatchCriteria) Empty() bool {
	return len(c.AppIDs) == 0 && len(c.Classes) == 0 && len(c.TitlePatterns) == 0
}

// Matches reports whether the descriptor satisfies any configured
// criterion. Empty criteria never match here; the engine decides what
// an empty child section means.
func (c MatchCriteria) Matches(d state.Descriptor) bool {
	for _, id := range c.AppIDs {
		if d.AppID != "" && d.AppID == id {
			return true
		}
	}
	for _, class := range c.Classes {
		if d.Class != "" && d.Class == class {
			return true
		}
	}
	if d.Title != "" {
		title := strings.ToLower(d.Title)
		for _, p := range c.TitlePatterns {
			if p.matcher.Match(title) {
				return true
			}
		}
	}
	return false
}
