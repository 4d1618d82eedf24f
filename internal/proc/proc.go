// Package proc reads process facts from /proc. It exists so a child
// window can be launched inside the directory its parent terminal was
// working in.
package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Inspector resolves process working directories. The zero root reads
// the live /proc.
type Inspector struct {
	root string
}

// NewInspector returns an inspector over /proc.
func NewInspector() *Inspector {
	return &Inspector{root: "/proc"}
}

// NewInspectorAt returns an inspector over an alternate proc root.
// Intended for tests.
func NewInspectorAt(root string) *Inspector {
	return &Inspector{root: root}
}

// WorkingDirectory returns the current working directory of a process.
func (p *Inspector) WorkingDirectory(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("proc: invalid pid %d", pid)
	}
	cwd, err := os.Readlink(filepath.Join(p.root, strconv.Itoa(pid), "cwd"))
	if err != nil {
		return "", fmt.Errorf("proc: cwd of %d: %w", pid, err)
	}
	return cwd, nil
}

// ChildPIDs returns the direct children of a process, found by scanning
// the ppid field of every /proc/N/stat.
func (p *Inspector) ChildPIDs(ppid int) ([]int, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("proc: %w", err)
	}
	var children []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		parent, err := p.parentPID(pid)
		if err != nil {
			continue
		}
		if parent == ppid {
			children = append(children, pid)
		}
	}
	return children, nil
}

// EffectiveWorkingDirectory returns the working directory of the
// deepest single-child descendant of pid, falling back to pid's own.
// A terminal's interesting cwd usually belongs to the shell it spawned,
// not to the terminal process itself.
func (p *Inspector) EffectiveWorkingDirectory(pid int) (string, error) {
	current := pid
	for depth := 0; depth < 4; depth++ {
		children, err := p.ChildPIDs(current)
		if err != nil || len(children) != 1 {
			break
		}
		current = children[0]
	}
	cwd, err := p.WorkingDirectory(current)
	if err != nil && current != pid {
		return p.WorkingDirectory(pid)
	}
	return cwd, err
}

// parentPID parses the ppid out of /proc/N/stat. The comm field may
// contain spaces and parentheses, so parsing starts after the final
// closing paren.
func (p *Inspector) parentPID(pid int) (int, error) {
	data, err := os.ReadFile(filepath.Join(p.root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return 0, fmt.Errorf("proc: malformed stat for %d", pid)
	}
	fields := strings.Fields(s[i+2:])
	if len(fields) < 2 {
		return 0, fmt.Errorf("proc: malformed stat for %d", pid)
	}
	return strconv.Atoi(fields[1])
}
