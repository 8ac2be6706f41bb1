package main

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Cycler advances task states in the open page and propagates the change
// to backlinked copies.
type Cycler struct {
	index    IndexStore
	resolver *Resolver
	log      *slog.Logger
}

func NewCycler(index IndexStore, resolver *Resolver, log *slog.Logger) *Cycler {
	return &Cycler{index: index, resolver: resolver, log: log.With("component", "cycle")}
}

// NextState returns the successor of current. Binary states toggle; custom
// states rotate through known in lexicographic order.
func NextState(current string, known []string) (string, error) {
	switch {
	case isDoneState(current):
		return " ", nil
	case current == " ":
		return "x", nil
	}

	states := slices.Clone(known)
	slices.Sort(states)
	states = slices.Compact(states)

	i := slices.Index(states, current)
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, current)
	}

	return states[(i+1)%len(states)], nil
}

// KnownStates returns the distinct custom tokens recorded anywhere in the index
func (c *Cycler) KnownStates() ([]string, error) {
	entries, err := c.index.QueryPrefix(taskStateKeyPrefix)
	if err != nil {
		return nil, err
	}

	states := make([]string, 0, len(entries))
	for _, entry := range entries {
		states = append(states, strings.TrimPrefix(entry.Key, taskStateKeyPrefix))
	}

	return states, nil
}

// CycleResult describes one cycle operation
type CycleResult struct {
	Page       string
	Pos        int
	From       string
	To         string
	References []ReferenceResult
}

// CycleAt cycles the task whose state marker starts at pos in the editor's page
func (c *Cycler) CycleAt(ed Editor, pos int) (*CycleResult, error) {
	tree := ParseMarkdown(ed.Text())

	marker := tree.NodeAt(pos + 1)
	if marker == NoNode || tree.Node(marker).Type != NodeTaskState || tree.Node(marker).From != pos {
		ed.Flash(fmt.Sprintf("%v %d", ErrMissingNode, pos))
		return nil, nil
	}

	return c.cycle(ed, tree, marker)
}

// CycleAtCursor cycles the task on the line under the cursor
func (c *Cycler) CycleAtCursor(ed Editor) (*CycleResult, error) {
	tree := ParseMarkdown(ed.Text())

	task := NoNode
	if at := tree.NodeAt(ed.Cursor()); at != NoNode {
		switch tree.Node(at).Type {
		case NodeTask:
			task = at
		case NodeListItem:
			task = firstTaskChild(tree, at)
		default:
			task = tree.Ancestor(at, NodeTask)
		}
	}

	if task == NoNode {
		ed.Flash(fmt.Sprintf("%v %d (cursor)", ErrMissingNode, ed.Cursor()))
		return nil, nil
	}

	return c.cycle(ed, tree, tree.Node(task).Children[0])
}

func firstTaskChild(t *Tree, item NodeID) NodeID {
	for _, child := range t.Node(item).Children {
		if t.Node(child).Type == NodeTask {
			return child
		}
	}
	return NoNode
}

func (c *Cycler) cycle(ed Editor, tree *Tree, marker NodeID) (*CycleResult, error) {
	pos := tree.Node(marker).From
	current := taskStateToken(tree, marker)

	var known []string
	if !isBinaryState(current) {
		var err error
		if known, err = c.KnownStates(); err != nil {
			return nil, err
		}
	}

	next, err := NextState(current, known)
	if err != nil {
		c.log.Warn("cannot cycle task", "page", ed.CurrentPage(), "pos", pos, "error", err)
		return nil, err
	}

	if err := ed.Dispatch(Edit{From: pos + 1, To: pos + 1 + len(current), Insert: next}); err != nil {
		return nil, err
	}

	c.log.Info("cycled task", "page", ed.CurrentPage(), "pos", pos, "from", current, "to", next)

	result := &CycleResult{Page: ed.CurrentPage(), Pos: pos, From: current, To: next}
	if c.resolver == nil {
		return result, nil
	}

	task := tree.Parent(marker)
	result.References, err = c.resolver.Propagate(ed, tree, task, current, next)

	return result, err
}
