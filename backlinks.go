package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
)

// Backlink is a page@offset reference to another occurrence of a task
type Backlink struct {
	Page   string
	Offset int
}

func (b Backlink) String() string {
	return b.Page + "@" + strconv.Itoa(b.Offset)
}

// ParseBacklink parses "page@offset" (optionally wrapped in [[ ]])
func ParseBacklink(ref string) (Backlink, bool) {
	ref = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(ref), "[["), "]]")

	at := strings.LastIndex(ref, "@")
	if at <= 0 {
		return Backlink{}, false
	}

	offset, err := strconv.Atoi(ref[at+1:])
	if err != nil || offset < 0 {
		return Backlink{}, false
	}

	return Backlink{Page: ref[:at], Offset: offset}, true
}

// ReferenceResult is the outcome for one backlink
type ReferenceResult struct {
	Ref     Backlink
	Updated bool
	Err     error
}

// Scheduler accepts fire-and-forget page reconciliation requests.
// Implementations: Syncer
type Scheduler interface {
	ScheduleFileSync(page string)
}

// Resolver rewrites the state of every copy of a task reachable through backlinks
type Resolver struct {
	pages PageStore
	sync  Scheduler
	log   *slog.Logger
}

func NewResolver(pages PageStore, sync Scheduler, log *slog.Logger) *Resolver {
	return &Resolver{pages: pages, sync: sync, log: log.With("component", "resolver")}
}

// Backlinks lists the page@offset links in the task's own text in document
// order. Links in nested sub-items belong to those tasks and are not
// included. Page-local [[@offset]] links resolve against page.
func Backlinks(t *Tree, task NodeID, page string) []Backlink {
	var refs []Backlink
	for _, link := range t.FindAll(task, NodeWikiLink) {
		target := t.Render(link)
		if strings.HasPrefix(target, "[[@") {
			target = "[[" + page + target[2:]
		}
		if ref, ok := ParseBacklink(target); ok {
			refs = append(refs, ref)
		}
	}

	return refs
}

// Propagate moves every backlinked copy of task from oldState to newState.
// Stale references are reported and skipped; storage failures stop the run.
// References already updated stay updated.
func (r *Resolver) Propagate(ed Editor, t *Tree, task NodeID, oldState, newState string) ([]ReferenceResult, error) {
	self := Backlink{Page: ed.CurrentPage(), Offset: t.Node(task).From}

	// offsets in t predate the edits made to the buffer
	shift := len(newState) - len(oldState)
	edited := []int{self.Offset}

	var results []ReferenceResult
	for _, ref := range Backlinks(t, task, ed.CurrentPage()) {
		if ref == self {
			continue
		}

		var err error
		if ref.Page == ed.CurrentPage() {
			live := ref
			for _, at := range edited {
				if at < ref.Offset {
					live.Offset += shift
				}
			}
			if err = r.updateBuffer(ed, live, oldState, newState); err == nil {
				edited = append(edited, ref.Offset)
			}
		} else {
			err = r.updatePage(ref, oldState, newState)
		}

		if err != nil && !errors.Is(err, ErrStaleReference) {
			return results, err
		}

		result := ReferenceResult{Ref: ref, Updated: err == nil, Err: err}
		if err != nil {
			r.log.Warn("skipping stale reference", "ref", ref.String(), "expected", oldState)
			ed.Flash(fmt.Sprintf("Reference %s changed, not updated", ref))
		}
		results = append(results, result)
	}

	return results, nil
}

func (r *Resolver) updateBuffer(ed Editor, ref Backlink, oldState, newState string) error {
	text := ed.Text()
	from := ref.Offset + 1
	to := from + len(oldState)

	if to > len(text) || text[ref.Offset] != '[' || text[from:to] != oldState {
		return &ReferenceError{Ref: ref, Err: ErrStaleReference}
	}

	return ed.Dispatch(Edit{From: from, To: to, Insert: newState})
}

func (r *Resolver) updatePage(ref Backlink, oldState, newState string) error {
	text, err := r.pages.ReadPage(ref.Page)
	if errors.Is(err, fs.ErrNotExist) {
		return &ReferenceError{Ref: ref, Err: ErrStaleReference}
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", ref.Page, err)
	}

	tree := ParseMarkdown(text)
	marker := tree.NodeAt(ref.Offset + 1)
	if marker == NoNode || tree.Node(marker).Type != NodeTaskState || taskStateToken(tree, marker) != oldState {
		return &ReferenceError{Ref: ref, Err: ErrStaleReference}
	}

	tree.SetLeafText(tree.Node(marker).Children[1], newState)

	if err := r.pages.WritePage(ref.Page, RenderMarkdown(tree)); err != nil {
		return fmt.Errorf("write %s: %w", ref.Page, err)
	}

	r.log.Info("updated reference", "ref", ref.String(), "to", newState)

	if r.sync != nil {
		r.sync.ScheduleFileSync(ref.Page)
	}

	return nil
}
