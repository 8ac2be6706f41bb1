package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	taskKeyPrefix      = "task:"
	taskStateKeyPrefix = "taskState:"
	attrKeyPrefix      = "attr:"
	deadlineGlyph      = "📅"
)

// TaskRecord is what gets stored for each task occurrence. Attributes are
// flattened next to the fixed fields when encoded; fixed fields win on clash.
type TaskRecord struct {
	Name       string
	Done       bool
	State      string
	Deadline   string
	Tags       []string
	Nested     string
	Attributes map[string]AttrValue
}

func (r TaskRecord) fields() map[string]any {
	out := make(map[string]any, len(r.Attributes)+6)
	for key, value := range r.Attributes {
		out[key] = value
	}

	out["name"] = r.Name
	out["done"] = r.Done
	out["state"] = r.State
	if r.Deadline != "" {
		out["deadline"] = r.Deadline
	}
	if len(r.Tags) > 0 {
		out["tags"] = r.Tags
	}
	if r.Nested != "" {
		out["nested"] = r.Nested
	}

	return out
}

func (r TaskRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields())
}

func (r *TaskRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = TaskRecord{}
	targets := map[string]any{
		"name":     &r.Name,
		"done":     &r.Done,
		"state":    &r.State,
		"deadline": &r.Deadline,
		"tags":     &r.Tags,
		"nested":   &r.Nested,
	}

	for key, value := range raw {
		if target, ok := targets[key]; ok {
			if err := json.Unmarshal(value, target); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
			continue
		}

		var attr AttrValue
		if err := json.Unmarshal(value, &attr); err != nil {
			return fmt.Errorf("attribute %s: %w", key, err)
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]AttrValue)
		}
		r.Attributes[key] = attr
	}

	return nil
}

// ExtractedTask pairs a record with the offset of its state marker
type ExtractedTask struct {
	Pos    int
	Record TaskRecord
}

// Key is the index key of the task occurrence
func (e ExtractedTask) Key() string {
	return taskKey(e.Pos)
}

// Extraction is the result of one pass over a page
type Extraction struct {
	Page       string
	Tasks      []ExtractedTask
	Attributes map[string]AttrValue
	States     map[string]int
}

func taskKey(pos int) string {
	return taskKeyPrefix + strconv.Itoa(pos)
}

// isBinaryState reports whether token is one of the plain done/not-done marks
func isBinaryState(token string) bool {
	return token == " " || isDoneState(token)
}

func isDoneState(token string) bool {
	return token == "x" || token == "X"
}

// ExtractTasks walks a parsed page and normalizes every task it finds.
// The tree is modified: query blocks, deadlines and attributes are removed.
func ExtractTasks(page string, t *Tree) *Extraction {
	ex := &Extraction{
		Page:   page,
		States: make(map[string]int),
	}

	t.LinkParents()
	for _, block := range t.FindAll(t.Root, NodeFencedCode) {
		if isQueryBlock(t.Node(block)) {
			t.Detach(block)
		}
	}

	t.Walk(t.Root, func(id NodeID) WalkStatus {
		if t.Node(id).Type != NodeTask {
			return WalkContinue
		}

		task, ok := extractTask(page, t, id)
		if !ok {
			return WalkSkipChildren
		}

		for key, value := range task.Record.Attributes {
			if ex.Attributes == nil {
				ex.Attributes = make(map[string]AttrValue)
			}
			ex.Attributes[key] = value
		}
		if !isBinaryState(task.Record.State) {
			ex.States[task.Record.State]++
		}

		ex.Tasks = append(ex.Tasks, task)
		return WalkSkipChildren
	})

	return ex
}

func extractTask(page string, t *Tree, id NodeID) (ExtractedTask, bool) {
	children := t.Node(id).Children
	if len(children) == 0 || t.Node(children[0]).Type != NodeTaskState {
		return ExtractedTask{}, false
	}

	marker := children[0]
	state := taskStateToken(t, marker)
	rec := TaskRecord{
		State: state,
		Done:  isDoneState(state),
	}

	for _, link := range t.FindAll(id, NodeWikiLink) {
		rewriteLocalLink(page, t, link)
	}

	t.Walk(id, func(n NodeID) WalkStatus {
		switch t.Node(n).Type {
		case NodeDeadline:
			rec.Deadline = strings.TrimSpace(strings.TrimPrefix(t.Render(n), deadlineGlyph))
			t.Detach(n)
			return WalkSkipChildren
		case NodeHashtag:
			rec.Tags = appendTag(rec.Tags, strings.TrimPrefix(t.Render(n), "#"))
			return WalkSkipChildren
		}
		return WalkContinue
	})

	rec.Attributes = extractAttributes(t, id)

	// Re-read: deadlines and attributes were detached above.
	children = t.Node(id).Children
	var rest []NodeID
	for _, child := range children {
		if child != marker {
			rest = append(rest, child)
		}
	}
	rec.Name = strings.Join(strings.Fields(t.RenderNodes(rest)), " ")

	if item := t.Parent(id); item != NoNode && t.Node(item).Type == NodeListItem {
		siblings := t.Node(item).Children
		if i := t.ChildIndex(id); i >= 0 && i+1 < len(siblings) {
			rec.Nested = strings.TrimSpace(t.RenderNodes(siblings[i+1:]))
		}
	}

	return ExtractedTask{Pos: t.Node(id).From, Record: rec}, true
}

// taskStateToken reads the token between the brackets of a TaskState node
func taskStateToken(t *Tree, marker NodeID) string {
	children := t.Node(marker).Children
	if len(children) < 3 {
		return ""
	}
	return t.Node(children[1]).Text
}

// rewriteLocalLink turns [[@pos]] into [[page@pos]]
func rewriteLocalLink(page string, t *Tree, link NodeID) {
	target := strings.TrimSuffix(strings.TrimPrefix(t.Render(link), "[["), "]]")
	if strings.HasPrefix(target, "@") {
		t.SetLeafText(link, "[["+page+target+"]]")
	}
}

func appendTag(tags []string, tag string) []string {
	for _, existing := range tags {
		if existing == tag {
			return tags
		}
	}
	return append(tags, tag)
}
