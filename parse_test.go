package main

import (
	"strings"
	"testing"
)

func TestParseMarkdownRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "plain text", input: "# Title\n\nSome paragraph.\n"},
		{name: "single task", input: "- [ ] Buy milk\n"},
		{name: "no trailing newline", input: "- [x] Done thing"},
		{name: "custom state", input: "- [/] In progress #work\n- [-] Cancelled\n"},
		{name: "nested tasks", input: "- [ ] Parent\n  - [x] Child one\n  - [ ] Child two\n"},
		{name: "links and dates", input: "- [ ] Call [[people/bob]] 📅 2024-01-05 [prio:: high]\n"},
		{name: "fenced query", input: "Intro\n\n```query\ntask where done = false\n```\n\n- [ ] After\n"},
		{name: "crlf", input: "- [ ] One\r\n- [x] Two\r\n"},
		{name: "unicode", input: "- [ ] Café ☕ #día\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := ParseMarkdown(tt.input)
			if got := RenderMarkdown(tree); got != tt.input {
				t.Errorf("RenderMarkdown() = %q, want %q", got, tt.input)
			}
		})
	}
}

func TestParseMarkdownTaskNodes(t *testing.T) {
	input := "# Tasks\n\n- [ ] First\n- [x] Second\n- not a task\n- [/] Third\n"
	tree := ParseMarkdown(input)

	tasks := tree.FindAll(tree.Root, NodeTask)
	if len(tasks) != 3 {
		t.Fatalf("found %d tasks, want 3", len(tasks))
	}

	wantStates := []string{" ", "x", "/"}
	for i, id := range tasks {
		marker := tree.Node(id).Children[0]
		if tree.Node(marker).Type != NodeTaskState {
			t.Fatalf("task %d first child is %s, want TaskState", i, tree.Node(marker).Type)
		}
		if got := taskStateToken(tree, marker); got != wantStates[i] {
			t.Errorf("task %d state = %q, want %q", i, got, wantStates[i])
		}
		if input[tree.Node(id).From] != '[' {
			t.Errorf("task %d starts at %q, want '['", i, input[tree.Node(id).From])
		}
	}
}

func TestParseMarkdownStateTokenRoundTrip(t *testing.T) {
	input := "- [!] Urgent\n"
	tree := ParseMarkdown(input)

	task := tree.FindAll(tree.Root, NodeTask)[0]
	rendered := tree.Render(task)

	again := ParseMarkdown("- " + rendered + "\n")
	tasks := again.FindAll(again.Root, NodeTask)
	if len(tasks) != 1 {
		t.Fatalf("re-parse found %d tasks, want 1", len(tasks))
	}
	if got := taskStateToken(again, again.Node(tasks[0]).Children[0]); got != "!" {
		t.Errorf("state after round trip = %q, want %q", got, "!")
	}
}

func TestParseMarkdownNotTasks(t *testing.T) {
	inputs := []string{
		"- [[link]] is not a task\n",
		"- [prio:: high] attribute first\n",
		"[ ] outside a list\n",
		"- []\n",
	}

	for _, input := range inputs {
		tree := ParseMarkdown(input)
		if tasks := tree.FindAll(tree.Root, NodeTask); len(tasks) != 0 {
			t.Errorf("ParseMarkdown(%q) found %d tasks, want 0", input, len(tasks))
		}
	}
}

func TestParseMarkdownInlineNodes(t *testing.T) {
	input := "- [ ] Ping [[team@12]] #ops 📅 2024-02-01 owner:: ana\n"
	tree := ParseMarkdown(input)

	counts := map[NodeType]int{}
	tree.Walk(tree.Root, func(id NodeID) WalkStatus {
		counts[tree.Node(id).Type]++
		return WalkContinue
	})

	want := map[NodeType]int{
		NodeListItem:  1,
		NodeTask:      1,
		NodeTaskState: 1,
		NodeWikiLink:  1,
		NodeHashtag:   1,
		NodeDeadline:  1,
		NodeAttribute: 1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s count = %d, want %d", typ, counts[typ], n)
		}
	}

	link := tree.FindAll(tree.Root, NodeWikiLink)[0]
	if got := tree.Render(link); got != "[[team@12]]" {
		t.Errorf("wikilink = %q", got)
	}
}

func TestParseMarkdownFencedCode(t *testing.T) {
	input := "before\n\n```query\n- [ ] inside query\n```\n\nafter\n"
	tree := ParseMarkdown(input)

	blocks := tree.FindAll(tree.Root, NodeFencedCode)
	if len(blocks) != 1 {
		t.Fatalf("found %d fenced blocks, want 1", len(blocks))
	}

	block := tree.Node(blocks[0])
	if !isQueryBlock(block) {
		t.Errorf("info %q not recognized as query block", block.Info)
	}

	got := tree.Render(blocks[0])
	if !strings.HasPrefix(got, "```query") || !strings.HasSuffix(got, "```") {
		t.Errorf("fenced block range = %q", got)
	}

	if tasks := tree.FindAll(tree.Root, NodeTask); len(tasks) != 0 {
		t.Errorf("task inside code fence was parsed: %d", len(tasks))
	}
}

func TestTreeNodeAt(t *testing.T) {
	input := "- [x] Done\n- [ ] Open\n"
	tree := ParseMarkdown(input)

	second := strings.Index(input, "[ ]")

	marker := tree.NodeAt(second + 1)
	if marker == NoNode || tree.Node(marker).Type != NodeTaskState {
		t.Fatalf("NodeAt(%d) = %v, want TaskState", second+1, marker)
	}
	if tree.Node(marker).From != second {
		t.Errorf("marker From = %d, want %d", tree.Node(marker).From, second)
	}

	if at := tree.NodeAt(len(input) + 5); at != NoNode {
		t.Errorf("NodeAt past end = %v, want NoNode", at)
	}
}

func TestTreeDetachAndParents(t *testing.T) {
	tree := ParseMarkdown("- [ ] Task #tag\n")

	task := tree.FindAll(tree.Root, NodeTask)[0]
	if item := tree.Parent(task); tree.Node(item).Type != NodeListItem {
		t.Fatalf("task parent = %s, want ListItem", tree.Node(item).Type)
	}

	tag := tree.FindAll(tree.Root, NodeHashtag)[0]
	if tree.Ancestor(tag, NodeListItem) == NoNode {
		t.Error("hashtag has no ListItem ancestor")
	}

	tree.Detach(tag)
	if tree.ChildIndex(tag) != -1 {
		t.Error("detached node still has a child index")
	}
	if got := RenderMarkdown(tree); got != "- [ ] Task \n" {
		t.Errorf("render after detach = %q", got)
	}
}

func TestTreeSetLeafText(t *testing.T) {
	tree := ParseMarkdown("- [ ] Task\n")

	marker := tree.FindAll(tree.Root, NodeTaskState)[0]
	tree.SetLeafText(tree.Node(marker).Children[1], "x")

	if got := RenderMarkdown(tree); got != "- [x] Task\n" {
		t.Errorf("render = %q, want %q", got, "- [x] Task\n")
	}
	if got := tree.LeafText(tree.Node(marker).Children[1]); got != "x" {
		t.Errorf("LeafText = %q", got)
	}
}
