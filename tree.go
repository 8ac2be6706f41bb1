package main

import "strings"

// NodeType tags a parse tree node
type NodeType string

const (
	NodeDocument   NodeType = "Document"
	NodeText       NodeType = "Text"
	NodeListItem   NodeType = "ListItem"
	NodeTask       NodeType = "Task"
	NodeTaskState  NodeType = "TaskState"
	NodeWikiLink   NodeType = "WikiLink"
	NodeDeadline   NodeType = "DeadlineDate"
	NodeHashtag    NodeType = "Hashtag"
	NodeAttribute  NodeType = "Attribute"
	NodeFencedCode NodeType = "FencedCode"
)

// NodeID indexes a node inside its Tree
type NodeID int

// NoNode is the zero parent of the root and of unlinked nodes
const NoNode NodeID = -1

// Node is a single parse tree node. Leaves carry Text; everything else is
// the concatenation of its children.
type Node struct {
	Type     NodeType
	From     int
	To       int
	Text     string
	Info     string // fenced code info string
	Children []NodeID
	Parent   NodeID
}

// Tree is an arena of nodes. Parent links are only valid after LinkParents.
type Tree struct {
	Nodes []Node
	Root  NodeID
}

// WalkStatus is returned by a visitor to control descent
type WalkStatus int

const (
	WalkContinue WalkStatus = iota
	WalkSkipChildren
)

func (t *Tree) add(n Node) NodeID {
	n.Parent = NoNode
	t.Nodes = append(t.Nodes, n)
	return NodeID(len(t.Nodes) - 1)
}

// Node returns the node for id
func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

// Walk visits id and its descendants in document order
func (t *Tree) Walk(id NodeID, visit func(NodeID) WalkStatus) {
	if visit(id) == WalkSkipChildren {
		return
	}

	// Copy: visitors may detach children while we iterate.
	children := append([]NodeID(nil), t.Nodes[id].Children...)
	for _, child := range children {
		t.Walk(child, visit)
	}
}

// LinkParents fills in parent indices for every node reachable from the root
func (t *Tree) LinkParents() {
	t.Walk(t.Root, func(id NodeID) WalkStatus {
		for _, child := range t.Nodes[id].Children {
			t.Nodes[child].Parent = id
		}
		return WalkContinue
	})
}

// Parent returns the parent of id, or NoNode
func (t *Tree) Parent(id NodeID) NodeID {
	return t.Nodes[id].Parent
}

// Ancestor returns the closest ancestor of id with the given type
func (t *Tree) Ancestor(id NodeID, typ NodeType) NodeID {
	for p := t.Parent(id); p != NoNode; p = t.Parent(p) {
		if t.Nodes[p].Type == typ {
			return p
		}
	}
	return NoNode
}

// FindAll returns every node of the given type under id, in document order
func (t *Tree) FindAll(id NodeID, typ NodeType) []NodeID {
	var found []NodeID

	t.Walk(id, func(n NodeID) WalkStatus {
		if t.Nodes[n].Type == typ {
			found = append(found, n)
		}
		return WalkContinue
	})

	return found
}

// NodeAt returns the deepest typed (non-Text) node whose range contains pos
func (t *Tree) NodeAt(pos int) NodeID {
	found := NoNode

	t.Walk(t.Root, func(id NodeID) WalkStatus {
		n := &t.Nodes[id]
		if pos < n.From || pos >= n.To {
			return WalkSkipChildren
		}
		if n.Type != NodeText {
			found = id
		}
		return WalkContinue
	})

	return found
}

// Detach removes id from its parent's child list. Requires LinkParents.
func (t *Tree) Detach(id NodeID) {
	parent := t.Nodes[id].Parent
	if parent == NoNode {
		return
	}

	children := t.Nodes[parent].Children
	for i, child := range children {
		if child == id {
			t.Nodes[parent].Children = append(children[:i:i], children[i+1:]...)
			break
		}
	}

	t.Nodes[id].Parent = NoNode
}

// ChildIndex returns the position of id among its parent's children
func (t *Tree) ChildIndex(id NodeID) int {
	parent := t.Nodes[id].Parent
	if parent == NoNode {
		return -1
	}
	for i, child := range t.Nodes[parent].Children {
		if child == id {
			return i
		}
	}
	return -1
}

// Render returns the text of the subtree rooted at id
func (t *Tree) Render(id NodeID) string {
	var b strings.Builder
	t.render(id, &b)
	return b.String()
}

func (t *Tree) render(id NodeID, b *strings.Builder) {
	n := &t.Nodes[id]
	if len(n.Children) == 0 {
		b.WriteString(n.Text)
		return
	}
	for _, child := range n.Children {
		t.render(child, b)
	}
}

// RenderNodes concatenates the rendered text of several nodes
func (t *Tree) RenderNodes(ids []NodeID) string {
	var b strings.Builder
	for _, id := range ids {
		t.render(id, &b)
	}
	return b.String()
}

// LeafText returns the literal text of the single leaf under a typed inline node
func (t *Tree) LeafText(id NodeID) string {
	n := &t.Nodes[id]
	if len(n.Children) == 0 {
		return n.Text
	}
	return t.Render(id)
}

// SetLeafText replaces the text of a typed inline node's single leaf
func (t *Tree) SetLeafText(id NodeID, text string) {
	n := &t.Nodes[id]
	if len(n.Children) == 0 {
		n.Text = text
		return
	}
	t.Nodes[n.Children[0]].Text = text
}
