package main

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdown = goldmark.New()

	taskMarkerRe  = regexp.MustCompile(`^\[([^\[\]:\r\n]+)\]([ \t\r\n]|$)`)
	wikiLinkRe    = regexp.MustCompile(`\[\[([^\[\]\r\n]+)\]\]`)
	deadlineRe    = regexp.MustCompile(`📅[ \t]*\d{4}-\d{2}-\d{2}`)
	bracketAttrRe = regexp.MustCompile(`\[([\p{L}_][\p{L}\p{N}_-]*)::[ \t]*([^\]\r\n]*)\]`)
	inlineAttrRe  = regexp.MustCompile(`(?:^|[ \t])(([\p{L}_][\p{L}\p{N}_-]*)::[ \t]*\S+)`)
	hashtagRe     = regexp.MustCompile(`(?:^|[ \t(])(#[\p{L}\p{N}_/-]+)`)
	fenceLineRe   = regexp.MustCompile("^[ \t]*(```|~~~)")
)

// span is a typed range waiting to become a node
type span struct {
	typ      NodeType
	from, to int
	info     string
	children []span
}

// ParseMarkdown parses a page into a lossless tree: rendering the root
// returns the input unchanged.
func ParseMarkdown(source string) *Tree {
	src := []byte(source)
	doc := markdown.Parser().Parse(text.NewReader(src))

	p := &treeBuilder{src: src, tree: &Tree{}}
	p.tree.Root = p.tree.add(Node{Type: NodeDocument, From: 0, To: len(src)})
	p.fill(p.tree.Root, 0, len(src), p.collect(doc))
	p.tree.LinkParents()

	return p.tree
}

type treeBuilder struct {
	src  []byte
	tree *Tree
}

// fill adds spans under parent, covering gaps with Text leaves
func (p *treeBuilder) fill(parent NodeID, from, to int, spans []span) {
	cursor := from

	for _, s := range spans {
		if s.from < cursor || s.to > to || s.from > s.to {
			continue
		}
		p.leaf(parent, cursor, s.from)

		id := p.tree.add(Node{Type: s.typ, From: s.from, To: s.to, Info: s.info})
		p.tree.Nodes[parent].Children = append(p.tree.Nodes[parent].Children, id)

		if s.typ == NodeTaskState {
			p.leaf(id, s.from, s.from+1)
			p.leaf(id, s.from+1, s.to-1)
			p.leaf(id, s.to-1, s.to)
		} else {
			p.fill(id, s.from, s.to, s.children)
		}

		cursor = s.to
	}

	p.leaf(parent, cursor, to)
}

func (p *treeBuilder) leaf(parent NodeID, from, to int) {
	if from >= to {
		return
	}
	id := p.tree.add(Node{Type: NodeText, From: from, To: to, Text: string(p.src[from:to])})
	p.tree.Nodes[parent].Children = append(p.tree.Nodes[parent].Children, id)
}

// collect returns the typed block spans (list items, fenced code) below n
func (p *treeBuilder) collect(n ast.Node) []span {
	var spans []span

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}

		switch block := c.(type) {
		case *ast.ListItem:
			from, to, ok := p.blockRange(block)
			if !ok {
				continue
			}
			item := span{typ: NodeListItem, from: from, to: to}
			if task, ok := p.taskSpan(block); ok {
				item.children = append(item.children, task)
			}
			item.children = append(item.children, p.collect(block)...)
			spans = append(spans, item)

		case *ast.FencedCodeBlock:
			from, to, ok := p.fenceRange(block)
			if !ok {
				continue
			}
			spans = append(spans, span{typ: NodeFencedCode, from: from, to: to, info: string(block.Language(p.src))})

		default:
			spans = append(spans, p.collect(block)...)
		}
	}

	return spans
}

// taskSpan recognizes "[token] ..." at the start of a list item's first block
func (p *treeBuilder) taskSpan(item *ast.ListItem) (span, bool) {
	first := item.FirstChild()
	if first == nil || first.Type() != ast.TypeBlock {
		return span{}, false
	}

	switch first.(type) {
	case *ast.TextBlock, *ast.Paragraph:
	default:
		return span{}, false
	}

	lines := first.Lines()
	if lines.Len() == 0 {
		return span{}, false
	}

	from := lines.At(0).Start
	to := p.trimEOL(from, lines.At(lines.Len()-1).Stop)

	m := taskMarkerRe.FindSubmatchIndex(p.src[from:to])
	if m == nil {
		return span{}, false
	}

	stateEnd := from + m[3] + 1
	task := span{typ: NodeTask, from: from, to: to}
	task.children = append(task.children, span{typ: NodeTaskState, from: from, to: stateEnd})
	task.children = append(task.children, p.inlineSpans(stateEnd, to)...)

	return task, true
}

// inlineSpans finds links, deadlines, attributes and hashtags in [from, to).
// Earlier patterns win on overlap.
func (p *treeBuilder) inlineSpans(from, to int) []span {
	content := p.src[from:to]
	var spans []span

	accept := func(typ NodeType, start, end int) {
		start += from
		end += from
		for _, s := range spans {
			if start < s.to && s.from < end {
				return
			}
		}
		spans = append(spans, span{typ: typ, from: start, to: end})
	}

	for _, m := range wikiLinkRe.FindAllIndex(content, -1) {
		accept(NodeWikiLink, m[0], m[1])
	}
	for _, m := range deadlineRe.FindAllIndex(content, -1) {
		accept(NodeDeadline, m[0], m[1])
	}
	for _, m := range bracketAttrRe.FindAllIndex(content, -1) {
		accept(NodeAttribute, m[0], m[1])
	}
	for _, m := range inlineAttrRe.FindAllSubmatchIndex(content, -1) {
		accept(NodeAttribute, m[2], m[3])
	}
	for _, m := range hashtagRe.FindAllSubmatchIndex(content, -1) {
		accept(NodeHashtag, m[2], m[3])
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })

	return spans
}

// blockRange computes the source range of a block from its lines and
// descendants. List items are widened to the start of their marker line.
func (p *treeBuilder) blockRange(n ast.Node) (int, int, bool) {
	from, to, ok := 0, 0, false
	extend := func(f, t int) {
		if !ok {
			from, to, ok = f, t, true
			return
		}
		from = min(from, f)
		to = max(to, t)
	}

	if fence, isFence := n.(*ast.FencedCodeBlock); isFence {
		return p.fenceRange(fence)
	}

	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		extend(seg.Start, seg.Stop)
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		if f, t, childOK := p.blockRange(c); childOK {
			extend(f, t)
		}
	}

	if !ok {
		return 0, 0, false
	}
	if n.Kind() == ast.KindListItem {
		from = p.lineStart(from)
	}

	return from, p.trimEOL(from, to), true
}

// fenceRange covers the opening fence line through the closing fence line
func (p *treeBuilder) fenceRange(fence *ast.FencedCodeBlock) (int, int, bool) {
	lines := fence.Lines()

	var from, bodyEnd int
	switch {
	case fence.Info != nil:
		from = p.lineStart(fence.Info.Segment.Start)
		bodyEnd = p.nextLine(fence.Info.Segment.Stop)
	case lines.Len() > 0:
		first := p.lineStart(lines.At(0).Start)
		if first == 0 {
			return 0, 0, false
		}
		from = p.lineStart(first - 1)
		bodyEnd = first
	default:
		return 0, 0, false
	}

	if lines.Len() > 0 {
		bodyEnd = max(bodyEnd, lines.At(lines.Len()-1).Stop)
	}
	if bodyEnd > 0 && bodyEnd < len(p.src) && p.src[bodyEnd-1] != '\n' {
		bodyEnd = p.nextLine(bodyEnd)
	}

	to := bodyEnd
	if bodyEnd < len(p.src) && fenceLineRe.Match(p.src[bodyEnd:]) {
		to = p.nextLine(bodyEnd)
	}

	return from, p.trimEOL(from, to), true
}

func (p *treeBuilder) lineStart(pos int) int {
	for pos > 0 && p.src[pos-1] != '\n' {
		pos--
	}
	return pos
}

// nextLine returns the offset just past the newline ending the line at pos
func (p *treeBuilder) nextLine(pos int) int {
	for pos < len(p.src) && p.src[pos] != '\n' {
		pos++
	}
	if pos < len(p.src) {
		pos++
	}
	return pos
}

func (p *treeBuilder) trimEOL(from, to int) int {
	to = min(to, len(p.src))
	for to > from && (p.src[to-1] == '\n' || p.src[to-1] == '\r') {
		to--
	}
	return to
}

// RenderMarkdown turns a tree back into page text
func RenderMarkdown(t *Tree) string {
	return t.Render(t.Root)
}

// isQueryBlock reports whether a fenced code node embeds a task query
func isQueryBlock(n *Node) bool {
	switch strings.ToLower(strings.TrimSpace(n.Info)) {
	case "query", "tasks":
		return true
	}
	return false
}
