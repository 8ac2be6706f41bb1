package main

import "fmt"

// Edit replaces [From, To) with Insert and optionally moves the cursor
type Edit struct {
	From      int
	To        int
	Insert    string
	Selection *int
}

// Editor is the open page a user is working on.
// Implementations: Buffer
type Editor interface {
	Text() string
	Cursor() int
	CurrentPage() string
	Dispatch(edit Edit) error
	Flash(message string)
}

// Buffer is an in-memory copy of one page
type Buffer struct {
	page    string
	text    string
	cursor  int
	dirty   bool
	notices []string
	onFlash func(string)
}

func NewBuffer(page, text string, cursor int) *Buffer {
	return &Buffer{page: page, text: text, cursor: min(max(cursor, 0), len(text))}
}

// OpenBuffer loads a page from the store into a buffer
func OpenBuffer(pages PageStore, page string, cursor int) (*Buffer, error) {
	text, err := pages.ReadPage(page)
	if err != nil {
		return nil, err
	}
	return NewBuffer(page, text, cursor), nil
}

// OnFlash registers a callback for notifications
func (b *Buffer) OnFlash(fn func(string)) {
	b.onFlash = fn
}

func (b *Buffer) Text() string        { return b.text }
func (b *Buffer) Cursor() int         { return b.cursor }
func (b *Buffer) CurrentPage() string { return b.page }
func (b *Buffer) Dirty() bool         { return b.dirty }
func (b *Buffer) Notices() []string   { return b.notices }

// Dispatch applies a single range replacement
func (b *Buffer) Dispatch(edit Edit) error {
	if edit.From < 0 || edit.To < edit.From || edit.To > len(b.text) {
		return fmt.Errorf("edit [%d,%d) out of range for %d bytes", edit.From, edit.To, len(b.text))
	}

	b.text = b.text[:edit.From] + edit.Insert + b.text[edit.To:]
	b.dirty = true

	switch {
	case edit.Selection != nil:
		b.cursor = min(max(*edit.Selection, 0), len(b.text))
	case b.cursor >= edit.To:
		b.cursor += len(edit.Insert) - (edit.To - edit.From)
	}

	return nil
}

func (b *Buffer) Flash(message string) {
	b.notices = append(b.notices, message)
	if b.onFlash != nil {
		b.onFlash(message)
	}
}

// Save writes the buffer back when it has unsaved edits
func (b *Buffer) Save(pages PageStore) error {
	if !b.dirty {
		return nil
	}
	if err := pages.WritePage(b.page, b.text); err != nil {
		return err
	}
	b.dirty = false
	return nil
}
