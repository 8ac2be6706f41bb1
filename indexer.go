package main

import (
	"fmt"
	"log/slog"
)

// recordPrefixes are the key spaces one index pass owns for a page
var recordPrefixes = []string{taskKeyPrefix, taskStateKeyPrefix, attrKeyPrefix}

// IndexProgress reports how far a vault pass has come
type IndexProgress struct {
	Phase       string // "scanning" or "indexing"
	CurrentPage string
	PagesFound  int
	PagesDone   int
	TasksFound  int
}

// Indexer turns page text into task, state and attribute records
type Indexer struct {
	store IndexStore
	cache *IndexCache
	log   *slog.Logger
}

func NewIndexer(store IndexStore, cache *IndexCache, log *slog.Logger) *Indexer {
	return &Indexer{store: store, cache: cache, log: log.With("component", "indexer")}
}

// IndexPage runs one extraction pass over text and replaces the page's
// previous records with the new ones.
func (ix *Indexer) IndexPage(page, text string) (*Extraction, error) {
	ex := ExtractTasks(page, ParseMarkdown(text))

	entries := make([]KV, 0, len(ex.Tasks)+len(ex.States)+len(ex.Attributes))
	for _, task := range ex.Tasks {
		entries = append(entries, KV{Key: task.Key(), Value: task.Record})
	}
	for state, count := range ex.States {
		entries = append(entries, KV{Key: taskStateKeyPrefix + state, Value: count})
	}
	for name, value := range ex.Attributes {
		entries = append(entries, KV{Key: attrKeyPrefix + name, Value: value})
	}

	if err := ix.store.ReplacePage(page, recordPrefixes, entries); err != nil {
		return nil, fmt.Errorf("index %s: %w", page, err)
	}

	ix.log.Debug("indexed page", "page", page, "tasks", len(ex.Tasks), "states", len(ex.States))

	return ex, nil
}

// ClearPage removes every record derived from page
func (ix *Indexer) ClearPage(page string) error {
	for _, prefix := range recordPrefixes {
		if err := ix.store.DeletePrefix(page, prefix); err != nil {
			return fmt.Errorf("clear %s%s: %w", page, prefix, err)
		}
	}
	return nil
}

// RemovePage drops a deleted page from the index and the cache
func (ix *Indexer) RemovePage(page string) error {
	if ix.cache != nil {
		ix.cache.Invalidate(page)
	}
	return ix.ClearPage(page)
}

// SyncPage re-reads one page from the vault and indexes it. Pages whose
// modification time is unchanged since the last pass are skipped.
func (ix *Indexer) SyncPage(vault *Vault, page string) (int, error) {
	modTime, err := vault.ModTime(page)
	if err != nil {
		return 0, err
	}

	if ix.cache != nil {
		if tasks, ok := ix.cache.Get(page, modTime); ok {
			return tasks, nil
		}
	}

	text, err := vault.ReadPage(page)
	if err != nil {
		return 0, err
	}

	ex, err := ix.IndexPage(page, text)
	if err != nil {
		return 0, err
	}

	if ix.cache != nil {
		ix.cache.Set(page, modTime, len(ex.Tasks))
	}

	return len(ex.Tasks), nil
}

// IndexVault indexes every page of the vault and purges pages that no longer exist
func (ix *Indexer) IndexVault(vault *Vault, progress func(IndexProgress)) (int, error) {
	report := func(p IndexProgress) {
		if progress != nil {
			progress(p)
		}
	}

	report(IndexProgress{Phase: "scanning"})

	pages, err := vault.ListPages()
	if err != nil {
		return 0, err
	}

	report(IndexProgress{Phase: "scanning", PagesFound: len(pages)})

	total := 0
	seen := make(map[string]bool, len(pages))
	for i, page := range pages {
		seen[page] = true
		report(IndexProgress{
			Phase:       "indexing",
			CurrentPage: page,
			PagesFound:  len(pages),
			PagesDone:   i,
			TasksFound:  total,
		})

		n, err := ix.SyncPage(vault, page)
		if err != nil {
			return total, err
		}
		total += n
	}

	if lister, ok := ix.store.(interface{ Pages() ([]string, error) }); ok {
		indexed, err := lister.Pages()
		if err != nil {
			return total, err
		}
		for _, page := range indexed {
			if !seen[page] {
				ix.log.Info("purging removed page", "page", page)
				if err := ix.RemovePage(page); err != nil {
					return total, err
				}
			}
		}
	}

	ix.log.Info("indexed vault", "pages", len(pages), "tasks", total)

	return total, nil
}
