package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestIndexer(t *testing.T) (*Indexer, *SQLiteIndex) {
	t.Helper()
	index := newTestIndex(t)
	return NewIndexer(index, NewIndexCache(), discardLogger()), index
}

func TestIndexPageWritesRecords(t *testing.T) {
	indexer, index := newTestIndexer(t)

	text := "- [ ] Buy milk 📅 2024-01-05 #errand prio:: high\n- [/] Draft\n- [/] Review\n"
	if _, err := indexer.IndexPage("inbox", text); err != nil {
		t.Fatalf("IndexPage() error = %v", err)
	}

	all, err := index.QueryPrefix("")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"inbox/attr:prio", "inbox/task:2", "inbox/task:53", "inbox/task:65", "inbox/taskState:/"}
	if got := entryKeys(all); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}

	for _, entry := range all {
		if entry.Key == "taskState:/" && string(entry.Value) != "2" {
			t.Errorf("taskState:/ = %s, want 2", entry.Value)
		}
	}
}

func TestIndexPageIdempotent(t *testing.T) {
	indexer, index := newTestIndexer(t)
	text := "- [ ] One #a\n- [-] Two\n- [x] Three [owner:: bob]\n"

	snapshot := func() []IndexEntry {
		entries, err := index.QueryPrefix("")
		if err != nil {
			t.Fatal(err)
		}
		return entries
	}

	if _, err := indexer.IndexPage("p", text); err != nil {
		t.Fatal(err)
	}
	first := snapshot()

	if _, err := indexer.IndexPage("p", text); err != nil {
		t.Fatal(err)
	}
	second := snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second pass differs:\n%v\n%v", first, second)
	}
}

func TestIndexPageFreshSnapshot(t *testing.T) {
	indexer, index := newTestIndexer(t)

	if _, err := indexer.IndexPage("p", "- [/] a\n- [/] b\n- [-] c [est:: 2]\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := indexer.IndexPage("p", "- [/] a\n"); err != nil {
		t.Fatal(err)
	}

	all, err := index.QueryPrefix("")
	if err != nil {
		t.Fatal(err)
	}

	if got, want := entryKeys(all), []string{"p/task:2", "p/taskState:/"}; !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	for _, entry := range all {
		if entry.Key == "taskState:/" && string(entry.Value) != "1" {
			t.Errorf("count = %s, want 1", entry.Value)
		}
	}
}

func TestIndexPageLeavesOtherPages(t *testing.T) {
	indexer, index := newTestIndexer(t)

	if _, err := indexer.IndexPage("a", "- [/] a\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := indexer.IndexPage("b", "no tasks at all\n"); err != nil {
		t.Fatal(err)
	}

	states, err := index.QueryPrefix(taskStateKeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if got := entryKeys(states); !reflect.DeepEqual(got, []string{"a/taskState:/"}) {
		t.Errorf("states = %v", got)
	}
}

func TestIndexVault(t *testing.T) {
	vault := newTestVault(t, map[string]string{
		"inbox":          "- [ ] one\n- [x] two\n",
		"projects/alpha": "- [/] three\n",
		"notes":          "nothing here\n",
	})
	indexer, index := newTestIndexer(t)

	var progress []IndexProgress
	total, err := indexer.IndexVault(vault, func(p IndexProgress) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("IndexVault() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(progress) < 2 || progress[0].Phase != "scanning" || progress[len(progress)-1].Phase != "indexing" {
		t.Errorf("progress = %+v", progress)
	}

	// stale records for a page that no longer exists are purged
	if err := index.BatchSet("deleted", []KV{{Key: "task:2", Value: TaskRecord{Name: "ghost"}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := indexer.IndexVault(vault, nil); err != nil {
		t.Fatal(err)
	}

	pages, err := index.Pages()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"inbox", "projects/alpha"}; !reflect.DeepEqual(pages, want) {
		t.Errorf("Pages() = %v, want %v", pages, want)
	}
}

func TestSyncPageUsesCache(t *testing.T) {
	vault := newTestVault(t, map[string]string{"p": "- [ ] a\n"})
	indexer, index := newTestIndexer(t)

	if n, err := indexer.SyncPage(vault, "p"); err != nil || n != 1 {
		t.Fatalf("SyncPage() = %d, %v", n, err)
	}

	// Wipe the index behind the cache's back: an unchanged file is not re-read.
	if err := indexer.ClearPage("p"); err != nil {
		t.Fatal(err)
	}
	if n, err := indexer.SyncPage(vault, "p"); err != nil || n != 1 {
		t.Fatalf("cached SyncPage() = %d, %v", n, err)
	}
	if entries, _ := index.QueryPrefix(taskKeyPrefix); len(entries) != 0 {
		t.Errorf("cached sync rewrote the index: %v", entryKeys(entries))
	}

	path, _ := vault.PagePath("p")
	later := time.Now().Add(time.Minute)
	if err := os.WriteFile(path, []byte("- [ ] a\n- [ ] b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	if n, err := indexer.SyncPage(vault, "p"); err != nil || n != 2 {
		t.Errorf("SyncPage() after edit = %d, %v; want 2", n, err)
	}
}

func TestRemovePage(t *testing.T) {
	vault := newTestVault(t, map[string]string{"p": "- [/] a [x:: 1]\n"})
	indexer, index := newTestIndexer(t)

	if _, err := indexer.SyncPage(vault, "p"); err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(vault.Root(), "p.md"))

	if err := indexer.RemovePage("p"); err != nil {
		t.Fatalf("RemovePage() error = %v", err)
	}

	all, err := index.QueryPrefix("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("entries after remove = %v", entryKeys(all))
	}
	if _, ok := indexer.cache.Get("p", time.Now()); ok {
		t.Error("cache still holds removed page")
	}
}
