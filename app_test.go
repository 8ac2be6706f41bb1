package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestApp(t *testing.T, pages map[string]string) *App {
	t.Helper()

	vault := newTestVault(t, pages)
	profile := &ResolvedProfile{
		Name:         "test",
		VaultPath:    vault.Root(),
		DatabasePath: filepath.Join(t.TempDir(), "index.db"),
	}

	app, err := NewApp(profile, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { app.Close() })

	if _, err := app.Indexer.IndexVault(app.Vault, nil); err != nil {
		t.Fatal(err)
	}
	return app
}

func TestAppCycleTask(t *testing.T) {
	app := newTestApp(t, map[string]string{
		"inbox": "- [ ] Call [[copy@2]]\n",
		"copy":  "- [ ] Call\n",
	})

	outcome, err := app.CycleTask("inbox", 2, false)
	if err != nil {
		t.Fatalf("CycleTask() error = %v", err)
	}
	if outcome.Result == nil || outcome.Result.From != " " || outcome.Result.To != "x" {
		t.Fatalf("result = %+v", outcome.Result)
	}

	if got := readPage(t, app.Vault, "inbox"); got != "- [x] Call [[copy@2]]\n" {
		t.Errorf("inbox = %q", got)
	}

	// the edited page is re-indexed synchronously
	done, err := app.Provider.Query(ParseQuery("done\npage inbox"))
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].Pos != 2 {
		t.Errorf("done tasks in inbox = %+v", done)
	}

	// the referenced copy is written and handed to the sync worker
	if got := readPage(t, app.Vault, "copy"); got != "- [x] Call\n" {
		t.Errorf("copy = %q", got)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		tasks, err := app.Provider.Query(ParseQuery("done\npage copy"))
		if err != nil {
			t.Fatal(err)
		}
		if len(tasks) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("copy was never re-indexed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAppCycleTaskMissingNode(t *testing.T) {
	app := newTestApp(t, map[string]string{"inbox": "# Heading\n\n- [ ] Task\n"})

	outcome, err := app.CycleTask("inbox", 0, false)
	if err != nil {
		t.Fatalf("CycleTask() error = %v", err)
	}
	if outcome.Result != nil {
		t.Errorf("result = %+v, want nil", outcome.Result)
	}
	if len(outcome.Notices) != 1 || !strings.Contains(outcome.Notices[0], "no task at position 0") {
		t.Errorf("notices = %v", outcome.Notices)
	}
	if got := readPage(t, app.Vault, "inbox"); got != "# Heading\n\n- [ ] Task\n" {
		t.Errorf("page changed: %q", got)
	}
}

func TestAppCycleTaskMissingPage(t *testing.T) {
	app := newTestApp(t, nil)

	if _, err := app.CycleTask("nope", 2, false); err == nil {
		t.Error("cycling a missing page should fail")
	}
}

func TestAppWatch(t *testing.T) {
	app := newTestApp(t, map[string]string{"inbox": "- [ ] a\n"})

	stop := make(chan struct{})
	watchDone := make(chan error, 1)
	go func() { watchDone <- app.Watch(stop) }()

	// give the watcher time to register the vault directories
	time.Sleep(100 * time.Millisecond)

	if err := app.Vault.WritePage("inbox", "- [ ] a\n- [ ] b\n"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		tasks, err := app.Provider.Query(ParseQuery("page inbox"))
		if err != nil {
			t.Fatal(err)
		}
		if len(tasks) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watch never re-indexed inbox, have %d task(s)", len(tasks))
		}
		time.Sleep(20 * time.Millisecond)
	}

	close(stop)
	select {
	case err := <-watchDone:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Watch did not return after stop")
	}
}
