package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const watchDebounce = 300 * time.Millisecond

// App wires the vault, the index and the services built on them
type App struct {
	Profile  *ResolvedProfile
	Vault    *Vault
	Index    *SQLiteIndex
	Cache    *IndexCache
	Indexer  *Indexer
	Syncer   *Syncer
	Resolver *Resolver
	Cycler   *Cycler
	Provider *TaskProvider

	log     *slog.Logger
	logFile io.Closer
}

// NewApp opens the index for the profile and starts the sync worker
func NewApp(profile *ResolvedProfile, log *slog.Logger, logFile io.Closer) (*App, error) {
	index, err := NewSQLiteIndex(profile.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	vault := NewVault(profile.VaultPath)
	cache := NewIndexCache()
	indexer := NewIndexer(index, cache, log)
	syncer := NewSyncer(vault, indexer, log)
	resolver := NewResolver(vault, syncer, log)

	app := &App{
		Profile:  profile,
		Vault:    vault,
		Index:    index,
		Cache:    cache,
		Indexer:  indexer,
		Syncer:   syncer,
		Resolver: resolver,
		Cycler:   NewCycler(index, resolver, log),
		Provider: NewTaskProvider(index),
		log:      log,
		logFile:  logFile,
	}

	syncer.Start()

	return app, nil
}

// Close drains pending syncs, then releases the index and log file
func (a *App) Close() error {
	a.Syncer.Stop()

	err := a.Index.Close()
	if a.logFile != nil {
		err = errors.Join(err, a.logFile.Close())
	}
	return err
}

// CycleOutcome is what a caller needs to report a cycle
type CycleOutcome struct {
	Result  *CycleResult
	Notices []string
}

// CycleTask cycles the task at pos in page, saves the page and re-indexes it.
// cursor mode cycles the task on the line under pos instead.
func (a *App) CycleTask(page string, pos int, cursor bool) (*CycleOutcome, error) {
	buf, err := OpenBuffer(a.Vault, page, pos)
	if err != nil {
		return nil, err
	}

	var result *CycleResult
	if cursor {
		result, err = a.Cycler.CycleAtCursor(buf)
	} else {
		result, err = a.Cycler.CycleAt(buf, pos)
	}

	// propagation may stop halfway; keep whatever the buffer already holds
	if buf.Dirty() {
		if saveErr := buf.Save(a.Vault); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		if _, indexErr := a.Indexer.IndexPage(page, buf.Text()); indexErr != nil {
			err = errors.Join(err, indexErr)
		}
		a.Cache.Invalidate(page)
	}

	return &CycleOutcome{Result: result, Notices: buf.Notices()}, err
}

// Watch re-indexes pages as they change until stop is closed
func (a *App) Watch(stop <-chan struct{}) error {
	watcher, err := NewWatcher(a.Vault)
	if err != nil {
		return err
	}

	debouncer := NewDebouncer(watchDebounce)

	go func() {
		<-stop
		watcher.Close()
	}()

	a.log.Info("watching vault", "vault", a.Vault.Root())

	watcher.Run(func(msg FileChangeMsg) {
		a.log.Debug("page changed", "page", msg.Page, "deleted", msg.Deleted)
		debouncer.Trigger(msg.Page, func() {
			a.Syncer.ScheduleFileSync(msg.Page)
		})
	})

	return nil
}
