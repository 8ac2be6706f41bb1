package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/savioxavier/termlink"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	buildSHA = ""
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	vault    string
	profile  string
	database string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "otsync [query-or-file]",
		Short: "Index, query and cycle markdown tasks across a vault",
		Long: `otsync keeps a SQLite index of the tasks in a markdown vault.

Tasks are list items starting with a state marker: [ ], [x] or any custom
token like [/] or [-]. Cycling a task rewrites its marker and every copy of
it linked through [[page@offset]] references.

Supported query filters:
  done / not done             Completion state
  due today                   Deadline today (also tomorrow, yesterday)
  due before|after|on <date>  Deadline comparisons (YYYY-MM-DD)
  has due / no due            Deadline presence
  tag <name>                  Tasks carrying #name
  state "<token>"             Tasks in a custom state
  page <name>                 Tasks on one page
  path includes <text>        Tasks whose page contains text
  sort by due|name|page|state|pos
  group by page|folder|state
  limit <n>`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts, args)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.vault, "vault", "", "path to the markdown vault")
	rootCmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "profile name from config")
	rootCmd.PersistentFlags().StringVar(&opts.database, "db", "", "index database path (default <vault>/.otsync/index.db)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(indexCmd(opts))
	rootCmd.AddCommand(queryCmd(opts))
	rootCmd.AddCommand(cycleCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))

	return rootCmd
}

func indexCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index every page of the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			tasks, err := app.Indexer.IndexVault(app.Vault, nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d task(s) in %s\n", tasks, app.Vault.Root())
			return nil
		},
	}
}

func queryCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [query-or-file]",
		Short: "Print the tasks matching a query",
		Long: `Print the tasks matching a query.

The argument is either a markdown file holding ` + "```tasks" + ` blocks or an
inline query; separate inline clauses with ";". Without an argument the
profile's query is used, and without that every task is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.Indexer.IndexVault(app.Vault, nil); err != nil {
				return err
			}

			sections, err := loadSections(app, args)
			if err != nil {
				return err
			}

			if asJSON {
				return writeSectionsJSON(cmd.OutOrStdout(), sections)
			}

			writeSections(cmd.OutOrStdout(), app.Vault, sections)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")

	return cmd
}

func cycleCmd(opts *globalOptions) *cobra.Command {
	var atCursor bool

	cmd := &cobra.Command{
		Use:   "cycle <page> <pos>",
		Short: "Advance the state of the task at a byte offset",
		Long: `Advance the state of a task and propagate it to linked copies.

pos is the byte offset of the task's "[" marker, the same offset used in
[[page@pos]] references. With --cursor, pos may point anywhere on the task.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil || pos < 0 {
				return fmt.Errorf("invalid position %q", args[1])
			}

			app, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			// custom states are rotated through the ones the index knows
			if _, err := app.Indexer.IndexVault(app.Vault, nil); err != nil {
				return err
			}

			outcome, err := app.CycleTask(args[0], pos, atCursor)
			if outcome != nil {
				writeCycleOutcome(cmd.OutOrStdout(), outcome)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&atCursor, "cursor", false, "treat pos as a cursor on the task's line")

	return cmd
}

func watchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current while pages change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.Indexer.IndexVault(app.Vault, nil); err != nil {
				return err
			}

			stop := make(chan struct{})
			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-signals
				close(stop)
			}()

			return app.Watch(stop)
		},
	}
}

// resolveOptions merges config, profile and flags into one profile
func resolveOptions(opts *globalOptions) (*ResolvedProfile, Config, error) {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return nil, cfg, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	name, profile, err := selectProfile(opts.profile, cfg)
	if err != nil {
		return nil, cfg, err
	}

	if opts.vault != "" {
		override := Profile{Vault: opts.vault}
		if profile != nil {
			override.Query = profile.Query
		}
		vault, err := expandPath(opts.vault)
		if err != nil {
			return nil, cfg, err
		}
		if override.Vault, err = filepath.Abs(vault); err != nil {
			return nil, cfg, err
		}
		profile = &override
	}

	if profile == nil {
		return nil, cfg, fmt.Errorf("no vault: pass --vault or set default_profile in %s", cfgPath)
	}

	resolved, err := resolveProfilePaths(name, *profile)
	if err != nil {
		return nil, cfg, err
	}

	if opts.database != "" {
		db, err := expandPath(opts.database)
		if err != nil {
			return nil, cfg, err
		}
		resolved.DatabasePath = filepath.Clean(db)
	}

	return resolved, cfg, nil
}

// openApp resolves the profile, sets up logging and opens the index.
// quiet keeps logs off stderr while the TUI owns the terminal.
func openApp(opts *globalOptions, quiet bool) (*App, error) {
	profile, cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	log, logFile, err := newLogger(profile.StateDir(), level, quiet)
	if err != nil {
		return nil, err
	}

	initRenderer(cfg.Theme)

	app, err := NewApp(profile, log.With("profile", profile.Name), logFile)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	return app, nil
}

// loadSections evaluates the query argument, falling back to the profile's query
func loadSections(app *App, args []string) ([]QuerySection, error) {
	input := app.Profile.Query
	if len(args) > 0 {
		input = args[0]
	}

	queries, err := resolveQuery(input, app.Vault.Root())
	if err != nil {
		return nil, err
	}

	return app.Provider.Sections(queries)
}

// taskLink renders page:pos, hyperlinked to the page file when the terminal supports it
func taskLink(vault *Vault, task TaskResult) string {
	label := fmt.Sprintf("%s@%d", task.Page, task.Pos)

	path, err := vault.PagePath(task.Page)
	if err != nil || !termlink.SupportsHyperlinks() {
		return label
	}

	return termlink.Link(label, "file://"+filepath.ToSlash(path))
}

func writeSections(w io.Writer, vault *Vault, sections []QuerySection) {
	total := 0
	for _, section := range sections {
		total += len(section.Tasks)
	}

	if total == 0 {
		fmt.Fprintln(w, "No tasks found matching any query.")
		return
	}

	fmt.Fprintf(w, "Found %d task(s):\n\n", total)

	for _, section := range sections {
		if section.Name != "" {
			fmt.Fprintf(w, "## %s (%d)\n", section.Name, len(section.Tasks))
		}
		if len(section.Tasks) == 0 {
			fmt.Fprintln(w, "(no matching tasks)")
			fmt.Fprintln(w)
			continue
		}
		for _, group := range section.Groups {
			if section.Query.GroupBy != "" && group.Name != "" {
				fmt.Fprintf(w, "### %s\n", group.Name)
			}
			for _, task := range group.Tasks {
				fmt.Fprintf(w, "[%s] %s (%s)\n", task.State, task.Name, taskLink(vault, task))
			}
		}
		fmt.Fprintln(w)
	}
}

func writeSectionsJSON(w io.Writer, sections []QuerySection) error {
	type sectionJSON struct {
		Name  string       `json:"name,omitempty"`
		Tasks []TaskResult `json:"tasks"`
	}

	out := make([]sectionJSON, 0, len(sections))
	for _, section := range sections {
		tasks := section.Tasks
		if tasks == nil {
			tasks = []TaskResult{}
		}
		out = append(out, sectionJSON{Name: section.Name, Tasks: tasks})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeCycleOutcome(w io.Writer, outcome *CycleOutcome) {
	for _, notice := range outcome.Notices {
		fmt.Fprintln(w, notice)
	}

	res := outcome.Result
	if res == nil {
		return
	}

	fmt.Fprintf(w, "%s@%d: [%s] -> [%s]\n", res.Page, res.Pos, res.From, res.To)
	for _, ref := range res.References {
		status := "updated"
		if !ref.Updated {
			status = "skipped"
		}
		fmt.Fprintf(w, "  %s %s\n", status, ref.Ref)
	}
}

func runTUI(opts *globalOptions, args []string) error {
	app, err := openApp(opts, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := RunIndexWithLoader(app.Indexer, app.Vault); err != nil {
		return err
	}

	input := app.Profile.Query
	if len(args) > 0 {
		input = args[0]
	}

	queries, err := resolveQuery(input, app.Vault.Root())
	if err != nil {
		return err
	}

	watcher, err := NewWatcher(app.Vault)
	if err != nil {
		app.log.Warn("file watching disabled", "error", err)
		watcher = nil
	} else {
		defer watcher.Close()
	}

	m, err := newModel(app, queries, watcher)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	// refresh once a background sync lands
	app.Syncer.OnSynced(func(page string, err error) {
		p.Send(pageSyncedMsg{page: page, err: err})
	})

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}

	if fm, ok := final.(model); ok && fm.err != nil && !errors.Is(fm.err, ErrUnknownState) {
		return fm.err
	}

	return nil
}
