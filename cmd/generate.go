package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zjrosen/millflow/internal/flow"
	"github.com/zjrosen/millflow/internal/jobfile"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/presentation"
	"github.com/zjrosen/millflow/internal/progress"
	"github.com/zjrosen/millflow/internal/pubsub"
	"github.com/zjrosen/millflow/internal/store"
	"github.com/zjrosen/millflow/internal/watcher"
)

// errTasksFailed is returned when at least one task failed hard.
var errTasksFailed = errors.New("toolpath generation failed")

type generateOptions struct {
	tasks    []string
	store    bool
	watch    bool
	withPath bool
}

func newGenerateCmd(c *cli) *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate JOB",
		Short: "Generate toolpaths for the tasks of a job file",
		Long: `Generate toolpaths for the tasks of a job file.

Every task runs unless --task selects some. A task with nothing to do (no
path generator, no motion grid or no moves) is reported as skipped; a task
with broken input fails and makes the command exit non-zero.

Examples:
  # Generate every task
  millflow generate job.yaml

  # One task, as JSON including every move
  millflow generate job.yaml --task rough --format json --path

  # Keep the results in the history database
  millflow generate job.yaml --store

  # Regenerate whenever job.yaml changes
  millflow generate job.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("store") {
				opts.store = c.cfg.Store.Enabled
			}
			g := &generator{cli: c, jobPath: args[0], opts: opts, out: cmd.OutOrStdout()}
			if opts.watch {
				return g.watch(cmd.Context())
			}
			return g.once(cmd.Context())
		},
	}
	cmd.Flags().StringArrayVarP(&opts.tasks, "task", "t", nil, "task id to generate (repeatable, default: all)")
	cmd.Flags().BoolVar(&opts.store, "store", false, "save generated toolpaths to the history database")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "regenerate when the job file changes")
	cmd.Flags().BoolVar(&opts.withPath, "path", false, "include every move in the output")
	return cmd
}

type generator struct {
	cli     *cli
	jobPath string
	opts    generateOptions
	out     io.Writer
}

// once loads the job and generates the selected tasks.
func (g *generator) once(ctx context.Context) error {
	job, err := jobfile.Load(g.jobPath)
	if err != nil {
		return err
	}
	defer job.Close()

	tasks, err := g.selectTasks(job)
	if err != nil {
		return err
	}

	var db *store.DB
	if g.opts.store {
		db, err = store.Open(g.cli.cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
	}

	env := flow.NewEnvironment()
	broker := pubsub.NewBroker[progress.Report]()
	env.Progress = progress.NewBroadcast(broker)
	wait := logProgress(ctx, broker)
	defer wait()

	results := make([]presentation.GenerateResultDTO, 0, len(tasks))
	failed := 0
	for _, task := range tasks {
		tp, err := task.GenerateToolpath(ctx, env, nil)
		res := presentation.FromTask(task, tp, err)
		if err != nil {
			failed++
			log.ErrorErr(log.CatCLI, "task failed", err, "task", task.ID())
		}
		if tp != nil {
			if g.opts.withPath {
				full := presentation.FromToolpath(tp, true)
				res.Toolpath = &full
			}
			if db != nil {
				sum, err := db.Toolpaths().Save(ctx, tp, job.Path)
				if err != nil {
					return err
				}
				res.StoredAs = sum.ID.String()
			}
		}
		results = append(results, res)
	}

	f, err := g.cli.formatter(g.out)
	if err != nil {
		return err
	}
	if err := f.FormatGenerate(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d tasks", errTasksFailed, failed, len(tasks))
	}
	return nil
}

// logProgress writes every progress report to the debug log. The returned
// func closes the broker and waits until every delivered report is logged.
func logProgress(ctx context.Context, broker *pubsub.Broker[progress.Report]) func() {
	ctx, cancel := context.WithCancel(ctx)
	reports := broker.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range reports {
			r := ev.Payload
			log.Debug(log.CatFlow, "progress", "label", r.Label, "text", r.Text,
				"index", r.Index, "count", r.Count, "finished", r.Finished)
		}
	}()
	return func() {
		broker.Close()
		<-done
		cancel()
	}
}

func (g *generator) selectTasks(job *jobfile.Job) ([]*flow.Task, error) {
	if len(g.opts.tasks) == 0 {
		if len(job.Tasks) == 0 {
			return nil, jobfile.ErrNoTasks
		}
		return job.Tasks, nil
	}
	tasks := make([]*flow.Task, 0, len(g.opts.tasks))
	for _, id := range g.opts.tasks {
		t, err := job.Task(id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// watch generates once, then again after every change to the job file,
// until interrupted.
func (g *generator) watch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	paths := []string{g.jobPath}
	if g.cli.cfgUsed != "" {
		paths = append(paths, g.cli.cfgUsed)
	}
	w, err := watcher.New(watcher.Config{Paths: paths, DebounceDur: g.cli.cfg.Watch.Debounce})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()
	changes, err := w.Start()
	if err != nil {
		return err
	}

	g.regenerate(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatCLI, "watch stopped")
			return nil
		case <-changes:
			log.Info(log.CatWatcher, "job changed, regenerating", "path", g.jobPath)
			g.regenerate(ctx)
		}
	}
}

// regenerate runs once and keeps watching on failure.
func (g *generator) regenerate(ctx context.Context) {
	if err := g.once(ctx); err != nil {
		log.ErrorErr(log.CatCLI, "generation failed", err, "path", g.jobPath)
		_, _ = fmt.Fprintf(g.out, "error: %v\n", err)
	}
}
