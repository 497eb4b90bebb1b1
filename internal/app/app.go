// internal/app/app.go
//
// App is the service behind every pynome command. It owns the registries,
// the assembly store and the process log, and sequences the three phases:
// crawl remote databases into entries, mirror entries into working
// directories, and index each working directory with the task pipeline.

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/biggstd/pynome/internal/assembly"
	"github.com/biggstd/pynome/internal/config"
	"github.com/biggstd/pynome/internal/crawler"
	"github.com/biggstd/pynome/internal/logbook"
	"github.com/biggstd/pynome/internal/mirror"
	"github.com/biggstd/pynome/internal/pipeline"
	"github.com/biggstd/pynome/internal/task"
	"github.com/biggstd/pynome/internal/tasks"
	"github.com/biggstd/pynome/internal/tool"
	"github.com/biggstd/pynome/internal/workdir"
	"github.com/biggstd/pynome/plugins"
)

// Logger is the process log.
type Logger interface {
	Printf(format string, args ...any)
}

// Options carries everything App needs. Build fills it from a Config.
type Options struct {
	Root     string
	CPUs     int
	JobName  string
	Store    assembly.Store
	Crawlers *crawler.Registry
	Mirrors  *mirror.Registry
	Tasks    *task.Registry
	Runner   tool.Runner
	Syncer   tool.Syncer
	Log      Logger
	// Pipeline options, mostly for tests.
	PipelineOptions []pipeline.Option
}

// App sequences crawl, mirror and index.
type App struct {
	opts Options
}

// New validates opts and returns the service.
func New(opts Options) (*App, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("app: species root is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("app: assembly store is required")
	}
	if opts.Crawlers == nil {
		opts.Crawlers = crawler.NewRegistry()
	}
	if opts.Mirrors == nil {
		opts.Mirrors = mirror.NewRegistry()
	}
	if opts.Tasks == nil {
		opts.Tasks = task.NewRegistry()
	}
	if opts.Runner == nil {
		opts.Runner = tool.ExecRunner{}
	}
	if opts.Syncer == nil {
		opts.Syncer = tool.NewRsync(opts.Runner, "")
	}
	if opts.CPUs <= 0 {
		opts.CPUs = 1
	}
	if opts.JobName == "" {
		opts.JobName = assembly.DefaultJobPattern
	}
	if opts.Log == nil {
		opts.Log = discard{}
	}
	return &App{opts: opts}, nil
}

// Build wires the production registries from cfg and opens the store.
func Build(ctx context.Context, cfg *config.Config, log Logger) (*App, error) {
	if log == nil {
		log = discard{}
	}
	store, err := assembly.Open(ctx, cfg.Root, cfg.Project.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	crawlers := crawler.NewRegistry()
	for _, ref := range cfg.Crawlers() {
		if err := crawlers.Register(crawler.NewEnsembl(crawler.EnsemblOptions{
			Name:           ref.Name,
			Host:           ref.Host,
			Root:           ref.Root,
			TaxonomyFile:   ref.TaxonomyFile,
			CompanionFiles: ref.CompanionFiles,
			Timeout:        cfg.FTPTimeout(),
			RetryDelay:     cfg.RetryDelay(),
			Logger:         log,
		})); err != nil {
			store.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	mirrors := mirror.NewRegistry()
	mirrors.MustRegister(mirror.NewEnsembl(cfg.RsyncModules()))

	tools := cfg.Project.Tools
	reg := task.NewRegistry()
	tasks.RegisterBuiltins(reg, tasks.Toolset{
		Gffread:     tools.Gffread,
		SpliceSites: tools.SpliceSites,
		HisatBuild:  tools.HisatBuild,
		Salmon:      tools.Salmon,
		Kallisto:    tools.Kallisto,
	})
	extra, err := plugins.RegisterCommandTasks(reg, cfg.TasksDir())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	if len(extra) > 0 {
		log.Printf("loaded %d extra tasks from %s: %v", len(extra), cfg.TasksDir(), extra)
	}

	runner := tool.ExecRunner{}
	return New(Options{
		Root:     cfg.Root,
		CPUs:     cfg.CPUCount(),
		JobName:  cfg.Project.JobName,
		Store:    store,
		Crawlers: crawlers,
		Mirrors:  mirrors,
		Tasks:    reg,
		Runner:   runner,
		Syncer:   tool.NewRsync(runner, tools.Rsync),
		Log:      log,
	})
}

// Close releases the store.
func (a *App) Close() error {
	return a.opts.Store.Close()
}

// Store exposes the assembly store (status browser).
func (a *App) Store() assembly.Store {
	return a.opts.Store
}

// Root returns the species root.
func (a *App) Root() string {
	return a.opts.Root
}

// Run is the default command: crawl, mirror, then index everything matching
// species.
func (a *App) Run(ctx context.Context, species string) error {
	if err := a.Crawl(ctx, species); err != nil {
		return err
	}
	if _, err := a.Mirror(ctx, species); err != nil {
		return err
	}
	return a.IndexSpecies(ctx, species)
}

// Crawl runs every registered crawler, storing the entries it finds.
func (a *App) Crawl(ctx context.Context, species string) error {
	for _, c := range a.opts.Crawlers.All() {
		a.opts.Log.Printf("crawl %s", c.Name())
		if err := c.Crawl(ctx, species, a.opts.Store); err != nil {
			return fmt.Errorf("app: crawl %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Mirror turns stored entries into working directories.
func (a *App) Mirror(ctx context.Context, species string) (mirror.Summary, error) {
	summary, err := mirror.NewMirrorer(a.opts.Mirrors, a.opts.Store, a.opts.Root, a.opts.Log).Run(ctx, species)
	if err != nil {
		return summary, fmt.Errorf("app: %w", err)
	}
	a.opts.Log.Printf("mirror: %d mirrored, %d skipped", summary.Mirrored, summary.Skipped)
	return summary, nil
}

// IndexSpecies runs the pipeline over every stored assembly matching
// species, in store order. The first failure stops the batch.
func (a *App) IndexSpecies(ctx context.Context, species string) error {
	list, err := a.opts.Store.Assemblies(ctx, species)
	if err != nil {
		return fmt.Errorf("app: list assemblies: %w", err)
	}
	for i, asm := range list {
		a.opts.Log.Printf("%d/%d index %s (%s)", i+1, len(list), asm.ScientificName(), workdir.RootName(asm.TaxonomyID, asm.Name))
		if _, err := a.index(ctx, asm); err != nil {
			return err
		}
	}
	return nil
}

// IndexJob indexes the assembly named by a job file.
func (a *App) IndexJob(ctx context.Context, path string) (pipeline.Report, error) {
	job, err := assembly.ReadJob(path)
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("app: %w", err)
	}
	return a.Index(ctx, job.TaxonomyID, job.AssemblyName)
}

// Index runs the pipeline for one stored assembly.
func (a *App) Index(ctx context.Context, taxonomyID, name string) (pipeline.Report, error) {
	asm, err := a.opts.Store.Assembly(ctx, taxonomyID, name)
	if err != nil {
		if errors.Is(err, assembly.ErrNotFound) {
			return pipeline.Report{}, fmt.Errorf("app: assembly %s/%s has not been mirrored: %w", taxonomyID, name, err)
		}
		return pipeline.Report{}, fmt.Errorf("app: %w", err)
	}
	return a.index(ctx, asm)
}

func (a *App) index(ctx context.Context, asm assembly.Assembly) (pipeline.Report, error) {
	dir := asm.Dir(a.opts.Root)
	if err := dir.Initialize(); err != nil {
		return pipeline.Report{}, fmt.Errorf("app: %w", err)
	}
	book, err := logbook.New(dir.LogPath())
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("app: open logbook: %w", err)
	}
	book.WithEcho(a.opts.Log, dir.RootName())

	unit := task.NewUnit(dir, asm.Metadata, book, a.opts.Runner, a.opts.Syncer, a.opts.CPUs)
	report, err := pipeline.New(a.opts.Tasks, a.opts.PipelineOptions...).Run(ctx, unit)
	if err != nil {
		return report, err
	}
	a.opts.Log.Printf("%s: %d performed", dir.RootName(), report.Performed())
	return report, nil
}

// ListAll writes one job file into outDir for every assembly that still has
// task outputs missing. It returns the written paths.
func (a *App) ListAll(ctx context.Context, species, outDir string) ([]string, error) {
	list, err := a.opts.Store.Assemblies(ctx, species)
	if err != nil {
		return nil, fmt.Errorf("app: list assemblies: %w", err)
	}
	var jobs []assembly.Job
	for _, asm := range list {
		needs, err := pipeline.NeedsWork(a.opts.Tasks, asm.Dir(a.opts.Root))
		if err != nil {
			return nil, fmt.Errorf("app: %s: %w", asm.Name, err)
		}
		if needs {
			jobs = append(jobs, assembly.Job{TaxonomyID: asm.TaxonomyID, AssemblyName: asm.Name})
		}
	}
	paths, err := assembly.WriteJobs(outDir, a.opts.JobName, jobs)
	if err != nil {
		return paths, fmt.Errorf("app: %w", err)
	}
	a.opts.Log.Printf("list-all: %d of %d assemblies need work", len(jobs), len(list))
	return paths, nil
}

type discard struct{}

func (discard) Printf(string, ...any) {}
