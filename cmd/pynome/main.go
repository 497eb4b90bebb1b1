// cmd/pynome/main.go
//
// Entry point for the pynome CLI.
//
// Flow:
// 1. Load configuration for the species root (flags > env > config.yaml)
// 2. Open the process log and build the app service
// 3. Run the requested phase: crawl, mirror, index, list-all or status
//
// Running `pynome` with no subcommand crawls, mirrors and indexes in one go.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/biggstd/pynome/internal/app"
	"github.com/biggstd/pynome/internal/config"
	"github.com/biggstd/pynome/internal/logging"
	"github.com/biggstd/pynome/internal/tui"
)

type globalFlags struct {
	species string
	root    string
	cpus    int
	quiet   bool
	sets    keyValueFlag
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "pynome: interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "pynome: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{sets: keyValueFlag{}}
	rootCmd := &cobra.Command{
		Use:   "pynome",
		Short: "Mirror and index genome assemblies from public databases",
		Long: `pynome crawls Ensembl FTP mirrors for genome assemblies, mirrors the
ones you ask for into a local species root, and prepares them for
sequence alignment (GTF, cDNA, splice sites, HISAT2, Salmon and kallisto
indexes). Every step is idempotent: re-running only does missing work.

Without a subcommand pynome runs crawl, mirror and index in order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				return a.Run(cmd.Context(), flags.species)
			})
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.species, "species", "t", "", "restrict to one organism, e.g. homo_sapiens")
	pf.StringVarP(&flags.root, "root", "d", "", "species root directory (default $PYNOME_ROOT or ~/species)")
	pf.IntVarP(&flags.cpus, "cpus", "n", 0, "threads handed to indexers (default all CPUs)")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "only write the log file, not stderr")
	pf.Var(&flags.sets, "set", "config override (key=value, repeatable)")

	crawlCmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover assemblies on the configured FTP mirrors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				return a.Crawl(cmd.Context(), flags.species)
			})
		},
	}

	mirrorCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Create working directories for crawled assemblies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				summary, err := a.Mirror(cmd.Context(), flags.species)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d mirrored, %d skipped\n", summary.Mirrored, summary.Skipped)
				return nil
			})
		},
	}

	var jobFile string
	indexCmd := &cobra.Command{
		Use:   "index [taxonomy-id assembly-name]",
		Short: "Run the task pipeline over mirrored assemblies",
		Long: `Run the task pipeline. With --file, index the assembly named by a job
file written by list-all. With two arguments, index that assembly.
Otherwise index every mirrored assembly matching --species.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or a taxonomy id and an assembly name")
			}
			if len(args) == 2 && jobFile != "" {
				return fmt.Errorf("--file cannot be combined with an explicit assembly")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				switch {
				case jobFile != "":
					_, err := a.IndexJob(cmd.Context(), jobFile)
					return err
				case len(args) == 2:
					_, err := a.Index(cmd.Context(), args[0], args[1])
					return err
				default:
					return a.IndexSpecies(cmd.Context(), flags.species)
				}
			})
		},
	}
	indexCmd.Flags().StringVarP(&jobFile, "file", "f", "", "job file to index")

	var outDir string
	listCmd := &cobra.Command{
		Use:   "list-all",
		Short: "Write a job file for every assembly that still needs work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConfig(cmd, flags, func(cfg *config.Config, a *app.App) error {
				dir := outDir
				if dir == "" {
					dir = cfg.JobsDir()
				}
				paths, err := a.ListAll(cmd.Context(), flags.species, dir)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
	listCmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for job files (default <root>/.pynome/jobs)")

	var plain bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Browse mirrored assemblies and their last pipeline run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.quiet = true
			return withApp(cmd, flags, func(a *app.App) error {
				load := tui.StoreLoader(a.Store(), a.Root(), flags.species, 8)
				if plain {
					return printStatus(cmd, load)
				}
				_, err := tea.NewProgram(tui.NewApp(load), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				return err
			})
		},
	}
	statusCmd.Flags().BoolVar(&plain, "plain", false, "print a one-line summary per assembly instead of the browser")

	rootCmd.AddCommand(crawlCmd, mirrorCmd, indexCmd, listCmd, statusCmd)
	return rootCmd
}

func withApp(cmd *cobra.Command, flags *globalFlags, fn func(*app.App) error) error {
	return withConfig(cmd, flags, func(_ *config.Config, a *app.App) error {
		return fn(a)
	})
}

func withConfig(cmd *cobra.Command, flags *globalFlags, fn func(*config.Config, *app.App) error) error {
	cfg, err := config.Load(config.LoadOptions{
		Root:      flags.root,
		CPUs:      flags.cpus,
		Quiet:     flags.quiet,
		Overrides: flags.sets,
	})
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogsDir(), logging.Stderr(cfg.Quiet))
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.Printf("pynome %s (root %s, %d cpus)", cmd.Name(), cfg.Root, cfg.CPUCount())

	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Printf("error: %v", err)
		return err
	}
	defer a.Close()
	if err := fn(cfg, a); err != nil {
		logger.Printf("error: %v", err)
		return err
	}
	return nil
}

func printStatus(cmd *cobra.Command, load tui.Loader) error {
	rows, err := load(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, row := range rows {
		fmt.Fprintf(out, "%-24s %-40s %s\n", row.Dir.RootName(), row.Assembly.ScientificName(), row.Summary())
	}
	return nil
}

// keyValueFlag collects repeatable --set key=value pairs.
type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

func (kv *keyValueFlag) Type() string {
	return "key=value"
}
