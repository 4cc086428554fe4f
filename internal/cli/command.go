// Package cli wires the cobra command tree: translate (root), backups,
// runs, watch and prompts.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/draftworx/statement-translator/internal/checkpoint"
	"github.com/draftworx/statement-translator/internal/config"
	"github.com/draftworx/statement-translator/internal/job"
	"github.com/draftworx/statement-translator/internal/persistence"
	"github.com/draftworx/statement-translator/internal/promptcfg"
	"github.com/draftworx/statement-translator/internal/service"
	"github.com/draftworx/statement-translator/pkg/log"
)

// CreateRootCommand builds the command tree.
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "statement-translator [input.csv]",
		Short: "Translate financial statement flat files via an LLM backend",
		Long: `statement-translator translates the values and Excel formulas of
financial statement flat files into a target language, checkpointing
progress so interrupted batches can resume.

Examples:
  statement-translator statements.csv                 # translate with env defaults
  statement-translator statements.csv -t nl           # translate to Dutch
  statement-translator --resume Backup_OutputResults/backup_Afrikaans_25_20260314_092653_1.csv statements.csv
  statement-translator backups                        # list checkpoints
  statement-translator watch                          # scan the input directory on a schedule`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && flags.ResumeFrom == "" {
				return cmd.Help()
			}
			return runTranslate(cmd.Context(), flags, args)
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd, flags)

	rootCmd.AddCommand(createBackupsCommand(flags))
	rootCmd.AddCommand(createRunsCommand(flags))
	rootCmd.AddCommand(createWatchCommand(flags))
	rootCmd.AddCommand(createPromptsCommand(flags))
	return rootCmd
}

// initViper reads an optional statement-translator.yaml from the working
// directory. Flag values bound in bindFlagsToViper take precedence over it.
func initViper() {
	viper.SetConfigName("statement-translator")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Ignoring unreadable config file: %v", err)
		}
	}
}

/// loadConfig resolves the effective configuration: environment defaults,
// then the optional config file, then command-line flags.
func loadConfig(flags *Flags) (config.Config, error) {
	initViper()

	var opts []config.Option
	opts = append(opts, config.WithCheckpointInterval(viper.GetInt("translate.checkpoint_interval")))
	if viper.GetBool("rate_limit.disabled") {
		opts = append(opts, config.WithRateLimitDisabled(true))
	}
	if target := viper.GetString("translate.target_language"); target != "" {
		tag, err := language.Parse(target)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid target language %q: %w", target, err)
		}
		opts = append(opts, config.WithTargetLanguage(tag))
	}
	if source := viper.GetString("translate.source_language"); source != "" {
		tag, err := language.Parse(source)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid source language %q: %w", source, err)
		}
		opts = append(opts, func(c *config.Config) { c.Translate.SourceLanguage = tag })
	}
	if dir := viper.GetString("storage.backup_dir"); dir != "" {
		opts = append(opts, func(c *config.Config) { c.Storage.BackupDir = dir })
	}
	if path := viper.GetString("translate.named_ranges_path"); path != "" {
		opts = append(opts, func(c *config.Config) { c.Translate.NamedRangesPath = path })
	}
	if flags.InputDir != "" {
		opts = append(opts, func(c *config.Config) { c.Storage.InputDir = flags.InputDir })
	}
	if flags.CronExpr != "" {
		opts = append(opts, func(c *config.Config) { c.Translate.CronExpr = flags.CronExpr })
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

func openLedger(cfg config.Config, flags *Flags) (*persistence.SQLiteStore, service.RunLedger) {
	if flags.DisableLedger {
		return nil, nil
	}
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Warn("Run ledger unavailable, continuing without history: %v", err)
		return nil, nil
	}
	return store, store
}

func runTranslate(ctx context.Context, flags *Flags, args []string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// Ctrl-C cancels at the next row boundary; progress up to the last
	// checkpoint stays resumable.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ledger := openLedger(cfg, flags)
	if store != nil {
		defer store.Close()
	}

	input := ""
	if len(args) > 0 {
		input = args[0]
	}
	if input == "" && flags.ResumeFrom != "" {
		// Resuming recovers everything from the checkpoint itself.
		input = flags.ResumeFrom
	}

	runner := service.NewRunner(cfg, ledger)
	res, err := runner.TranslateFile(ctx, service.FileRequest{
		InputFile:  input,
		OutputFile: flags.Output,
		ResumeFrom: flags.ResumeFrom,
	})
	if err != nil {
		service.NewDefaultErrorHandler().Handle(err)
		return err
	}

	a := res.Analytics
	fmt.Printf("Translated %s -> %s\n", input, res.OutputFile)
	fmt.Printf("  rows: %d total, %d complete, %d failed (fallback to source)\n", a.Total, a.Complete, a.Failed)
	fmt.Printf("  values translated: %d, formulas translated: %d\n", a.ValuesTranslated, a.FormulasTranslated)
	if a.ElapsedSeconds > 0 {
		fmt.Printf("  elapsed: %.1fs (%.2f rows/s)\n", a.ElapsedSeconds, a.RatePerSecond)
	}
	return nil
}

func createBackupsCommand(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List checkpoints available to resume from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			mgr, err := checkpoint.NewManager(cfg.Storage.BackupDir)
			if err != nil {
				return err
			}
			handles, err := mgr.List()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(handles) == 0 {
				fmt.Fprintf(w, "No checkpoints in %s\n", cfg.Storage.BackupDir)
				return nil
			}
			for i, h := range handles {
				fmt.Fprintln(w, describeCheckpoint(mgr, h, i == len(handles)-1))
			}
			newest := handles[len(handles)-1]
			fmt.Fprintf(w, "\nResume the newest: statement-translator --resume %s\n", newest.Path)
			return nil
		},
	}
}

// describeCheckpoint renders one snapshot line, enriched with the sidecar's
// progress counters when the sidecar is readable.
func describeCheckpoint(mgr *checkpoint.Manager, h checkpoint.Handle, newest bool) string {
	kind := "progress"
	if h.Final {
		kind = "final"
	}

	progress := fmt.Sprintf("%d records", h.Processed)
	counts := ""
	if meta, err := mgr.ReadMeta(h); err == nil && meta.RecordsTotal > 0 {
		pct := float64(meta.RecordsProcessed) / float64(meta.RecordsTotal) * 100
		progress = fmt.Sprintf("%d/%d records (%.0f%%)", meta.RecordsProcessed, meta.RecordsTotal, pct)
		counts = fmt.Sprintf("  %d values, %d formulas, %d failed",
			meta.ValuesTranslated, meta.FormulasTranslated, meta.RowsFailed)
	}

	line := fmt.Sprintf("%-8s %-12s %-22s %s  %s%s",
		kind, h.Language, progress, h.Timestamp.Format("2006-01-02 15:04:05"), h.Path, counts)
	if newest {
		line += "  (newest)"
	}
	return line
}

func createRunsCommand(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the history of translation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			store, err := persistence.NewSQLiteStore(cfg.DBPath())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), flags.RunLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-10s %-12s %4d/%-4d rows (%d failed)  %s -> %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.State, r.TargetLanguage, r.RecordsProcessed, r.RecordsTotal, r.RowsFailed,
					r.InputFile, r.OutputFile)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&flags.RunLimit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func createWatchCommand(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the input directory and translate new flat files on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			store, ledger := openLedger(cfg, flags)
			if store != nil {
				defer store.Close()
			}
			var queueStore job.QueueStore
			if store != nil {
				queueStore = store
			}

			runner := service.NewRunner(cfg, ledger)
			queue := job.NewQueue(1, queueStore)
			c := cron.New()
			watcher := service.NewWatchService(cfg, c, queue, runner)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := watcher.Schedule(ctx); err != nil {
				return err
			}
			c.Start()
			defer func() {
				cronCtx := c.Stop()
				select {
				case <-cronCtx.Done():
				case <-time.After(5 * time.Second):
				}
				watcher.Stop()
			}()

			fmt.Printf("Watching %s (schedule %q), press Ctrl-C to stop\n", cfg.Storage.InputDir, cfg.Translate.CronExpr)
			<-ctx.Done()
			log.Info("Shutting down watch mode")
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.InputDir, "input-dir", "", "Directory to watch (default: INPUT_DIR)")
	cmd.Flags().StringVar(&flags.CronExpr, "schedule", "", "Cron expression for scans (default: CRON_EXPR)")
	return cmd
}

func createPromptsCommand(flags *Flags) *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect and manage prompt configurations",
	}
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Prompt configuration directory (default: PROMPT_CONFIG_DIR)")

	// resolveDir prefers the flag, then the configured directory.
	resolveDir := func() (string, error) {
		if configDir != "" {
			return configDir, nil
		}
		cfg, err := loadConfig(flags)
		if err != nil {
			return "", err
		}
		return cfg.Storage.PromptConfigDir, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active prompt configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir()
			if err != nil {
				return err
			}
			mgr, err := promptcfg.NewManager(dir)
			if err != nil {
				return err
			}
			active := mgr.LoadActive()
			fmt.Printf("Name: %s\n", active.Name)
			if active.Description != "" {
				fmt.Printf("Description: %s\n", active.Description)
			}
			fmt.Printf("\n[translation identity]\n%s\n", active.ValuePrompt.Identity)
			fmt.Printf("\n[translation instructions]\n%s\n", active.ValuePrompt.Instructions)
			fmt.Printf("\n[formula identity]\n%s\n", active.FormulaPrompt.Identity)
			fmt.Printf("\n[formula critical rules]\n%s\n", active.FormulaPrompt.CriticalRules)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "presets",
		Short: "List stored prompt presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir()
			if err != nil {
				return err
			}
			mgr, err := promptcfg.NewManager(dir)
			if err != nil {
				return err
			}
			presets, err := mgr.ListPresets()
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				fmt.Println("No presets stored")
				return nil
			}
			fmt.Println(strings.Join(presets, "\n"))
			return nil
		},
	})

	return cmd
}
