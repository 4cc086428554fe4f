package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags carries the command-line overrides applied on top of the
// environment configuration.
type Flags struct {
	Target        string
	Source        string
	Output        string
	Interval      int
	NoRateLimit   bool
	ResumeFrom    string
	NamedRanges   string
	BackupDir     string
	InputDir      string
	CronExpr      string
	RunLimit      int
	DisableLedger bool
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	cmd.PersistentFlags().StringVarP(&flags.Target, "target", "t", "", "Target language tag, e.g. af, nl, fr (default: TARGET_LANGUAGE)")
	cmd.PersistentFlags().StringVar(&flags.Source, "source", "", "Source language tag (default: SOURCE_LANGUAGE)")
	cmd.PersistentFlags().StringVar(&flags.BackupDir, "backup-dir", "", "Checkpoint directory (default: BACKUP_DIR)")
	cmd.PersistentFlags().BoolVar(&flags.DisableLedger, "no-ledger", false, "Do not record runs in the SQLite ledger")

	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "Output file (default: <input>_in<Language>.csv)")
	cmd.Flags().IntVar(&flags.Interval, "interval", 0, "Checkpoint every N records (default: CHECKPOINT_INTERVAL)")
	cmd.Flags().BoolVar(&flags.NoRateLimit, "no-rate-limit", false, "Disable request pacing (debug only)")
	cmd.Flags().StringVar(&flags.ResumeFrom, "resume", "", "Resume from a checkpoint file instead of starting fresh")
	cmd.Flags().StringVar(&flags.NamedRanges, "named-ranges", "", "Named ranges reference document (default: NAMED_RANGES_PATH)")

	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	viper.BindPFlag("translate.target_language", cmd.PersistentFlags().Lookup("target"))
	viper.BindPFlag("translate.source_language", cmd.PersistentFlags().Lookup("source"))
	viper.BindPFlag("translate.checkpoint_interval", cmd.Flags().Lookup("interval"))
	viper.BindPFlag("translate.named_ranges_path", cmd.Flags().Lookup("named-ranges"))
	viper.BindPFlag("storage.backup_dir", cmd.PersistentFlags().Lookup("backup-dir"))
	viper.BindPFlag("rate_limit.disabled", cmd.Flags().Lookup("no-rate-limit"))
}
