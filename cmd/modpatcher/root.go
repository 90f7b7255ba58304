package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/HybridEidolon/pso2-modpatcher/internal/version"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/config"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/logging"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/patch"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/progress"
)

var (
	verbosity  int
	noBackup   bool
	strictMode bool
	showUI     bool
	configFile string

	rootCmd = &cobra.Command{
		Use:   "modpatcher <overlay-root> <data-root>",
		Short: "Repack ICE archives in a directory with new files",
		Long: `modpatcher merges a tree of modification overlays into the game's data
directory. Directories ending in "_ice" describe one archive each, with "1"
and "2" subdirectories holding replacement or new files for its two groups.
Originals are preserved under <data-root>/backup before the first rewrite.`,
		Args: cobra.ExactArgs(2),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE:          runPatch,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.Flags().BoolVar(&noBackup, "no-backup", false, "Do not keep pre-patch copies of archives")
	rootCmd.Flags().BoolVar(&strictMode, "strict", false, "Abort the whole run on the first failure instead of continuing")
	rootCmd.Flags().BoolVar(&showUI, "ui", false, "Show a live progress display (terminals only)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to a modpatcher.toml config file")

	rootCmd.AddCommand(versionCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
	}
	if noBackup {
		cfg.DisableBackups = true
	}
	if strictMode {
		cfg.Strict = true
	}

	reporter := progress.NewReporter(64)
	var display *progress.Display
	if showUI && isatty.IsTerminal(os.Stdout.Fd()) {
		display = progress.StartDisplay(reporter)
	}

	err := patch.New(cfg, reporter).Run(args[0], args[1])

	reporter.Close()
	if display != nil {
		display.Wait()
	}
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information for modpatcher`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("modpatcher version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
