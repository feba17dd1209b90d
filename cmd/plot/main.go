package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"plot-go/internal/app"
	"plot-go/internal/backup"
	"plot-go/internal/config"
	"plot-go/internal/encryption"
	"plot-go/internal/model"
	"plot-go/internal/plot"
	"plot-go/internal/schema"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := app.LoadEnvFile(""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// describe adds a hint for the failures a user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, plot.ErrQuotaExceeded):
		return err.Error() + "; free space or delete old backups with `plot backups delete`"
	case errors.Is(err, plot.ErrStoreBusy):
		return err.Error() + "; wait for the running operation to finish"
	case errors.Is(err, plot.ErrRollbackTargetMissing):
		return err.Error() + "; list backups with `plot backups list`"
	case errors.Is(err, plot.ErrSchemaInvalid):
		return err.Error() + "; the stored data was left untouched"
	}
	return err.Error()
}

// newApp reads the config and creates a PlotApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "migrate run", "sync").
func newApp(operation string) (*app.PlotApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewPlotApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on the terminal without echo. PLOT_PASSPHRASE is
// used when set, and a line is read from stdin when it is not a terminal.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("PLOT_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:           "plot",
	Short:         "Local-first allotment data: migrate, back up and sync",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			app.StderrLevel = slog.LevelDebug
		}
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		withKeys, _ := cmd.Flags().GetBool("keys")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		replicaID := uuid.New().String()
		cfg := config.NewConfig(replicaID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Replica ID: %s\n", replicaID)
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])

		if !withKeys {
			return nil
		}
		passphrase, err := readPassphrase("Passphrase for the export key: ")
		if err != nil {
			return err
		}
		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Printf("Export keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Replica ID: %s\n", cfg.ReplicaID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		fmt.Printf("Keys:       %s, %s\n", cfg.Keys.PrimaryKey(), cfg.Keys.SecondaryKey())
		fmt.Printf("Sync:       %s %s (room %s)\n", cfg.Sync.Transport, cfg.Sync.URL, cfg.Sync.Room)
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize the stored allotment",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("show")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Summary()
		if err != nil {
			return err
		}
		if !s.Found {
			fmt.Println("Nothing stored yet.")
			return nil
		}

		fmt.Printf("%s", s.Name)
		if s.Location != "" {
			fmt.Printf(" (%s)", s.Location)
		}
		fmt.Printf("\nCurrent year: %d\nVarieties:    %d\nSynced:       %v\n\n", s.CurrentYear, s.Varieties, s.Synced)

		fmt.Printf("Areas (%d):\n", len(s.Areas))
		for _, area := range s.Areas {
			fmt.Printf("  %-16s %-14s %s\n", area.ID, area.Kind, area.Name)
		}
		fmt.Printf("Seasons (%d):\n", len(s.Seasons))
		for _, season := range s.Seasons {
			fmt.Printf("  %d  %-10s  %d planting(s)\n", season.Year, season.Status, season.Plantings)
		}
		if len(s.Steps) > 0 || len(s.Repairs) > 0 {
			fmt.Printf("\nLoaded with %d repair(s), migrations: %s\n", len(s.Repairs), strings.Join(s.Steps, ", "))
			for _, r := range s.Repairs {
				fmt.Printf("  %s\n", r)
			}
		}
		return nil
	},
}

// area command
var areaCmd = &cobra.Command{
	Use:   "area",
	Short: "Manage areas",
}

var areaAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Add an area and backfill it into existing seasons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("kind")
		group, _ := cmd.Flags().GetString("rotation-group")
		created, _ := cmd.Flags().GetInt("created-year")
		active, _ := cmd.Flags().GetIntSlice("active-years")

		area := model.Area{
			ID:            args[0],
			Name:          name,
			Kind:          model.AreaKind(kind),
			RotationGroup: group,
		}
		if cmd.Flags().Changed("created-year") {
			area.CreatedYear = &created
		}
		if cmd.Flags().Changed("active-years") {
			area.ActiveYears = active
		}

		a, err := newApp("area add")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddArea(area); err != nil {
			if errors.Is(err, schema.ErrAreaExists) || errors.Is(err, schema.ErrAreaInvalid) {
				return err
			}
			return fmt.Errorf("adding area: %w", err)
		}
		fmt.Printf("Added area %s\n", area.ID)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Consolidate the variety store into the allotment",
}

var migratePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a migration would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("migrate plan")
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.PlanMigration()
		if err != nil {
			return err
		}
		if !plan.NeedsMigration {
			fmt.Println("Nothing to migrate.")
			return nil
		}
		fmt.Printf("Would merge %d variet(ies), skipping %d duplicate(s); %d total afterwards.\n",
			len(plan.VarietiesToMerge), len(plan.DuplicatesFound), plan.TotalEntitiesAfterMigration)
		for _, v := range plan.VarietiesToMerge {
			fmt.Printf("  + %s / %s\n", v.PlantID, v.Name)
		}
		for _, d := range plan.DuplicatesFound {
			fmt.Printf("  = %s / %s (%s)\n", d.Incoming.PlantID, d.Incoming.Name, d.Resolution)
		}
		return nil
	},
}

var migrateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up both stores and migrate",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("migrate run")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Migrate()
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if result.BackupKey == "" {
			fmt.Println("Nothing to migrate.")
			return nil
		}
		fmt.Printf("Merged %d variet(ies), skipped %d duplicate(s).\n", result.VarietiesMerged, result.DuplicatesSkipped)
		fmt.Printf("Backup: %s\n", result.BackupKey)
		fmt.Printf("Undo with: plot rollback %s\n", result.BackupKey)
		return nil
	},
}

// rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback KEY",
	Short: "Restore both stores from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("rollback")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Rollback(args[0]); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Printf("Restored from %s\n", args[0])
		return nil
	},
}

// backups command
var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage backups",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backups list")
		if err != nil {
			return err
		}
		defer a.Close()

		pairs, err := a.Backups()
		if err != nil {
			return err
		}
		if len(pairs) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, p := range pairs {
			printPair(p)
		}
		return nil
	},
}

func printPair(p backup.Pair) {
	if p.PrimaryAbsent() {
		fmt.Printf("%s  %s  (no document)", p.Time().Local().Format("2006-01-02 15:04:05"), p.Primary)
	} else {
		fmt.Printf("%s  %s  %d bytes", p.Time().Local().Format("2006-01-02 15:04:05"), p.Primary, p.PrimarySize)
	}
	if p.Secondary != "" {
		fmt.Printf("  + %s  %d bytes", p.Secondary, p.SecondarySize)
	}
	fmt.Println()
}

var backupsDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete a backup pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backups delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteBackup(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export both stores to a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seal, _ := cmd.Flags().GetBool("seal")

		a, err := newApp("export")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.OpenFile(args[0], os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[0], err)
		}
		if err := a.Export(f, seal); err != nil {
			f.Close()
			os.Remove(args[0])
			return fmt.Errorf("export failed: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", args[0], err)
		}
		fmt.Printf("Exported to %s\n", args[0])
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace both stores with a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("import")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		result, err := a.Import(f, func() (string, error) {
			return readPassphrase("Passphrase: ")
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		printImport(result.Areas, result.Seasons, result.Varieties, result.BackupKey)
		return nil
	},
}

func printImport(areas, seasons, varieties int, backupKey string) {
	fmt.Printf("Imported %d area(s), %d season(s), %d variet(ies).\n", areas, seasons, varieties)
	if backupKey != "" {
		fmt.Printf("Previous data backed up as %s\n", backupKey)
	}
}

var importWorkbookCmd = &cobra.Command{
	Use:   "import-workbook XLSX",
	Short: "Import a planning spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("import-workbook")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		result, warnings, err := a.ImportWorkbook(f)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		printImport(result.Areas, result.Seasons, result.Varieties, result.BackupKey)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync with other replicas until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, _ := cmd.Flags().GetBool("seed")

		a, err := newApp("sync")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Syncing; press Ctrl-C to stop.")
		result, err := a.Sync(ctx, seed)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("Received %d update(s), rejected %d.\n", result.Received, result.Rejected)
		return nil
	},
}

// relay command
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the websocket relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("relay")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Relay(ctx)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %-40s  %s  %-7s  %s  %s\n",
				op.ID,
				op.Operation,
				op.Parameters,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Detail,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Echo debug logging to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().Bool("keys", false, "Also generate the key pair used to seal exports")

	// area subcommands
	areaCmd.AddCommand(areaAddCmd)
	areaAddCmd.Flags().String("name", "", "Display name (defaults to the id)")
	areaAddCmd.Flags().String("kind", string(model.KindRotationBed), "Area kind")
	areaAddCmd.Flags().String("rotation-group", "", "Rotation group for rotation beds")
	areaAddCmd.Flags().Int("created-year", 0, "First season the area exists in")
	areaAddCmd.Flags().IntSlice("active-years", nil, "Only take part in these seasons")

	// migrate subcommands
	migrateCmd.AddCommand(migratePlanCmd)
	migrateCmd.AddCommand(migrateRunCmd)

	// backups subcommands
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsDeleteCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(areaCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Bool("seal", false, "Encrypt the bundle to the configured public key")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(importWorkbookCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("seed", false, "Start a new replica from the stored document")
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
