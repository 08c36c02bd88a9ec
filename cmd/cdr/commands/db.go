package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/db"
	"github.com/teranos/cdr/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the repository database",
	Long: `db - Manage the repository database

Examples:
  cdr db migrate                  # Bring the schema up to date
  cdr db stats                    # Show row counts per table
  cdr db stats --nonempty         # Hide empty tables`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display the configured backend and the row count of every repository table",
	RunE:  runDbStats,
}

var statsNonEmptyFlag bool

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().BoolVar(&statsNonEmptyFlag, "nonempty", false, "Only list tables holding rows")
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// openDatabase migrates
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("Schema up to date (%s)", cfg.Database.Driver))
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := db.TableCounts(cmd.Context(), database)
	if err != nil {
		return errors.Wrap(err, "failed to query table counts")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Database Statistics")
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(out, "Driver:   %s\n", cfg.Database.Driver)
	if cfg.Database.Driver == am.DriverSQLite {
		fmt.Fprintf(out, "Path:     %s\n", cfg.Database.Path)
	}
	fmt.Fprintln(out)

	data := pterm.TableData{{"Table", "Rows"}}
	var total int64
	for _, c := range counts {
		total += c.Rows
		if statsNonEmptyFlag && c.Rows == 0 {
			continue
		}
		data = append(data, []string{c.Table, strconv.FormatInt(c.Rows, 10)})
	}
	if err := renderTable(out, data); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal rows: %d\n", total)
	return nil
}
