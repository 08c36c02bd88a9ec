package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/persistence"
	"github.com/teranos/cdr/query"
)

// ActCmd represents the act command
var ActCmd = &cobra.Command{
	Use:   "act",
	Short: "Inspect and retire clinical acts",
	Long: `act - Inspect and retire clinical acts

Acts are read through the same persistence services the repository uses,
so versioning, logical deletion and caching follow the configuration.

Examples:
  cdr act get <key>                       # Current version of an act
  cdr act get <key> --version <vkey>      # A specific version
  cdr act history <key>                   # Every version, newest first
  cdr act list --class OBS.QTY --count 20 # First page of quantity observations
  cdr act list --stateful                 # Pin the result and print its session id
  cdr act list --session <id> --offset 20 # Next page of a pinned result
  cdr act obsolete <key> --dry-run        # Run the obsolete and roll it back`,
}

var actGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show an act",
	Args:  cobra.ExactArgs(1),
	RunE:  runActGet,
}

var actHistoryCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "List every version of an act",
	Args:  cobra.ExactArgs(1),
	RunE:  runActHistory,
}

var actListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current acts",
	Long: `List current acts, newest first.

Obsolete acts are hidden unless --status names a status. A stateful listing
pins the key list so later pages stay stable; attaching to it from another
invocation needs query.registry = "sql".`,
	Args: cobra.NoArgs,
	RunE: runActList,
}

var actObsoleteCmd = &cobra.Command{
	Use:   "obsolete <key>",
	Short: "Obsolete an act",
	Args:  cobra.ExactArgs(1),
	RunE:  runActObsolete,
}

type actListOptions struct {
	status   string
	class    string
	session  string
	stateful bool
	offset   int
	count    int
}

var (
	actActorFlag   string
	actVersionFlag string
	actJSONFlag    bool
	actDryRunFlag  bool
	listOpts       actListOptions
)

func init() {
	ActCmd.PersistentFlags().StringVar(&actActorFlag, "actor", defaultActor(), "Actor recorded in the provenance of reads and writes")

	actGetCmd.Flags().StringVar(&actVersionFlag, "version", "", "Version key to load instead of the current version")
	actGetCmd.Flags().BoolVar(&actJSONFlag, "json", false, "Output the act as JSON")

	actListCmd.Flags().StringVar(&listOpts.status, "status", "", "Status name (new, active, completed, cancelled, nullified, obsolete) or concept key")
	actListCmd.Flags().StringVar(&listOpts.class, "class", "", "Class code (ENC, OBS.QTY, OBS.TXT, OBS.CD, SBADM, PROC)")
	actListCmd.Flags().StringVar(&listOpts.session, "session", "", "Page through a result pinned earlier with --stateful")
	actListCmd.Flags().BoolVar(&listOpts.stateful, "stateful", false, "Pin the result under a new session id")
	actListCmd.Flags().IntVar(&listOpts.offset, "offset", 0, "Number of acts to skip")
	actListCmd.Flags().IntVar(&listOpts.count, "count", 20, "Number of acts to show (negative for all)")

	actObsoleteCmd.Flags().BoolVar(&actDryRunFlag, "dry-run", false, "Run the obsolete and roll it back")

	ActCmd.AddCommand(actGetCmd)
	ActCmd.AddCommand(actHistoryCmd)
	ActCmd.AddCommand(actListCmd)
	ActCmd.AddCommand(actObsoleteCmd)
}

func defaultActor() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cdr"
}

// withRepository loads the configuration and runs fn over an open repository.
func withRepository(fn func(r *repository) error) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	r, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}

func parseKey(s, what string) (uuid.UUID, error) {
	key, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.NewArgumentError("invalid %s %q", what, s)
	}
	return key, nil
}

var statuses = []struct {
	name string
	key  uuid.UUID
}{
	{"new", model.StatusNew},
	{"active", model.StatusActive},
	{"completed", model.StatusCompleted},
	{"cancelled", model.StatusCancelled},
	{"nullified", model.StatusNullified},
	{"obsolete", model.StatusObsolete},
}

func parseStatus(s string) (uuid.UUID, error) {
	for _, st := range statuses {
		if strings.EqualFold(st.name, s) {
			return st.key, nil
		}
	}
	return parseKey(s, "status")
}

func statusName(key uuid.UUID) string {
	for _, st := range statuses {
		if st.key == key {
			return st.name
		}
	}
	return key.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func runActGet(cmd *cobra.Command, args []string) error {
	key, err := parseKey(args[0], "act key")
	if err != nil {
		return err
	}
	var version *uuid.UUID
	if actVersionFlag != "" {
		v, err := parseKey(actVersionFlag, "version key")
		if err != nil {
			return err
		}
		version = &v
	}

	return withRepository(func(r *repository) error {
		act, err := r.Acts.Get(cmd.Context(), key, version)
		if err != nil {
			return err
		}
		if act == nil {
			return errors.NewNotFoundError("act %s not found", key)
		}
		out := cmd.OutOrStdout()
		if actJSONFlag {
			data, err := json.MarshalIndent(act, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal act")
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		return renderAct(out, act)
	})
}

func renderAct(out io.Writer, act model.ActModel) error {
	a := act.Base()
	data := pterm.TableData{
		{"Key", a.Key.String()},
		{"Version", fmt.Sprintf("%d (%s)", a.VersionSequence, a.VersionKey)},
		{"Class", string(a.ClassKey)},
		{"Status", statusName(a.StatusKey)},
		{"Act time", formatTime(a.ActTime)},
		{"Created", formatTime(&a.CreationTime)},
		{"Obsoleted", formatTime(a.ObsoletionTime)},
		{"Participations", strconv.Itoa(len(a.Participations))},
		{"Relationships", strconv.Itoa(len(a.Relationships))},
		{"Identifiers", strconv.Itoa(len(a.Identifiers))},
		{"Extensions", strconv.Itoa(len(a.Extensions))},
		{"Tags", strconv.Itoa(len(a.Tags))},
	}
	table, err := pterm.DefaultTable.WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render act")
	}
	fmt.Fprintln(out, table)

	issues, err := a.Issues()
	if err != nil {
		return err
	}
	for _, issue := range issues {
		fmt.Fprintln(out, pterm.Warning.Sprintf("%s: %s", issue.Priority, issue.Text))
	}
	return nil
}

func runActHistory(cmd *cobra.Command, args []string) error {
	key, err := parseKey(args[0], "act key")
	if err != nil {
		return err
	}

	return withRepository(func(r *repository) error {
		versions, err := r.Acts.History(cmd.Context(), key)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return errors.NewNotFoundError("act %s not found", key)
		}
		data := pterm.TableData{{"Seq", "Version", "Status", "Created", "Obsoleted"}}
		for _, v := range versions {
			a := v.Base()
			data = append(data, []string{
				strconv.FormatInt(a.VersionSequence, 10),
				a.VersionKey.String(),
				statusName(a.StatusKey),
				formatTime(&a.CreationTime),
				formatTime(a.ObsoletionTime),
			})
		}
		return renderTable(cmd.OutOrStdout(), data)
	})
}

// listPredicate builds the filter named by the list flags.
func listPredicate(o actListOptions) (query.Predicate, error) {
	var ps []query.Predicate
	if o.status != "" {
		status, err := parseStatus(o.status)
		if err != nil {
			return nil, err
		}
		ps = append(ps, model.ActStatus.Eq(status))
	}
	if o.class != "" {
		ps = append(ps, model.ActClass.Eq(model.ClassKey(strings.ToUpper(o.class))))
	}
	return query.All(ps...), nil
}

func runActList(cmd *cobra.Command, args []string) error {
	opts := listOpts
	if opts.session != "" && (opts.status != "" || opts.class != "" || opts.stateful) {
		return errors.NewArgumentError("--session cannot be combined with --status, --class or --stateful")
	}

	return withRepository(func(r *repository) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		var rs persistence.ResultSet[model.ActModel]
		switch {
		case opts.session != "":
			id, err := parseKey(opts.session, "session id")
			if err != nil {
				return err
			}
			if rs, err = r.Acts.Session(ctx, id); err != nil {
				return err
			}
		default:
			p, err := listPredicate(opts)
			if err != nil {
				return err
			}
			rs = r.Acts.Query(p, actActorFlag).OrderByDescending(model.ActCreationTime.Path())
			if opts.stateful {
				id := uuid.New()
				if rs, err = rs.AsStateful(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Session: %s\n", id)
			}
		}

		total, err := rs.TotalCount(ctx)
		if err != nil {
			return err
		}
		page := rs.Skip(opts.offset)
		if opts.count >= 0 {
			page = page.Take(opts.count)
		}
		acts, err := page.ToSlice(ctx)
		if err != nil {
			return err
		}

		data := pterm.TableData{{"Key", "Seq", "Class", "Status", "Act time", "Created"}}
		for _, act := range acts {
			a := act.Base()
			data = append(data, []string{
				a.Key.String(),
				strconv.FormatInt(a.VersionSequence, 10),
				string(a.ClassKey),
				statusName(a.StatusKey),
				formatTime(a.ActTime),
				formatTime(&a.CreationTime),
			})
		}
		if err := renderTable(out, data); err != nil {
			return err
		}
		fmt.Fprintf(out, "Showing %d of %d acts (offset %d)\n", len(acts), total, opts.offset)
		return nil
	})
}

func runActObsolete(cmd *cobra.Command, args []string) error {
	key, err := parseKey(args[0], "act key")
	if err != nil {
		return err
	}
	mode := persistence.ModeCommit
	if actDryRunFlag {
		mode = persistence.ModeRollback
	}

	return withRepository(func(r *repository) error {
		act, err := r.Acts.Obsolete(cmd.Context(), key, mode, actActorFlag)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if actDryRunFlag {
			fmt.Fprintln(out, pterm.Info.Sprintf("Dry run: act %s would be obsoleted (rolled back)", key))
			return nil
		}
		a := act.Base()
		fmt.Fprintln(out, pterm.Success.Sprintf("Obsoleted act %s (status %s, version %d)",
			key, statusName(a.StatusKey), a.VersionSequence))
		return nil
	})
}

func renderTable(out io.Writer, data pterm.TableData) error {
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	fmt.Fprintln(out, table)
	return nil
}
