package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/model"
	"github.com/teranos/cdr/persistence"
)

func init() {
	pterm.DisableStyling()
}

var mmolPerLitre = uuid.MustParse("0f3a31c0-8d2b-4f0a-9a65-2c3f6b9b4d11")

// useTestConfig points the configuration at a fresh sqlite file with the sql
// query registry, so sessions outlive a single command.
func useTestConfig(t *testing.T) *am.Config {
	t.Helper()
	t.Setenv("CDR_DATABASE_PATH", filepath.Join(t.TempDir(), "cdr.db"))
	t.Setenv("CDR_QUERY_REGISTRY", am.RegistrySQL)
	cfg, err := am.Load()
	require.NoError(t, err)
	return cfg
}

func seedQuantities(t *testing.T, cfg *am.Config, values ...float64) []uuid.UUID {
	t.Helper()
	r, err := openRepository(cfg)
	require.NoError(t, err)
	defer r.Close()

	actTime := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	keys := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		obs := &model.QuantityObservation{
			Act: model.Act{
				ActTime: &actTime,
				Participations: []model.ActParticipation{
					{PlayerKey: uuid.New(), RoleKey: model.RoleRecordTarget},
				},
			},
			Value:   v,
			UnitKey: mmolPerLitre,
		}
		saved, err := r.Acts.Insert(context.Background(), obs, persistence.ModeCommit, "seeder")
		require.NoError(t, err)
		keys = append(keys, saved.GetKey())
	}
	return keys
}

// run executes cmd with args and returns what it printed.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	listOpts = actListOptions{count: 20}
	actVersionFlag, actJSONFlag, actDryRunFlag = "", false, false
	actActorFlag = "tester"

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sessionID(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if id, ok := strings.CutPrefix(line, "Session: "); ok {
			return strings.TrimSpace(id)
		}
	}
	t.Fatalf("no session id in output:\n%s", output)
	return ""
}

func TestAmCmd_Subcommands(t *testing.T) {
	cfg := useTestConfig(t)

	out, err := run(t, AmCmd, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = run(t, AmCmd, "get", "database.path")
	require.NoError(t, err)
	assert.Equal(t, cfg.Database.Path, strings.TrimSpace(out))

	_, err = run(t, AmCmd, "get", "no.such.key")
	assert.Error(t, err)

	out, err = run(t, AmCmd, "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, cfg.Database.Path)
}

func TestDbCmd_Subcommands(t *testing.T) {
	cfg := useTestConfig(t)

	out, err := run(t, DbCmd, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema up to date")

	seedQuantities(t, cfg, 4.2)

	out, err = run(t, DbCmd, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "quantity_observation")
	assert.Contains(t, out, "Total rows:")
}

func TestActCmd_Lifecycle(t *testing.T) {
	cfg := useTestConfig(t)
	keys := seedQuantities(t, cfg, 4.2, 5.1, 6.3)

	out, err := run(t, ActCmd, "list")
	require.NoError(t, err)
	for _, k := range keys {
		assert.Contains(t, out, k.String())
	}
	assert.Contains(t, out, "Showing 3 of 3 acts")

	out, err = run(t, ActCmd, "get", keys[0].String())
	require.NoError(t, err)
	assert.Contains(t, out, keys[0].String())
	assert.Contains(t, out, string(model.ClassQuantityObservation))

	out, err = run(t, ActCmd, "obsolete", keys[0].String(), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")

	out, err = run(t, ActCmd, "list", "--class", "obs.qty")
	require.NoError(t, err)
	assert.Contains(t, out, "Showing 3 of 3 acts")

	out, err = run(t, ActCmd, "obsolete", keys[0].String())
	require.NoError(t, err)
	assert.Contains(t, out, "Obsoleted act")
	assert.Contains(t, out, "status obsolete")

	out, err = run(t, ActCmd, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, keys[0].String())
	assert.Contains(t, out, "Showing 2 of 2 acts")

	out, err = run(t, ActCmd, "list", "--status", "obsolete")
	require.NoError(t, err)
	assert.Contains(t, out, keys[0].String())
	assert.Contains(t, out, "Showing 1 of 1 acts")

	out, err = run(t, ActCmd, "history", keys[0].String())
	require.NoError(t, err)
	assert.Contains(t, out, "obsolete")
	assert.Equal(t, 2, countVersions(out))
}

// countVersions counts history rows other than the header.
func countVersions(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "|") && !strings.Contains(line, "Seq") {
			n++
		}
	}
	return n
}

func TestActCmd_ListSession(t *testing.T) {
	cfg := useTestConfig(t)
	seedQuantities(t, cfg, 1, 2, 3)

	out, err := run(t, ActCmd, "list", "--stateful", "--count", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Showing 2 of 3 acts")
	id := sessionID(t, out)

	// a new act does not join the pinned set
	seedQuantities(t, cfg, 4)

	out, err = run(t, ActCmd, "list", "--session", id, "--offset", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Showing 1 of 3 acts (offset 2)")

	_, err = run(t, ActCmd, "list", "--session", id, "--class", "PROC")
	assert.True(t, errors.IsArgumentError(err))

	_, err = run(t, ActCmd, "list", "--session", uuid.NewString())
	assert.True(t, errors.IsNotFoundError(err))
}

func TestActCmd_Arguments(t *testing.T) {
	useTestConfig(t)

	_, err := run(t, ActCmd, "get", "not-a-uuid")
	assert.True(t, errors.IsArgumentError(err))

	_, err = run(t, ActCmd, "get", uuid.NewString())
	assert.True(t, errors.IsNotFoundError(err))

	_, err = run(t, ActCmd, "history", uuid.NewString())
	assert.True(t, errors.IsNotFoundError(err))

	_, err = run(t, ActCmd, "list", "--status", "pending")
	assert.True(t, errors.IsArgumentError(err))
}
