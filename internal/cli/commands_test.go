package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/sportorg/internal/model"
)

const testEvent = `
event: {
	name:      "Club Night"
	zero_time: "10:00:00"
}

course: A: {controls: ["31", "32"]}

class: M21: {name: "Men 21", course: "A"}

competitor: C1: {name: "Ana Berg", class: "M21", card: "100", bib: 1}
competitor: C2: {name: "Bo Ek", class: "M21", card: "200", bib: 2}
`

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeEvent(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "event")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "event.cue"), []byte(src), 0o644))
	return dir
}

// importedEvent imports the test event into a fresh database and returns
// its path.
func importedEvent(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "event.db")
	_, err := execute(t, "import", "--db", db, writeEvent(t, testEvent))
	require.NoError(t, err)
	return db
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", writeEvent(t, testEvent))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Event valid: 1 courses, 1 classes, 2 competitors")
}

func TestValidateJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", writeEvent(t, testEvent))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "Club Night", resp.Data.Name)
	assert.Equal(t, 2, resp.Data.Competitors)
}

func TestValidateFailures(t *testing.T) {
	bad := testEvent + `competitor: C3: {name: "Cy", class: "W99", card: "100"}` + "\n"

	out, err := execute(t, "validate", writeEvent(t, bad))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E202")
	assert.Contains(t, out, "E203")

	_, err = execute(t, "validate", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestImportRequiresDB(t *testing.T) {
	_, err := execute(t, "import", writeEvent(t, testEvent))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestPunchesToResults(t *testing.T) {
	db := importedEvent(t)

	punches := [][]string{
		{"100", "31", "0:00:10"},
		{"100", "finish", "0:00:30"},
		{"200", "31", "0:00:15"},
		{"100", "32", "0:00:20"},
	}
	var out string
	for _, p := range punches {
		var err error
		out, err = execute(t, append([]string{"punch", "--db", db}, p...)...)
		require.NoError(t, err)
	}
	assert.Contains(t, out, "C1: finished 0:00:30")

	out, err := execute(t, "punch", "--db", db, "999", "31", "0:00:40")
	require.NoError(t, err)
	assert.Contains(t, out, "no competitor holds card 999")

	_, err = execute(t, "punch", "--db", db, "100", "31", "soon")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = execute(t, "--format", "json", "results", "--db", db, "--class", "M21")
	require.NoError(t, err)
	var resp struct {
		Data []ClassResults `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	entries := resp.Data[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "C1", entries[0].CompetitorID)
	assert.Equal(t, model.StatusFinished, entries[0].Status)
	assert.Equal(t, 30*time.Second, entries[0].Result)
	assert.Equal(t, 1, entries[0].Place)
	assert.Equal(t, []int{1, 1}, entries[0].LegPlaces)
	assert.Equal(t, model.StatusInProgress, entries[1].Status)
	assert.Empty(t, entries[1].LegPlaces)

	out, err = execute(t, "results", "--db", db, "--splits")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana Berg")
	assert.Contains(t, out, "31:0:00:10(1) 32:0:00:10(1)")

	_, err = execute(t, "results", "--db", db, "--class", "W99")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "rankings identical in 3 orders")

	out, err = execute(t, "audit", "--db", db, "--review")
	require.NoError(t, err)
	assert.Contains(t, out, "unresolved_card")
}

func TestStatusOverride(t *testing.T) {
	db := importedEvent(t)

	_, err := execute(t, "status", "--db", db, "C2", "disqualified")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "a reason is required")

	_, err = execute(t, "status", "--db", db, "C2", "winning", "--reason", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "status", "--db", db, "C2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, "status", "--db", db, "C2", "did_not_start", "--reason", "withdrew at start")
	require.NoError(t, err)
	assert.Contains(t, out, "C2 is did_not_start (override: withdrew at start)")

	out, err = execute(t, "status", "--db", db, "C2", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "C2 is not_started")

	out, err = execute(t, "audit", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "set_status")
	assert.Contains(t, out, "clear_status")
}

func TestStartList(t *testing.T) {
	classes := []model.Class{{ID: "W21", Name: "Women 21"}, {ID: "M21", Name: "Men 21"}}
	competitors := []model.Competitor{
		{ID: "C1", Name: "Östen Lund", ClassID: "M21"},
		{ID: "C2", Name: "Zeke Holm", ClassID: "M21"},
		{ID: "C3", Name: "Cy Dahl", ClassID: "W21"},
		{ID: "C4", Name: "anna Berg", ClassID: "M21"},
	}

	names := func(c StartListClass) []string {
		var out []string
		for _, comp := range c.Competitors {
			out = append(out, comp.ID)
		}
		return out
	}

	sv := StartList(classes, competitors, collate.New(language.Swedish, collate.IgnoreCase))
	require.Len(t, sv, 2)
	assert.Equal(t, "M21", sv[0].ClassID)
	assert.Equal(t, "Men 21", sv[0].Name)
	assert.Equal(t, []string{"C4", "C2", "C1"}, names(sv[0]), "Ö sorts after Z in Swedish")

	en := StartList(classes, competitors, collate.New(language.English, collate.IgnoreCase))
	assert.Equal(t, []string{"C4", "C1", "C2"}, names(en[0]))
}

func TestStartListCommand(t *testing.T) {
	db := importedEvent(t)

	out, err := execute(t, "startlist", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "M21 (Men 21)")
	assert.Less(t, bytes.Index([]byte(out), []byte("Ana Berg")), bytes.Index([]byte(out), []byte("Bo Ek")))

	_, err = execute(t, "startlist", "--db", db, "--lang", "!!")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioCommand(t *testing.T) {
	scenarios := filepath.Join("..", "harness", "testdata", "scenarios")
	golden := filepath.Join("..", "harness", "testdata", "golden")

	out, err := execute(t, "test", scenarios, "--golden", golden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ out_of_order_finish")
	assert.Contains(t, out, "0 failed")

	out, err = execute(t, "--format", "json", "test", scenarios, "--filter", "penalty*", "--order")
	require.NoError(t, err)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, 1, resp.Data.Total)
	require.NotNil(t, resp.Data.Scenarios[0].OrderIndependent)
	assert.True(t, *resp.Data.Scenarios[0].OrderIndependent)

	_, err = execute(t, "test", filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunStopsAfterDuration(t *testing.T) {
	db := importedEvent(t)
	for _, key := range []string{"SPORTORG_MQTT_BROKER", "SPORTORG_NATS_URL", "SPORTORG_ZERO_TIME", "SPORTORG_TICK", "SPORTORG_RETENTION"} {
		t.Setenv(key, "")
	}

	out, err := execute(t, "run", "--db", db,
		"--listen", "127.0.0.1:0",
		"--http", "127.0.0.1:0",
		"--log-level", "error",
		"--duration", "200ms",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Engine started")
}

func TestRunRejectsBadReader(t *testing.T) {
	_, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "x.db"), "--reader", "finish")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "id=host:port")
}
