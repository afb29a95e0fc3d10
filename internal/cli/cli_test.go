package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/storesync/internal/application"
	"github.com/JonMunkholm/storesync/internal/config"
	"github.com/JonMunkholm/storesync/internal/core"
	"github.com/JonMunkholm/storesync/internal/store/sqlite"
)

func registerMarcas(t *testing.T) {
	t.Helper()
	require.NoError(t, core.Put(core.EntityDefinition{
		Info:         core.EntityInfo{Key: "marcas", Group: "stock"},
		Fields:       []core.FieldSpec{{Name: "id_marca"}, {Name: "nombre", Required: true}, {Name: "utime"}},
		IdentityKeys: []core.IdentityKey{{"id_marca"}},
	}))
}

// sqliteOpener opens an App over a database file shared by every command of
// the test.
func sqliteOpener(t *testing.T) func(context.Context, *RootOptions, io.Writer) (*application.App, error) {
	path := filepath.Join(t.TempDir(), "pos.db")
	return func(ctx context.Context, opts *RootOptions, stderr io.Writer) (*application.App, error) {
		cfg := &config.Config{
			Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: path},
			Sync:     config.SyncConfig{ChunkSize: 50, MaxConcurrent: 1, MaxWait: time.Second, ChangesLimit: 2},
			Notify:   config.NotifyConfig{Sinks: []string{"none"}},
		}
		app, err := application.New(ctx, cfg, slog.New(slog.NewTextHandler(stderr, nil)))
		if err != nil {
			return nil, err
		}
		err = app.Store.(*sqlite.Store).Exec(ctx, `CREATE TABLE IF NOT EXISTS marcas (
			id_marca INTEGER PRIMARY KEY,
			nombre   TEXT NOT NULL,
			utime    TEXT
		)`)
		return app, err
	}
}

func execute(t *testing.T, open func(context.Context, *RootOptions, io.Writer) (*application.App, error), stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Open: open})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"apply", "changes", "entities", "catalog"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, nil, "", "--format", "xml", "entities")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestApplyThenChanges(t *testing.T) {
	registerMarcas(t)
	open := sqliteOpener(t)

	batch := `{"operation": "BATCH_SYNC", "data": [
		{"id_marca": 1, "nombre": "Acme", "utime": "2024-06-01 10:00:00.000"},
		{"id_marca": 2, "nombre": "Globex", "utime": "2024-06-01 11:00:00.000"},
		{"id_marca": 3, "nombre": "Initech", "utime": "2024-06-01 12:00:00.000"}
	]}`
	out, err := execute(t, open, batch, "apply", "marcas", "--format", "json")
	require.NoError(t, err)

	var report core.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Created)

	out, err = execute(t, open, "", "changes", "marcas", "--since", "2024-06-01T10:30:00Z", "--all")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"Globex"`)
	assert.Contains(t, lines[1], `"Initech"`)
}

func TestApply_FailedRecordsExitOne(t *testing.T) {
	registerMarcas(t)
	open := sqliteOpener(t)

	out, err := execute(t, open, `[{"id_marca": 9, "utime": "2024-06-01 10:00:00.000"}]`, "apply", "marcas")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed=1")
	assert.Contains(t, out, "#0 failed")
}

func TestApply_FromFile(t *testing.T) {
	registerMarcas(t)
	open := sqliteOpener(t)

	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id_marca": 4, "nombre": "Umbrella"}]`), 0o600))

	out, err := execute(t, open, "", "apply", "marcas", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created=1")
}

func TestApply_BadInput(t *testing.T) {
	_, err := execute(t, nil, `not json`, "apply", "marcas")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEntities(t *testing.T) {
	registerMarcas(t)

	out, err := execute(t, nil, "", "entities")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "marcas")
}

func TestCatalogCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
entities:
  - key: talles
    fields:
      - name: id_talle
      - name: utime
    identity_keys:
      - [id_talle]
`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("entities:\n  - key: talles\n    colour: red\n"), 0o600))

	out, err := execute(t, nil, "", "catalog", "check", good, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"talles"`)

	_, err = execute(t, nil, "", "catalog", "check", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", assert.AnError)))
}
