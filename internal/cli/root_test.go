package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "migratory", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "plan", "migrate", "status", "up", "down", "rerun", "mark-failed", "drop", "destroy"}
	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

// project is a temporary migrations directory with a config file that
// points at a SQLite database next to it.
type project struct {
	dir    string
	config string
}

func newProject(t *testing.T, migrations map[string]string) *project {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "migrations")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for name, body := range migrations {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	cfgPath := filepath.Join(root, "migratory.yaml")
	cfg := "database:\n" +
		"  driver: sqlite\n" +
		"  dsn: " + filepath.Join(root, "app.db") + "\n" +
		"migrations:\n" +
		"  dir: " + dir + "\n" +
		"  transactional: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return &project{dir: dir, config: cfgPath}
}

var defaultMigrations = map[string]string{
	"001_users_up.sql":   "CREATE TABLE users(id INTEGER PRIMARY KEY);",
	"001_users_down.sql": "DROP TABLE users;",
	"002_posts_up.sql":   "CREATE TABLE posts(id INTEGER PRIMARY KEY);",
	"002_posts_down.sql": "DROP TABLE posts;",
}

func (p *project) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	opts := &RootOptions{lookupEnv: func(string) (string, bool) { return "", false }}
	code := execute(context.Background(), opts, append([]string{"--config", p.config}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestPlanAndMigrate_Text(t *testing.T) {
	p := newProject(t, defaultMigrations)

	code, out, _ := p.run(t, "plan")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `up: "001_users"`)
	assert.Contains(t, out, "2 actions")

	code, out, _ = p.run(t, "migrate")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `Successfully finished "up" on 002_posts.`)
	assert.Contains(t, out, "Migrated: 2 action(s) applied.")

	code, out, _ = p.run(t, "status")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `up: "002_posts"`)
	assert.Contains(t, out, "2 migrations")
}

func TestStatus_VerboseListsDeclared(t *testing.T) {
	p := newProject(t, map[string]string{
		"001_users_up.sql":   "CREATE TABLE users(id INTEGER PRIMARY KEY);",
		"001_users_down.sql": "DROP TABLE users;",
		"002_posts_up.sql":   "CREATE TABLE posts(id INTEGER PRIMARY KEY);",
	})

	code, out, errOut := p.run(t, "--verbose", "--format", "json", "status")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, "ok", decode(t, out).Status)
	assert.Contains(t, errOut, "declared 001_users: 1 up step(s), 1 down step(s)")
	assert.Contains(t, errOut, "declared 002_posts: 1 up step(s), 0 down step(s)")

	_, _, errOut = p.run(t, "status")
	assert.NotContains(t, errOut, "declared")
}

func TestMigrate_JSON(t *testing.T) {
	p := newProject(t, defaultMigrations)

	code, out, errOut := p.run(t, "--format", "json", "migrate")
	require.Equal(t, ExitSuccess, code, errOut)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Len(t, data["actions"], 2)
	assert.Len(t, data["records"], 2)
	assert.Contains(t, errOut, "Starting to run 001_users")

	code, out, _ = p.run(t, "--format", "json", "plan")
	require.Equal(t, ExitSuccess, code)
	resp = decode(t, out)
	assert.Equal(t, []any{}, resp.Data.(map[string]any)["actions"])
}

func TestStepCommands(t *testing.T) {
	p := newProject(t, defaultMigrations)

	code, out, _ := p.run(t, "--format", "json", "up", "002_posts")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, map[string]any{"migrationId": "002_posts", "state": "up"}, decode(t, out).Data)

	code, out, _ = p.run(t, "rerun", "002_posts")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Reran 002_posts.")

	code, out, _ = p.run(t, "--format", "json", "down", "002_posts")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "down", decode(t, out).Data.(map[string]any)["state"])

	code, out, _ = p.run(t, "--format", "json", "mark-failed", "001_users")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "failed", decode(t, out).Data.(map[string]any)["state"])

	code, out, _ = p.run(t, "--format", "json", "drop", "001_users")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "down", decode(t, out).Data.(map[string]any)["state"])

	code, _, _ = p.run(t, "up")
	assert.Equal(t, ExitCommandError, code)
}

func TestMigrate_FailureExitCode(t *testing.T) {
	p := newProject(t, map[string]string{
		"001_ok_up.sql":     "CREATE TABLE ok(id INTEGER);",
		"002_broken_up.sql": "CREATE TABLE ok(id INTEGER);",
	})

	code, out, _ := p.run(t, "--format", "json", "migrate")
	require.Equal(t, ExitFailure, code)
	resp := decode(t, strings.TrimSpace(out))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "migration", resp.Error.Code)
	assert.Equal(t, ExitFailure, resp.Error.Exit)

	code, out, _ = p.run(t, "status")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `failed: "002_broken"`)
}

func TestDestroy(t *testing.T) {
	p := newProject(t, defaultMigrations)
	code, _, _ := p.run(t, "migrate")
	require.Equal(t, ExitSuccess, code)

	code, _, errOut := p.run(t, "destroy")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "--yes")

	code, out, _ := p.run(t, "destroy", "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, `Successfully finished "down" on 001_users.`)
	assert.Contains(t, out, "Destroyed.")
}

func TestInit(t *testing.T) {
	p := newProject(t, defaultMigrations)
	code, out, _ := p.run(t, "--format", "json", "init")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, map[string]any{"initialized": true}, decode(t, out).Data)
}

func TestConfigAndFlagErrors(t *testing.T) {
	p := newProject(t, defaultMigrations)

	code, _, errOut := p.run(t, "--format", "xml", "plan")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "invalid format")

	require.NoError(t, os.WriteFile(p.config, []byte("store:\n  driver: etcd\n"), 0o644))
	code, out, _ := p.run(t, "--format", "json", "plan")
	assert.Equal(t, ExitCommandError, code)
	resp := decode(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "config", resp.Error.Code)

	code, _, _ = p.run(t, "no-such-command")
	assert.Equal(t, ExitCommandError, code)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(failure("x", errors.New("y"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag")))
	assert.Equal(t, "x: y", failure("x", errors.New("y")).Error())
}
