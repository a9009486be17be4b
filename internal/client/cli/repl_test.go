package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/bizsync/internal/client/config"
)

func TestRunREPL_DispatchesCommands(t *testing.T) {
	env := newTestEnv(t, false)
	env.login(t)
	env.app.interactive = true
	env.app.reader = bufio.NewReader(strings.NewReader(strings.Join([]string{
		"help",
		"create invoices total=3",
		"list invoices -o json",
		"get invoices nope",
		"bogus",
		"",
		"quit",
		"create invoices total=4",
	}, "\n") + "\n"))

	require.NoError(t, env.app.runREPL(context.Background()))

	out := env.out.String()
	assert.Contains(t, out, "Available Commands")
	assert.Contains(t, out, `"total": 3`)
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "Bye!")
	assert.NotContains(t, out, `"total": 4`, "input after quit is ignored")
}

func TestRunREPL_EOF(t *testing.T) {
	env := newTestEnv(t, false)
	env.app.reader = bufio.NewReader(strings.NewReader("status"))
	require.NoError(t, env.app.runREPL(context.Background()))
	assert.Contains(t, env.out.String(), "pending")
}

func TestShell_StartsAndStops(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)
	require.NoError(t, env.app.Shell(context.Background(), strings.NewReader("status\nexit\n")))
	assert.Contains(t, env.out.String(), "bizsync shell")
}

func TestRootCmd_UsesFactory(t *testing.T) {
	env := newTestEnv(t, false)
	env.login(t)

	var got *config.Config
	root := newRootCmd(func(ctx context.Context, cfg *config.Config) (*App, error) {
		got = cfg
		return env.app, nil
	})
	root.SetOut(env.out)
	root.SetArgs([]string{"--sync-interval", "45s", "create", "invoices", "total=2", "-o", "yaml"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, got)
	assert.Equal(t, "45s", got.SyncInterval.String())
	assert.Contains(t, env.out.String(), "total: 2")
}

func TestRootCmd_ClearNeedsConfirmation(t *testing.T) {
	env := newTestEnv(t, false)
	root := newRootCmd(func(context.Context, *config.Config) (*App, error) { return env.app, nil })
	root.SetOut(env.out)
	root.SetErr(env.out)
	root.SetArgs([]string{"clear"})
	require.ErrorContains(t, root.Execute(), "--yes")
}

func TestRootCmd_HasShell(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "shell")

	inner := &cobra.Command{Use: "x"}
	addCommands(inner, func() *App { return nil }, true)
	for _, c := range inner.Commands() {
		assert.NotEqual(t, "shell", c.Name())
	}
}
