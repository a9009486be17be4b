package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

func newShellCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell with background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Shell(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// Shell runs the watcher and the sync engine in the background and reads
// commands until EOF, "exit" or "quit".
func (a *App) Shell(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	a.interactive = true
	a.reader = bufio.NewReader(in)

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.oracle.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := a.engine.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error(ctx, "sync engine stopped", "error", err)
		}
	}()

	fmt.Fprintln(a.out, "bizsync shell (type 'help' for commands)")
	return a.runREPL(ctx)
}

// runREPL dispatches each line to the command tree. Command errors are
// printed and the loop goes on.
func (a *App) runREPL(ctx context.Context) error {
	for {
		fmt.Fprintf(a.out, "bizsync %s> ", a.getStatus())
		line, err := a.reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(a.out)
			return nil
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return nil
		case "help":
			args = []string{"--help"}
		}

		cmd := a.shellCommand()
		cmd.SetArgs(args)
		if err := cmd.ExecuteContext(ctx); err != nil {
			fmt.Fprintln(a.out, "Error:", err)
		}
	}
}

func (a *App) shellCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bizsync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.out)
	root.CompletionOptions.DisableDefaultCmd = true
	addCommands(root, func() *App { return a }, true)
	return root
}
