package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/client/syncer"
)

func newSyncCmd(app func() *App) *cobra.Command {
	var pull bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes to the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Sync(cmd.Context()); err != nil {
				return err
			}
			if pull {
				return a.Pull(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "also reload every record type from the server")
	return cmd
}

func newStatusCmd(app func() *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Status(cmd.Context(), format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newDeadLettersCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dl"},
		Short:   "Inspect changes the server refused",
	}

	var format string
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().DeadLetters(cmd.Context(), format)
		},
	}
	addFormatFlag(list, &format)

	retry := &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Queue a dead-lettered change again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Retry(cmd.Context(), args[0])
		},
	}

	discard := &cobra.Command{
		Use:   "discard <entry-id>",
		Short: "Drop a dead-lettered change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Discard(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, retry, discard)
	return cmd
}

func newClearCmd(app func() *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all offline data on this device",
		Long:  "Clear removes every local record, queued change and the saved session. Unsynced changes are lost.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			return app().Clear(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func (a *App) Sync(ctx context.Context) error {
	if !a.probe(ctx) {
		return syncer.ErrOffline
	}
	rep, err := a.engine.Sync(ctx)
	if err != nil {
		return err
	}
	printReport(a, rep)
	return nil
}

// Pull replaces the cached copy of every record type with the server's,
// keeping records that still have queued changes.
func (a *App) Pull(ctx context.Context) error {
	if !a.probe(ctx) {
		return syncer.ErrOffline
	}
	if err := a.engine.RefreshAll(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "refreshed: %d types\n", len(models.KnownEntityTypes))
	return nil
}

func printReport(a *App, rep *syncer.Report) {
	fmt.Fprintf(a.out, "synced: %d, dead-lettered: %d\n", rep.Synced, rep.DeadLettered)
	for local, server := range rep.Remapped {
		fmt.Fprintf(a.out, "  %s -> %s\n", local, server)
	}
	if len(rep.Blocked) > 0 {
		fmt.Fprintf(a.out, "retrying later: %v\n", rep.Blocked)
	}
	if rep.Offline {
		fmt.Fprintln(a.out, "connection lost during sync")
	}
}

type statusView struct {
	syncer.Status `yaml:",inline"`
	User          string           `json:"user,omitempty" yaml:"user,omitempty"`
	Types         []typeStatusView `json:"types" yaml:"types"`
}

type typeStatusView struct {
	Type        string     `json:"type" yaml:"type"`
	Records     int        `json:"records" yaml:"records"`
	LastRefresh *time.Time `json:"lastRefresh,omitempty" yaml:"lastRefresh,omitempty"`
}

func (a *App) Status(ctx context.Context, format string) error {
	if err := validFormat(format); err != nil {
		return err
	}
	a.probe(ctx)
	if err := a.engine.LoadStatus(ctx); err != nil {
		return err
	}

	v := statusView{Status: a.engine.Status()}
	if a.session != nil {
		v.User = a.session.Email
	}

	types, err := a.store.Records().Types(ctx)
	if err != nil {
		return err
	}
	slices.Sort(types)
	for _, t := range types {
		n, err := a.store.Records().Count(ctx, t)
		if err != nil {
			return err
		}
		tv := typeStatusView{Type: string(t), Records: n}
		if meta, ok, err := a.engine.CacheMeta(ctx, t); err == nil && ok {
			tv.LastRefresh = &meta.LastRefresh
		}
		v.Types = append(v.Types, tv)
	}

	if format != FormatTable {
		return encode(a.out, format, v)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "online\t%v\n", v.Online)
	if v.User != "" {
		fmt.Fprintf(tw, "user\t%s\n", v.User)
	}
	fmt.Fprintf(tw, "pending\t%d\n", v.Pending)
	fmt.Fprintf(tw, "dead-lettered\t%d\n", v.Dead)
	if v.LastSyncTime != nil {
		fmt.Fprintf(tw, "last sync\t%s\n", formatTime(*v.LastSyncTime))
	}
	if v.LastError != "" {
		fmt.Fprintf(tw, "last error\t%s\n", v.LastError)
	}
	if v.Degraded {
		fmt.Fprintln(tw, "storage\tdegraded (offline snapshot)")
	}
	for _, tv := range v.Types {
		last := "-"
		if tv.LastRefresh != nil {
			last = formatTime(*tv.LastRefresh)
		}
		fmt.Fprintf(tw, "%s\t%d records, refreshed %s\n", tv.Type, tv.Records, last)
	}
	return tw.Flush()
}

func (a *App) DeadLetters(ctx context.Context, format string) error {
	if err := validFormat(format); err != nil {
		return err
	}
	entries, err := a.engine.DeadLetters(ctx)
	if err != nil {
		return err
	}
	if format != FormatTable {
		if entries == nil {
			entries = []*models.QueueEntry{}
		}
		return encode(a.out, format, entries)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tOP\tTYPE\tRECORD\tATTEMPTS\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", e.ID, e.Operation, e.EntityType, e.RecordID, e.Attempts, e.LastError)
	}
	return tw.Flush()
}

func (a *App) Retry(ctx context.Context, entryID string) error {
	if err := a.engine.Requeue(ctx, entryID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requeued %s\n", entryID)
	a.flush(ctx)
	return nil
}

func (a *App) Discard(ctx context.Context, entryID string) error {
	if err := a.engine.Discard(ctx, entryID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Discarded %s\n", entryID)
	return nil
}

func (a *App) Clear(ctx context.Context) error {
	if err := a.auth.ClearOfflineData(ctx); err != nil {
		if errors.Is(err, store.ErrLocalPersistence) {
			return fmt.Errorf("could not clear local data: %w", err)
		}
		return err
	}
	a.session = nil
	if err := a.engine.LoadStatus(ctx); err != nil {
		a.logger.Warn(ctx, "could not reload status", "error", err)
	}
	fmt.Fprintln(a.out, "Offline data cleared.")
	return nil
}
