package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/services"
	"github.com/dmitrijs2005/bizsync/internal/client/syncer"
)

func newCreateCmd(app func() *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "create <type> name=value...",
		Short: "Create a record",
		Long: `Create saves a record locally and queues it for the server.

Values that parse as JSON numbers, booleans or objects keep their type;
everything else is stored as a string.

Example:
  bizsync create invoices number=INV-7 total=120.5 paid=false`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Create(cmd.Context(), args[0], args[1:], format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newGetCmd(app func() *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Get(cmd.Context(), args[0], args[1], format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newListCmd(app func() *App) *cobra.Command {
	var (
		format  string
		where   []string
		opts    services.ListOptions
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List records of a type",
		Long: `List prints the records stored on this device. When the server is
reachable the type is refreshed first.

Example:
  bizsync list invoices --where status=paid --sort total --asc --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := models.ParseFields(where)
			if err != nil {
				return err
			}
			opts.Where = w
			return app().List(cmd.Context(), args[0], opts, refresh, format)
		},
	}
	addFormatFlag(cmd, &format)
	cmd.Flags().StringSliceVar(&where, "where", nil, "filter name=value (repeatable)")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "sort field (default updatedAt)")
	cmd.Flags().BoolVar(&opts.Asc, "asc", false, "sort ascending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "records to skip")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "refresh from the server when online")
	return cmd
}

func newUpdateCmd(app func() *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "update <type> <id> name=value...",
		Short: "Change fields of a record",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Update(cmd.Context(), args[0], args[1], args[2:], format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newDeleteCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Delete(cmd.Context(), args[0], args[1])
		},
	}
}

func addFormatFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", FormatTable, "output format: table, json or yaml")
}

func (a *App) Create(ctx context.Context, typ string, pairs []string, format string) error {
	if err := validFormat(format); err != nil {
		return err
	}
	svc, err := a.service(typ)
	if err != nil {
		return err
	}
	fields, err := models.ParseFields(pairs)
	if err != nil {
		return err
	}

	rec, err := svc.Create(ctx, fields)
	if err != nil {
		return err
	}
	rep := a.flush(ctx)
	return printRecord(a.out, format, a.current(ctx, svc, rec, rep))
}

func (a *App) Get(ctx context.Context, typ, id, format string) error {
	if err := validFormat(format); err != nil {
		return err
	}
	svc, err := a.service(typ)
	if err != nil {
		return err
	}
	rec, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return printRecord(a.out, format, rec)
}

func (a *App) List(ctx context.Context, typ string, opts services.ListOptions, refresh bool, format string) error {
	if err := validFormat(format); err != nil {
		return err
	}
	svc, err := a.service(typ)
	if err != nil {
		return err
	}

	if refresh && !a.interactive && a.probe(ctx) {
		if err := svc.Refresh(ctx); err != nil {
			a.logger.Warn(ctx, "refresh failed, showing local data", "type", typ, "error", err)
		}
	}

	recs, err := svc.GetAll(ctx, opts)
	if err != nil {
		return err
	}
	return printRecords(a.out, format, recs)
}

func (a *App) Update(ctx context.Context, typ, id string, pairs []string, format string) error {
	if err := validFormat(format); err != nil {
		return err
	}
	svc, err := a.service(typ)
	if err != nil {
		return err
	}
	fields, err := models.ParseFields(pairs)
	if err != nil {
		return err
	}

	rec, err := svc.Update(ctx, id, fields)
	if err != nil {
		return err
	}
	rep := a.flush(ctx)
	return printRecord(a.out, format, a.current(ctx, svc, rec, rep))
}

func (a *App) Delete(ctx context.Context, typ, id string) error {
	svc, err := a.service(typ)
	if err != nil {
		return err
	}
	if err := svc.Delete(ctx, id); err != nil {
		return err
	}
	a.flush(ctx)
	fmt.Fprintf(a.out, "Deleted %s %s\n", typ, id)
	return nil
}

// current re-reads rec after a flush, following a local id the server
// replaced.
func (a *App) current(ctx context.Context, svc services.RecordService, rec *models.Record, rep *syncer.Report) *models.Record {
	id := rec.ID
	if rep != nil {
		if serverID, ok := rep.Remapped[id]; ok {
			id = serverID
		}
	}
	if got, err := svc.GetByID(ctx, id); err == nil {
		return got
	}
	return rec
}
