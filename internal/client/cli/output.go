package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

func validFormat(f string) error {
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (valid: table, json, yaml)", f)
}

// recordView is the printable form of a record.
func recordView(r *models.Record) map[string]any {
	v := map[string]any{
		"id":          r.ID,
		"fields":      r.Fields,
		"pendingSync": r.PendingSync,
	}
	if !r.CreatedAt.IsZero() {
		v["createdAt"] = r.CreatedAt.Format(time.RFC3339)
	}
	if !r.UpdatedAt.IsZero() {
		v["updatedAt"] = r.UpdatedAt.Format(time.RFC3339)
	}
	if r.SyncError != "" {
		v["syncError"] = r.SyncError
	}
	return v
}

// encode writes v as json or yaml.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
}

func printRecords(w io.Writer, format string, recs []*models.Record) error {
	if format != FormatTable {
		views := make([]map[string]any, 0, len(recs))
		for _, r := range recs {
			views = append(views, recordView(r))
		}
		return encode(w, format, views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYNC\tUPDATED\tFIELDS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, syncState(r), formatTime(r.UpdatedAt), formatFields(r.Fields))
	}
	if len(recs) == 0 {
		fmt.Fprintln(tw, "(no records)")
	}
	return tw.Flush()
}

func printRecord(w io.Writer, format string, r *models.Record) error {
	if format != FormatTable {
		return encode(w, format, recordView(r))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", r.ID)
	fmt.Fprintf(tw, "sync\t%s\n", syncState(r))
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated\t%s\n", formatTime(r.UpdatedAt))
	}
	if r.SyncError != "" {
		fmt.Fprintf(tw, "error\t%s\n", r.SyncError)
	}
	for _, k := range slices.Sorted(maps.Keys(r.Fields)) {
		fmt.Fprintf(tw, "%s\t%v\n", k, r.Fields[k])
	}
	return tw.Flush()
}

func syncState(r *models.Record) string {
	switch {
	case r.SyncError != "":
		return "failed"
	case r.PendingSync:
		return "pending"
	default:
		return "synced"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatFields(f map[string]any) string {
	parts := make([]string, 0, len(f))
	for _, k := range slices.Sorted(maps.Keys(f)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return strings.Join(parts, " ")
}
