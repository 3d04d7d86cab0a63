// Package format renders command output in the handful of shapes the
// core's machine-friendly surface promises: a human table, CSV/TSV for
// spreadsheets, JSON for tooling, and dotenv/shell-export for sourcing
// allocated ports directly into a shell or process environment.
package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/trop-dev/trop/internal/reservation"
)

// Format is one of the output shapes a subcommand's --format flag selects.
type Format string

const (
	Table       Format = "table"
	CSV         Format = "csv"
	TSV         Format = "tsv"
	JSON        Format = "json"
	Dotenv      Format = "dotenv"
	ShellExport Format = "shell-export"
)

// Parse validates a --format flag value, defaulting to Table when s is empty.
func Parse(s string) (Format, error) {
	if s == "" {
		return Table, nil
	}
	switch Format(s) {
	case Table, CSV, TSV, JSON, Dotenv, ShellExport:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q: want one of table, csv, tsv, json, dotenv, shell-export", s)
	}
}

// PortEntry is one tag/port pair, used for the output of reserve and
// reserve-group (a single untagged entry has Tag == ""). Env, when set,
// overrides the derived dotenv/shell-export variable name with a name
// configured explicitly for that service.
type PortEntry struct {
	Tag  string
	Port int
	Env  string
}

// WritePorts renders allocated ports to w in f. Callers pass the ports
// allocated by a single reserve (one entry, Tag "") or a reserve-group
// (one entry per service tag).
func WritePorts(w io.Writer, f Format, entries []PortEntry) error {
	switch f {
	case Table, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TAG\tPORT")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%d\n", displayTag(e.Tag), e.Port)
		}
		return tw.Flush()

	case CSV, TSV:
		sep := ','
		if f == TSV {
			sep = '\t'
		}
		cw := csv.NewWriter(w)
		cw.Comma = sep
		if err := cw.Write([]string{"tag", "port"}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := cw.Write([]string{e.Tag, fmt.Sprint(e.Port)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case JSON:
		type jsonEntry struct {
			Tag  string `json:"tag,omitempty"`
			Port int    `json:"port"`
		}
		out := make([]jsonEntry, len(entries))
		for i, e := range entries {
			out[i] = jsonEntry{Tag: e.Tag, Port: e.Port}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case Dotenv:
		for _, e := range entries {
			fmt.Fprintf(w, "%s=%d\n", envNameFor(e), e.Port)
		}
		return nil

	case ShellExport:
		for _, e := range entries {
			fmt.Fprintf(w, "export %s=%d\n", envNameFor(e), e.Port)
		}
		return nil

	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// WriteReservations renders a reservation listing to w in f.
func WriteReservations(w io.Writer, f Format, rs []reservation.Reservation) error {
	switch f {
	case Table, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tTAG\tPORT\tPROJECT\tTASK\tLAST USED")
		for _, r := range rs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
				r.Key.Path, r.Key.Tag, r.Port.Int(), r.Project, r.Task, r.LastUsedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return tw.Flush()

	case CSV, TSV:
		sep := ','
		if f == TSV {
			sep = '\t'
		}
		cw := csv.NewWriter(w)
		cw.Comma = sep
		if err := cw.Write([]string{"path", "tag", "port", "project", "task", "last_used_at"}); err != nil {
			return err
		}
		for _, r := range rs {
			if err := cw.Write([]string{
				r.Key.Path, r.Key.Tag, fmt.Sprint(r.Port.Int()), r.Project, r.Task,
				r.LastUsedAt.Format("2006-01-02T15:04:05Z07:00"),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case JSON:
		type jsonReservation struct {
			Path       string `json:"path"`
			Tag        string `json:"tag,omitempty"`
			Port       int    `json:"port"`
			Project    string `json:"project,omitempty"`
			Task       string `json:"task,omitempty"`
			LastUsedAt string `json:"last_used_at"`
		}
		out := make([]jsonReservation, len(rs))
		for i, r := range rs {
			out[i] = jsonReservation{
				Path: r.Key.Path, Tag: r.Key.Tag, Port: r.Port.Int(),
				Project: r.Project, Task: r.Task,
				LastUsedAt: r.LastUsedAt.Format("2006-01-02T15:04:05Z07:00"),
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case Dotenv, ShellExport:
		return fmt.Errorf("format %q is only meaningful for a single reservation's ports, not a listing", f)

	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// WriteStrings renders a flat list of strings (e.g. list-projects output).
func WriteStrings(w io.Writer, f Format, header string, values []string) error {
	switch f {
	case Table, "":
		for _, v := range values {
			fmt.Fprintln(w, v)
		}
		return nil
	case CSV, TSV:
		sep := ','
		if f == TSV {
			sep = '\t'
		}
		cw := csv.NewWriter(w)
		cw.Comma = sep
		if err := cw.Write([]string{header}); err != nil {
			return err
		}
		for _, v := range values {
			if err := cw.Write([]string{v}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	default:
		return fmt.Errorf("format %q is not supported for this output", f)
	}
}

// envNameFor returns e's configured Env override if set, else the name
// derived from its tag.
func envNameFor(e PortEntry) string {
	if e.Env != "" {
		return e.Env
	}
	return envName(e.Tag)
}

// envName upper-cases a service tag into an environment-variable-safe
// name, defaulting to PORT when the entry is untagged.
func envName(tag string) string {
	if tag == "" {
		return "PORT"
	}
	name := strings.ToUpper(tag)
	name = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return name + "_PORT"
}

func displayTag(tag string) string {
	if tag == "" {
		return "-"
	}
	return tag
}
