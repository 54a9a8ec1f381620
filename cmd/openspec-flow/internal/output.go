package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// FormatText renders human-readable output.
	FormatText OutputFormat = "text"
	// FormatJSON renders machine-readable JSON output.
	FormatJSON OutputFormat = "json"
)

// Formatter renders command results in the selected output format.
type Formatter interface {
	PrintSuccess(message string) error
	PrintError(message string) error
	PrintTable(headers []string, rows [][]string) error
	PrintJSON(data any) error
}

// NewFormatter returns the Formatter for the given format, writing to w.
// Unknown formats fall back to text.
func NewFormatter(format OutputFormat, w io.Writer) Formatter {
	if format == FormatJSON {
		return NewJSONFormatter(w)
	}
	return NewTextFormatter(w)
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TextFormatter renders results as human-readable text.
type TextFormatter struct {
	w io.Writer
}

// NewTextFormatter returns a TextFormatter writing to w.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: w}
}

// PrintSuccess writes the message behind a checkmark.
func (f *TextFormatter) PrintSuccess(message string) error {
	_, err := fmt.Fprintf(f.w, "✓ %s\n", message)
	return err
}

// PrintError writes the message behind a cross.
func (f *TextFormatter) PrintError(message string) error {
	_, err := fmt.Fprintf(f.w, "✗ %s\n", message)
	return err
}

// PrintTable writes an aligned table with uppercased headers and a
// dashed separator line.
func (f *TextFormatter) PrintTable(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	writeRow := func(cells []string) error {
		_, err := fmt.Fprintln(tw, strings.Join(cells, "\t"))
		return err
	}

	upper := make([]string, len(headers))
	dashes := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
		dashes[i] = strings.Repeat("-", len(h))
	}
	if err := writeRow(upper); err != nil {
		return err
	}
	if err := writeRow(dashes); err != nil {
		return err
	}

	for _, row := range rows {
		if err := writeRow(row); err != nil {
			return err
		}
	}
	return nil
}

// PrintJSON writes data as indented JSON even in text mode.
func (f *TextFormatter) PrintJSON(data any) error {
	return writeJSON(f.w, data)
}

// JSONFormatter renders results as JSON documents.
type JSONFormatter struct {
	w io.Writer
}

// NewJSONFormatter returns a JSONFormatter writing to w.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{w: w}
}

func (f *JSONFormatter) printStatus(status, message string) error {
	return writeJSON(f.w, map[string]any{
		"status":  status,
		"message": message,
	})
}

// PrintSuccess writes a success envelope with the message.
func (f *JSONFormatter) PrintSuccess(message string) error {
	return f.printStatus("success", message)
}

// PrintError writes an error envelope with the message.
func (f *JSONFormatter) PrintError(message string) error {
	return f.printStatus("error", message)
}

// PrintTable writes the table as an object with the header list and one
// map per row. Short rows pad missing columns with empty strings.
func (f *JSONFormatter) PrintTable(headers []string, rows [][]string) error {
	data := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				m[h] = row[i]
			} else {
				m[h] = ""
			}
		}
		data = append(data, m)
	}
	return writeJSON(f.w, map[string]any{
		"headers": headers,
		"data":    data,
	})
}

// PrintJSON writes data as indented JSON.
func (f *JSONFormatter) PrintJSON(data any) error {
	return writeJSON(f.w, data)
}
