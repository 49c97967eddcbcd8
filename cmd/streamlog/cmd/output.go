package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return outputTable, nil
	case "json":
		return outputJSON, nil
	case "yaml", "yml":
		return outputYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (supported: table, json, yaml)", s)
	}
}

// formatter renders command results as a table, JSON or YAML
type formatter struct {
	format outputFormat
	writer io.Writer
}

func newFormatter(format outputFormat, w io.Writer) *formatter {
	return &formatter{format: format, writer: w}
}

// structured writes data as JSON or YAML and reports whether it did
func (f *formatter) structured(data any) (bool, error) {
	switch f.format {
	case outputJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(data)
	case outputYAML:
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return true, err
		}
		return true, encoder.Close()
	default:
		return false, nil
	}
}

// table renders rows under upper-cased headers
func (f *formatter) table(headers []string, rows [][]any) error {
	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)

	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))

	for _, row := range rows {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}
	return tw.Flush()
}

// render writes data in a structured format, or falls back to the table
func (f *formatter) render(data any, headers []string, rows func() [][]any) error {
	if done, err := f.structured(data); done {
		return err
	}
	return f.table(headers, rows())
}
