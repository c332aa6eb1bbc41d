package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/padillasconcrete/siteapi/internal/output"
)

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

var fileExtensions = map[output.Format]string{
	output.FormatJSON:     "json",
	output.FormatMarkdown: "md",
	output.FormatTable:    "txt",
}

// outputTarget is where a command's rendered output goes. An empty path
// means stdout.
type outputTarget struct {
	format output.Format
	path   string
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command, formats string) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: "+formats)
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory, named after the command")
}

// readOutputTarget resolves the output flags of cmd. name is the file stem
// used with --out-dir.
func readOutputTarget(cmd *cobra.Command, name string) (outputTarget, error) {
	flags := cmd.Flags()
	rawFormat, _ := flags.GetString("output-format")
	outPath, _ := flags.GetString("out")
	outDir, _ := flags.GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	format, err := output.ParseFormat(rawFormat)
	if err != nil {
		return outputTarget{}, err
	}
	if outPath != "" && outDir != "" {
		return outputTarget{}, errors.New("--out and --out-dir are mutually exclusive")
	}

	target := outputTarget{format: format, path: outPath}
	if outPath == "-" {
		target.path = ""
	}
	if outDir != "" {
		ext := fileExtensions[format]
		if ext == "" {
			ext = "txt"
		}
		target.path = filepath.Join(outDir, sanitizeFilename(name)+"."+ext)
	}
	return target, nil
}

// write sends content to stdout, or replaces the target file atomically so
// an interrupted run never leaves a truncated report.
func (t outputTarget) write(content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if t.path == "" {
		_, err := os.Stdout.WriteString(content)
		return err
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), t.path)
}

// writeListing renders a listing with the formatter selected by the
// command's flags.
func writeListing(cmd *cobra.Command, name string, render func(output.Formatter) (string, error)) error {
	target, err := readOutputTarget(cmd, name)
	if err != nil {
		return err
	}
	rendered, err := render(output.NewFormatter(target.format))
	if err != nil {
		return err
	}
	return target.write(rendered)
}

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}
