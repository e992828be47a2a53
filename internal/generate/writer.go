package generate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Writer persists artifacts to the output directory. The rules, in
// order: a same-named file without the generated header is hand-authored
// and always wins (a normal skip, never an error); an existing generated
// file is left untouched unless Force is set; everything else is
// written. Re-running without Force modifies no files.
type Writer struct {
	OutputDir string
	Force     bool
	Logger    *slog.Logger
}

// WriteResult reports what the writer did, per file name.
type WriteResult struct {
	Written         []string
	SkippedExplicit []string
	SkippedExisting []string
}

// Write persists every artifact, applying the explicit-wins and force
// rules per file.
func (w *Writer) Write(artifacts []Artifact) (*WriteResult, error) {
	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	res := &WriteResult{}
	for _, a := range artifacts {
		path := filepath.Join(w.OutputDir, a.FileName)

		existing, err := os.ReadFile(path)
		switch {
		case err == nil && !isGenerated(existing):
			w.log("skipping %s: explicit definition exists", a.FileName)
			res.SkippedExplicit = append(res.SkippedExplicit, a.FileName)
			continue
		case err == nil && !w.Force:
			res.SkippedExisting = append(res.SkippedExisting, a.FileName)
			continue
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("checking %s: %w", a.FileName, err)
		}

		if err := os.WriteFile(path, []byte(a.SQL), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", a.FileName, err)
		}
		res.Written = append(res.Written, a.FileName)
	}
	return res, nil
}

func (w *Writer) log(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Info(fmt.Sprintf(format, args...))
	}
}

func isGenerated(content []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(content)), Header)
}
