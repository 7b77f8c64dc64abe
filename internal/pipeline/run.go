// Package pipeline runs a complete merge: open the archive, apply selections,
// write the output and record the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/errs"
	"github.com/klytics/sheetmerge/internal/history"
	"github.com/klytics/sheetmerge/internal/merge"
	"github.com/klytics/sheetmerge/internal/profile"
	"github.com/klytics/sheetmerge/internal/prompt"
)

// Select is a column choice given on the command line for one sheet.
type Select struct {
	File  string
	Sheet string
	Spec  string // selection grammar, e.g. "1,3-4" or "all"
}

// ParseSelect parses "file:sheet=spec". Sheet names cannot contain ':', so
// the last colon before '=' separates file and sheet.
func ParseSelect(s string) (Select, error) {
	target, spec, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(spec) == "" {
		return Select{}, fmt.Errorf("invalid --select %q — expected file:sheet=columns, e.g. sales.xlsx:Q1=1,3", s)
	}
	i := strings.LastIndex(target, ":")
	if i <= 0 || i == len(target)-1 {
		return Select{}, fmt.Errorf("invalid --select %q — expected file:sheet=columns, e.g. sales.xlsx:Q1=1,3", s)
	}
	return Select{File: target[:i], Sheet: target[i+1:], Spec: strings.TrimSpace(spec)}, nil
}

// Job describes one run.
type Job struct {
	Archive   string
	Output    string
	Trigger   string
	Profile   *profile.Profile
	Selects   []Select
	SelectAll bool
	// Interact runs after the automatic selections, e.g. to prompt the user.
	Interact func(*merge.Session) error
	// OnSelected sees the final selection before the output is written.
	OnSelected func(*merge.Session) error
}

// Result is the outcome of a successful run.
type Result struct {
	RunID   string          `json:"run_id"`
	Report  *merge.Report   `json:"report"`
	Missing []MissingColumn `json:"missing_columns,omitempty"`
}

// MissingColumn is a profile column a matched sheet does not have.
type MissingColumn struct {
	File   string `json:"file"`
	Sheet  string `json:"sheet"`
	Column string `json:"column"`
}

// Runner executes jobs.
type Runner struct {
	Options merge.Options
	History *history.Log
	Logger  *zap.Logger
}

// Run executes job and records it in the history whatever the outcome.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	entry := history.Entry{
		Trigger: job.Trigger,
		Source:  job.Archive,
		Status:  history.StatusOK,
	}
	if job.Profile != nil {
		entry.Profile = job.Profile.Name
	}

	res, err := r.run(ctx, job, &entry)
	entry.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		entry.Status = history.StatusError
		entry.Error = err.Error()
	}
	id := r.History.Record(ctx, entry)

	if err != nil {
		logger.Error("run failed", zap.String("run_id", id), zap.String("archive", job.Archive), zap.Error(err))
		return nil, err
	}
	res.RunID = id
	logger.Info("run finished",
		zap.String("run_id", id),
		zap.String("output", res.Report.Output),
		zap.Int("sheets", len(res.Report.Sheets)))
	return res, nil
}

func (r *Runner) run(ctx context.Context, job Job, entry *history.Entry) (*Result, error) {
	opts := r.Options
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	session, err := merge.Open(ctx, job.Archive, opts)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	for _, sk := range session.Skipped() {
		entry.Skipped = append(entry.Skipped, sk.File)
	}

	res := &Result{}
	if job.Profile != nil {
		res.Missing, err = ApplyProfile(session, job.Profile)
		if err != nil {
			return nil, err
		}
	}
	if job.SelectAll {
		for _, key := range session.Keys() {
			if err := session.SelectAll(key.File, key.Sheet); err != nil {
				return nil, err
			}
		}
	}
	for _, sel := range job.Selects {
		if err := ApplySelect(session, sel); err != nil {
			return nil, err
		}
	}
	if job.Interact != nil {
		if err := job.Interact(session); err != nil {
			return nil, err
		}
	}
	if job.OnSelected != nil {
		if err := job.OnSelected(session); err != nil {
			return nil, err
		}
	}

	report, err := session.GenerateOutput(ctx, job.Output)
	if err != nil {
		return nil, err
	}
	entry.Output = report.Output
	entry.Sheets = len(report.Sheets)
	res.Report = report
	return res, nil
}

// ApplyProfile selects the profile's matching columns and reports the names
// a matched sheet did not have.
func ApplyProfile(s *merge.Session, p *profile.Profile) ([]MissingColumn, error) {
	var missing []MissingColumn
	matched := p.Match(s.Sources())
	for _, key := range s.Keys() {
		cols, ok := matched[key]
		if !ok {
			continue
		}
		if _, err := s.SelectByName(key.File, key.Sheet, cols); err != nil {
			return nil, err
		}
	}

	// Columns named by file-specific patterns that the sheet lacks.
	for _, cp := range p.ColumnPatterns {
		for _, key := range s.Keys() {
			if cp.Pattern != profile.FilePattern(key.File, key.Sheet) {
				continue
			}
			have := make(map[string]bool)
			for _, c := range matched[key] {
				have[c] = true
			}
			for _, c := range cp.Columns {
				if !have[c] {
					missing = append(missing, MissingColumn{File: key.File, Sheet: key.Sheet, Column: c})
				}
			}
		}
	}
	return missing, nil
}

// ApplySelect applies a command-line selection. It replaces any earlier
// selection of the sheet.
func ApplySelect(s *merge.Session, sel Select) error {
	cols, err := s.ListSheetColumns(sel.File, sel.Sheet)
	if err != nil {
		return err
	}
	entry, err := prompt.ParseEntry(sel.Spec, len(cols))
	if err != nil {
		return err
	}
	switch entry.Action {
	case prompt.ActionAll:
		return s.SelectAll(sel.File, sel.Sheet)
	case prompt.ActionNone:
		return s.SetSelection(sel.File, sel.Sheet, nil)
	case prompt.ActionAdd:
		return s.SetSelection(sel.File, sel.Sheet, entry.Columns)
	}
	return &errs.SelectionError{Input: sel.Spec, Reason: "expected column numbers, all or none"}
}
