// Package validate runs post-load consistency checks against the warehouse.
// Checks report findings; they never mutate data.
package validate

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/warehouse"
)

// Severity grades a finding. Errors indicate data that violates an
// invariant; warnings flag conditions worth a look but not necessarily wrong.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation result.
type Finding struct {
	Check    string
	Severity Severity
	Message  string
	Count    int64
}

// Report is the outcome of a full validation pass.
type Report struct {
	Tables   map[string]int64
	Findings []Finding
}

// Failed reports whether any error-grade finding was produced.
func (r *Report) Failed() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) add(check string, sev Severity, count int64, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Check:    check,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Count:    count,
	})
}

// Validator runs the check suite.
type Validator struct {
	w   *warehouse.Warehouse
	log *zap.Logger
}

func New(w *warehouse.Warehouse) *Validator {
	return &Validator{w: w, log: zap.L().Named("validate")}
}

// Run executes every check and returns the combined report.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	report := &Report{Tables: make(map[string]int64)}

	if err := v.checkTables(ctx, report); err != nil {
		return nil, err
	}
	if err := v.checkOHLC(ctx, report); err != nil {
		return nil, err
	}
	if err := v.checkOrphans(ctx, report); err != nil {
		return nil, err
	}
	if err := v.checkFactJoin(ctx, report); err != nil {
		return nil, err
	}

	for _, f := range report.Findings {
		field := zap.Int64("count", f.Count)
		if f.Severity == SeverityError {
			v.log.Error(f.Message, zap.String("check", f.Check), field)
		} else {
			v.log.Warn(f.Message, zap.String("check", f.Check), field)
		}
	}
	v.log.Info("validation finished",
		zap.Int("tables", len(report.Tables)),
		zap.Int("findings", len(report.Findings)),
		zap.Bool("failed", report.Failed()))
	return report, nil
}

// checkTables records per-table row counts and flags missing core tables.
func (v *Validator) checkTables(ctx context.Context, report *Report) error {
	core := map[string]bool{
		"companies":     true,
		"tickers":       true,
		"filings":       true,
		"xbrl_facts":    true,
		"stock_history": true,
	}
	for _, spec := range warehouse.Tables() {
		exists, err := v.w.TableExists(ctx, spec.Name)
		if err != nil {
			return err
		}
		if !exists {
			if core[spec.Name] {
				report.add("tables", SeverityError, 0, "core table %s is missing", spec.Name)
			}
			continue
		}
		count, err := v.w.RowCount(ctx, spec.Name)
		if err != nil {
			return err
		}
		report.Tables[spec.Name] = count
		if core[spec.Name] && count == 0 {
			report.add("tables", SeverityWarning, 0, "core table %s is empty", spec.Name)
		}
	}
	return nil
}

// checkOHLC flags price bars violating basic shape invariants: the high must
// bound the low and both open and close, and nothing may be negative.
func (v *Validator) checkOHLC(ctx context.Context, report *Report) error {
	exists, err := v.w.TableExists(ctx, "stock_history")
	if err != nil || !exists {
		return err
	}

	var bad int64
	err = v.w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_history
		 WHERE high < low
		    OR high < open OR high < close
		    OR low > open OR low > close
		    OR open < 0 OR high < 0 OR low < 0 OR close < 0 OR volume < 0`).Scan(&bad)
	if err != nil {
		return eris.Wrap(err, "validate: ohlc check")
	}
	if bad > 0 {
		report.add("ohlc", SeverityError, bad, "%d stock bars violate OHLC bounds", bad)
	}
	return nil
}

// checkOrphans reports facts sitting in quarantine and any facts still in
// the live table without a matching filing.
func (v *Validator) checkOrphans(ctx context.Context, report *Report) error {
	exists, err := v.w.TableExists(ctx, "xbrl_facts_orphaned")
	if err != nil {
		return err
	}
	if exists {
		quarantined, err := v.w.RowCount(ctx, "xbrl_facts_orphaned")
		if err != nil {
			return err
		}
		if quarantined > 0 {
			report.add("orphans", SeverityWarning, quarantined,
				"%d facts quarantined awaiting their filings", quarantined)
		}
	}

	factsExist, err := v.w.TableExists(ctx, "xbrl_facts")
	if err != nil || !factsExist {
		return err
	}
	filingsExist, err := v.w.TableExists(ctx, "filings")
	if err != nil || !filingsExist {
		return err
	}

	var unmatched int64
	err = v.w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM xbrl_facts
		 WHERE accession_number NOT IN (SELECT accession_number FROM filings)`).Scan(&unmatched)
	if err != nil {
		return eris.Wrap(err, "validate: live orphan check")
	}
	if unmatched > 0 {
		report.add("orphans", SeverityError, unmatched,
			"%d live facts reference filings that do not exist", unmatched)
	}
	return nil
}

// checkFactJoin measures how much of the fact table joins cleanly to
// filings, a coarse health signal for the parse stage.
func (v *Validator) checkFactJoin(ctx context.Context, report *Report) error {
	factsExist, err := v.w.TableExists(ctx, "xbrl_facts")
	if err != nil || !factsExist {
		return err
	}
	filingsExist, err := v.w.TableExists(ctx, "filings")
	if err != nil || !filingsExist {
		return err
	}

	var total, joined int64
	if err := v.w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM xbrl_facts`).Scan(&total); err != nil {
		return eris.Wrap(err, "validate: fact total")
	}
	if total == 0 {
		return nil
	}
	err = v.w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM xbrl_facts f
		 JOIN filings g ON g.accession_number = f.accession_number`).Scan(&joined)
	if err != nil {
		return eris.Wrap(err, "validate: fact join")
	}

	ratio := float64(joined) / float64(total)
	if ratio < 0.99 {
		report.add("fact_join", SeverityWarning, total-joined,
			"only %.1f%% of facts join to a filing", ratio*100)
	}
	return nil
}
