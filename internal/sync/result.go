package sync

import "time"

// TableResult records the outcome of one table's load.
type TableResult struct {
	Table       string
	Rows        int64
	Incremental bool
	Duration    time.Duration
	Err         error
}

// Result aggregates a whole run. Per-table failures do not abort the
// run, so a Result can carry both loaded tables and failed ones.
type Result struct {
	Tables   []TableResult
	Duration time.Duration
}

// Failed returns the tables whose load errored.
func (r *Result) Failed() []TableResult {
	var failed []TableResult
	for _, t := range r.Tables {
		if t.Err != nil {
			failed = append(failed, t)
		}
	}
	return failed
}

// TotalRows sums rows loaded across all successful tables.
func (r *Result) TotalRows() int64 {
	var total int64
	for _, t := range r.Tables {
		if t.Err == nil {
			total += t.Rows
		}
	}
	return total
}
