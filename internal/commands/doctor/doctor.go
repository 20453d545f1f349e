// Package doctor runs diagnostic checks for `perch doctor`.
package doctor

import "context"

// Status is the outcome of a single finding.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Finding is one line of a check's output.
type Finding struct {
	Label   string `json:"label"`
	Status  Status `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Fixable bool   `json:"fixable,omitempty"`
}

// Result groups the findings of one check.
type Result struct {
	Name  string    `json:"name"`
	Items []Finding `json:"items"`
}

func (r *Result) add(status Status, label, detail string) {
	r.Items = append(r.Items, Finding{Label: label, Status: status, Detail: detail})
}

func (r *Result) pass(label, detail string) { r.add(StatusPass, label, detail) }
func (r *Result) warn(label, detail string) { r.add(StatusWarn, label, detail) }
func (r *Result) fail(label, detail string) { r.add(StatusFail, label, detail) }

// Check is a single diagnostic.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Report is the outcome of a doctor run.
type Report struct {
	Results []Result `json:"checks"`
	Passed  int      `json:"passed"`
	Warned  int      `json:"warned"`
	Failed  int      `json:"failed"`
	// Fixable counts open findings that --fix would resolve.
	Fixable int `json:"fixable"`
}

// Healthy reports whether no finding failed.
func (r Report) Healthy() bool {
	return r.Failed == 0
}

// Run executes checks in order and tallies their findings.
func Run(ctx context.Context, checks ...Check) Report {
	report := Report{Results: make([]Result, 0, len(checks))}

	for _, check := range checks {
		result := check.Run(ctx)
		for _, f := range result.Items {
			switch f.Status {
			case StatusPass:
				report.Passed++
			case StatusWarn:
				report.Warned++
			case StatusFail:
				report.Failed++
			}
			if f.Fixable && f.Status != StatusPass {
				report.Fixable++
			}
		}
		report.Results = append(report.Results, result)
	}

	return report
}
