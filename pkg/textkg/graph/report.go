package graph

import (
	"encoding/json"
	"sort"
	"time"
)

// RecordClass names one of the three record collections in per-kind
// report statistics.
type RecordClass string

// Record classes.
const (
	ClassEntities  RecordClass = "entities"
	ClassStates    RecordClass = "states"
	ClassRelations RecordClass = "relations"
)

// ClassStats holds per-record-class validation statistics.
type ClassStats struct {
	// Total is the number of records the validator saw.
	Total int `json:"total"`

	// Errors is the number of distinct records flagged with an error
	// or warning.
	Errors int `json:"errors"`

	// ErrorRate is Errors / Total, 0 when Total is 0.
	ErrorRate float64 `json:"error_rate"`

	// ErrorIDs lists the distinct flagged record identifiers.
	ErrorIDs []string `json:"error_ids,omitempty"`
}

// Report accumulates everything a validation run did: records dropped,
// records auto-corrected, and warnings left as-is, plus per-class
// counts and rates. A Report is created fresh per Validate call and is
// read-only once returned.
type Report struct {
	// ErrorsDeleted describes records excluded from the output.
	ErrorsDeleted []string `json:"errors_deleted"`

	// WarningsModified describes records rewritten by an auto-correction.
	WarningsModified []string `json:"warnings_modified"`

	// WarningsUnmodified describes records flagged but left as-is.
	WarningsUnmodified []string `json:"warnings_unmodified"`

	// Entities, States, Relations hold per-class statistics.
	Entities  ClassStats `json:"entities"`
	States    ClassStats `json:"states"`
	Relations ClassStats `json:"relations"`

	// ErrorCount is the total number of distinct flagged records.
	ErrorCount int `json:"error_count"`

	// ErrorRate is ErrorCount over all records seen, 0 when none.
	ErrorRate float64 `json:"error_rate"`

	// GeneratedAt is when the validation run finished.
	GeneratedAt time.Time `json:"generated_at"`

	// Per-class sets of flagged record IDs, folded into ClassStats by
	// finalize. A map keeps each ID counted once however many rules it
	// trips.
	flagged map[RecordClass]map[string]bool
}

func newReport() *Report {
	return &Report{
		ErrorsDeleted:      []string{},
		WarningsModified:   []string{},
		WarningsUnmodified: []string{},
		flagged: map[RecordClass]map[string]bool{
			ClassEntities:  {},
			ClassStates:    {},
			ClassRelations: {},
		},
	}
}

// addError records a deleted record.
func (r *Report) addError(class RecordClass, id, msg string) {
	r.ErrorsDeleted = append(r.ErrorsDeleted, msg)
	r.flag(class, id)
}

// addCorrection records an auto-corrected record.
func (r *Report) addCorrection(class RecordClass, id, msg string) {
	r.WarningsModified = append(r.WarningsModified, msg)
	r.flag(class, id)
}

// addWarning records a flagged-but-unmodified record.
func (r *Report) addWarning(class RecordClass, id, msg string) {
	r.WarningsUnmodified = append(r.WarningsUnmodified, msg)
	r.flag(class, id)
}

func (r *Report) flag(class RecordClass, id string) {
	if id == "" {
		return
	}
	r.flagged[class][id] = true
}

// finalize computes counts and rates from the accumulated sets.
func (r *Report) finalize(entityTotal, stateTotal, relationTotal int) {
	r.Entities = classStats(entityTotal, r.flagged[ClassEntities])
	r.States = classStats(stateTotal, r.flagged[ClassStates])
	r.Relations = classStats(relationTotal, r.flagged[ClassRelations])

	r.ErrorCount = r.Entities.Errors + r.States.Errors + r.Relations.Errors
	total := entityTotal + stateTotal + relationTotal
	if total > 0 {
		r.ErrorRate = float64(r.ErrorCount) / float64(total)
	}
	r.GeneratedAt = time.Now().UTC()
}

func classStats(total int, flagged map[string]bool) ClassStats {
	ids := make([]string, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	stats := ClassStats{Total: total, Errors: len(flagged), ErrorIDs: ids}
	if total > 0 {
		stats.ErrorRate = float64(stats.Errors) / float64(total)
	}
	return stats
}

// Summary is the condensed view of a validation run.
type Summary struct {
	ErrorCount      int     `json:"error_count"`
	WarningCount    int     `json:"warning_count"`
	CorrectionCount int     `json:"correction_count"`
	ErrorRate       float64 `json:"error_rate"`
	SuccessRate     float64 `json:"success_rate"`
	TotalProcessed  int     `json:"total_processed"`
}

// Summary returns the condensed view of the report.
func (r *Report) Summary() Summary {
	return Summary{
		ErrorCount:      r.ErrorCount,
		WarningCount:    len(r.WarningsUnmodified),
		CorrectionCount: len(r.WarningsModified),
		ErrorRate:       r.ErrorRate,
		SuccessRate:     1.0 - r.ErrorRate,
		TotalProcessed:  r.Entities.Total + r.States.Total + r.Relations.Total,
	}
}

// Export serializes the full report together with its summary as a
// single JSON document. Writing it anywhere is the caller's business.
func (r *Report) Export() ([]byte, error) {
	doc := struct {
		Details *Report `json:"details"`
		Summary Summary `json:"summary"`
	}{Details: r, Summary: r.Summary()}
	return json.MarshalIndent(doc, "", "  ")
}
