// Package graph defines the knowledge-graph data model extracted from
// document text and the validator that enforces its identifier grammar
// and referential integrity.
//
// The graph has three record kinds:
//   - BaseEntity: a discrete real-world thing (event, location, facility)
//   - StateEntity: a time-bounded snapshot of one or more base entities
//   - StateRelation: a directed labeled edge between two state entities
//
// Identifiers follow a strict grammar. Base entity IDs carry a kind
// prefix (E-, L-, F-); state IDs are derived from the constituent
// entity IDs and the date range (ES-/LS-/FS- for independent states,
// JS- for joint states). Validate enforces the grammar, auto-repairs
// violations where safely possible, and reports everything it did.
package graph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// EntityKind identifies the kind of a base entity.
type EntityKind string

// Base entity kinds.
const (
	KindEvent    EntityKind = "event"
	KindLocation EntityKind = "location"
	KindFacility EntityKind = "facility"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindEvent, KindLocation, KindFacility:
		return true
	}
	return false
}

// StateKind identifies whether a state snapshot covers one entity or several.
type StateKind string

// State kinds.
const (
	StateIndependent StateKind = "independent"
	StateJoint       StateKind = "joint"
)

// Valid reports whether k is a known state kind.
func (k StateKind) Valid() bool {
	return k == StateIndependent || k == StateJoint
}

// JointPrefix is the state-ID prefix for joint states.
const JointPrefix = "JS"

// RelationLabels is the fixed vocabulary for state relations.
// Labels outside this set are flagged as warnings, not errors.
var RelationLabels = []string{"triggers", "affects", "regulates", "causes", "implies_cause"}

// KnownRelationLabel reports whether label is in the fixed vocabulary.
func KnownRelationLabel(label string) bool {
	for _, l := range RelationLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Identifier grammars per entity kind.
//
//	event:    E-<region code>[><sub-region>]-<YYYYMMDD>-<EVENT_TYPE>
//	location: L-<region code>[><sub-region>]  or  L-<TYPE>-<name>[><segment>]
//	facility: F-<region code>[><sub-region>]-<facility name>
var idPatterns = map[EntityKind]*regexp.Regexp{
	KindEvent:    regexp.MustCompile(`^E-([A-Za-z0-9]+)(>[^-]+)?-([0-9]{8})-([A-Z_]+)$`),
	KindLocation: regexp.MustCompile(`^L-([A-Za-z0-9]+)(>[^-]+)?$|^L-([A-Z_]+)-([^>]+)(>[^-]+)?$`),
	KindFacility: regexp.MustCompile(`^F-([A-Za-z0-9]+)(>[^-]+)?-(.+)$`),
}

// ValidEntityID reports whether id matches the grammar for kind.
// Unknown kinds never match.
func ValidEntityID(kind EntityKind, id string) bool {
	pat, ok := idPatterns[kind]
	if !ok {
		return false
	}
	return pat.MatchString(id)
}

// StatePrefixFor returns the independent-state ID prefix for a base
// entity ID (ES for events, LS for locations, FS for facilities).
// Returns false when the entity ID carries no recognizable kind prefix.
func StatePrefixFor(entityID string) (string, bool) {
	switch {
	case strings.HasPrefix(entityID, "E-"):
		return "ES", true
	case strings.HasPrefix(entityID, "L-"):
		return "LS", true
	case strings.HasPrefix(entityID, "F-"):
		return "FS", true
	}
	return "", false
}

// TimeSeparator joins the start and end dates of a time range.
const TimeSeparator = "至"

// timeAltSeparator is the one cosmetic variant the validator auto-fixes.
// Additional locale variants are deliberately not handled; a general
// date parser would silently accept ambiguous dates.
const timeAltSeparator = "到"

var timePattern = regexp.MustCompile(`^([0-9]{4})-([0-9]{2})-([0-9]{2})` + TimeSeparator + `([0-9]{4})-([0-9]{2})-([0-9]{2})$`)

// ValidTimeRange reports whether s matches the YYYY-MM-DD至YYYY-MM-DD format.
func ValidTimeRange(s string) bool {
	return timePattern.MatchString(s)
}

// TimeRangeDates parses a time range into its start and end dates.
// Returns false when the range does not match the expected format or
// either date is not a real calendar date.
func TimeRangeDates(s string) (start, end time.Time, ok bool) {
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	const layout = "2006-01-02"
	start, err := time.Parse(layout, fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(layout, fmt.Sprintf("%s-%s-%s", m[4], m[5], m[6]))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// datePart extracts the YYYYMMDD_YYYYMMDD suffix used in state IDs.
func datePart(timeRange string) (string, bool) {
	m := timePattern.FindStringSubmatch(timeRange)
	if m == nil {
		return "", false
	}
	return m[1] + m[2] + m[3] + "_" + m[4] + m[5] + m[6], true
}

// StateID deterministically derives the canonical state ID from a state
// kind, its entity IDs, and its time range. Returns false when the ID
// cannot be derived (malformed time range, empty or mismatched entity
// list, unrecognized entity prefix).
func StateID(kind StateKind, entityIDs []string, timeRange string) (string, bool) {
	dates, ok := datePart(timeRange)
	if !ok {
		return "", false
	}
	switch kind {
	case StateIndependent:
		if len(entityIDs) != 1 {
			return "", false
		}
		prefix, ok := StatePrefixFor(entityIDs[0])
		if !ok {
			return "", false
		}
		return prefix + "-" + entityIDs[0] + "-" + dates, true
	case StateJoint:
		if len(entityIDs) < 2 {
			return "", false
		}
		sorted := append([]string(nil), entityIDs...)
		sort.Strings(sorted)
		return JointPrefix + "-" + strings.Join(sorted, "-") + "-" + dates, true
	}
	return "", false
}

// BaseEntity is a discrete real-world thing referenced by state snapshots.
// Immutable once accepted by the validator; invalid entities are dropped,
// never rewritten.
type BaseEntity struct {
	Kind           EntityKind `json:"kind"`
	ID             string     `json:"id"`
	GeoDescription string     `json:"geo_description,omitempty"`
	Source         string     `json:"source_document,omitempty"`
}

// StateEntity is a time-bounded snapshot of one (independent) or
// several (joint) base entities. The validator may rewrite StateKind,
// EntityIDs, and StateID to restore the grammar invariants.
type StateEntity struct {
	StateKind StateKind  `json:"state_kind"`
	StateID   string     `json:"state_id"`
	EntityIDs StringList `json:"entity_ids"`
	TimeRange string     `json:"time_range"`
	Source    string     `json:"source_document,omitempty"`
}

// StateRelation is a directed labeled edge between two state snapshots.
type StateRelation struct {
	SubjectID     string `json:"subject_id"`
	RelationLabel string `json:"relation_label"`
	ObjectID      string `json:"object_id"`
	Basis         string `json:"basis,omitempty"`
	Source        string `json:"source_document,omitempty"`
}

// Payload is the structured output of one extraction: the three record
// collections a model response decodes into.
type Payload struct {
	Entities  []BaseEntity    `json:"entities"`
	States    []StateEntity   `json:"states"`
	Relations []StateRelation `json:"relations"`
}

// Empty reports whether the payload contains no records at all.
func (p *Payload) Empty() bool {
	return p == nil || (len(p.Entities) == 0 && len(p.States) == 0 && len(p.Relations) == 0)
}

// TagSource stamps every record with the document it was extracted from.
// Records that already carry a source keep it.
func (p *Payload) TagSource(doc string) {
	for i := range p.Entities {
		if p.Entities[i].Source == "" {
			p.Entities[i].Source = doc
		}
	}
	for i := range p.States {
		if p.States[i].Source == "" {
			p.States[i].Source = doc
		}
	}
	for i := range p.Relations {
		if p.Relations[i].Source == "" {
			p.Relations[i].Source = doc
		}
	}
}

// ExpectedFields are the top-level payload fields a complete extraction
// contains. Used for structural quality checks; absence is a signal,
// not a failure.
var ExpectedFields = []string{"entities", "states", "relations"}

// StringList is a []string that also accepts a single JSON string or a
// stringified list on unmarshal. Models frequently emit `"[\"a\",\"b\"]"`
// or a bare ID where a list is expected.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*l = ss
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("entity_ids: expected string list, got %s", preview(string(data), 40))
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") {
		// Stringified list: try strict JSON first, then a lenient split.
		if err := json.Unmarshal([]byte(trimmed), &ss); err == nil {
			*l = ss
			return nil
		}
		inner := strings.Trim(trimmed, "[]")
		for _, part := range strings.Split(inner, ",") {
			part = strings.Trim(strings.TrimSpace(part), `"'`)
			if part != "" {
				ss = append(ss, part)
			}
		}
		*l = ss
		return nil
	}
	*l = StringList{s}
	return nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
