package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Validate enforces the graph invariants over a payload and returns the
// corrected payload together with a report of everything it did.
//
// Processing is strictly staged because later stages depend on earlier
// stages' corrected, deduplicated identifier sets:
//
//	Stage A  base entities   (grammar, required fields, duplicates)
//	Stage B  state entities  (kind/cardinality coercion, canonical IDs)
//	         + rename propagation into relations
//	Stage C  state relations (endpoint resolution, label vocabulary)
//
// Validate never panics; a panic while processing a single record is
// recovered and recorded as a dropped record. The input payload is not
// modified. Re-running Validate on its own output yields no further
// drops or corrections.
func Validate(p *Payload) (*Payload, *Report) {
	rep := newReport()
	out := &Payload{}

	var entityTotal, stateTotal, relationTotal int
	if p != nil {
		entityTotal = len(p.Entities)
		stateTotal = len(p.States)
		relationTotal = len(p.Relations)
	}

	if p != nil {
		var entityIDs map[string]bool
		out.Entities, entityIDs = validateEntities(p.Entities, rep)

		relations := append([]StateRelation(nil), p.Relations...)
		var renames map[string]string
		out.States, renames = validateStates(p.States, entityIDs, rep)

		// Renames produced by stage B apply to every relation endpoint
		// before stage C resolves them.
		applyRenames(relations, renames)

		stateIDs := make(map[string]bool, len(out.States))
		for _, s := range out.States {
			stateIDs[s.StateID] = true
		}
		out.Relations = validateRelations(relations, stateIDs, rep)
	}

	rep.finalize(entityTotal, stateTotal, relationTotal)
	return out, rep
}

// validateEntities is stage A. Returns the surviving entities and their
// ID set, which stage B resolves references against.
func validateEntities(entities []BaseEntity, rep *Report) ([]BaseEntity, map[string]bool) {
	valid := make([]BaseEntity, 0, len(entities))
	seen := make(map[string]bool, len(entities))

	for _, e := range entities {
		e := e
		guard(func() {
			if e.Kind == "" || e.ID == "" {
				rep.addError(ClassEntities, e.ID, fmt.Sprintf("entity missing required fields: kind=%q id=%q", e.Kind, e.ID))
				return
			}
			if !ValidEntityID(e.Kind, e.ID) {
				rep.addError(ClassEntities, e.ID, fmt.Sprintf("entity ID does not match %s grammar: %s", e.Kind, e.ID))
				return
			}
			if (e.Kind == KindLocation || e.Kind == KindFacility) && e.GeoDescription == "" {
				rep.addWarning(ClassEntities, e.ID, "entity missing geo description: "+e.ID)
			}
			if seen[e.ID] {
				rep.addWarning(ClassEntities, e.ID, "duplicate entity ID, keeping first occurrence: "+e.ID)
				return
			}
			seen[e.ID] = true
			valid = append(valid, e)
		}, func(r any) {
			rep.addError(ClassEntities, e.ID, fmt.Sprintf("entity %s: unexpected failure: %v", e.ID, r))
		})
	}
	return valid, seen
}

// validateStates is stage B. Returns the surviving states and the map
// of state-ID renames produced while restoring the grammar.
func validateStates(states []StateEntity, entityIDs map[string]bool, rep *Report) ([]StateEntity, map[string]string) {
	valid := make([]StateEntity, 0, len(states))
	renames := make(map[string]string)

	for _, s := range states {
		s := s
		guard(func() {
			originalID := s.StateID

			if s.StateKind == "" || s.StateID == "" || len(s.EntityIDs) == 0 || s.TimeRange == "" {
				rep.addError(ClassStates, s.StateID, fmt.Sprintf("state missing required fields: %+v", s))
				return
			}
			if !s.StateKind.Valid() {
				rep.addError(ClassStates, s.StateID, fmt.Sprintf("unknown state kind %q: %s", s.StateKind, s.StateID))
				return
			}

			if !ValidTimeRange(s.TimeRange) {
				if fixed, ok := fixTimeRange(s.TimeRange); ok {
					rep.addCorrection(ClassStates, s.StateID, fmt.Sprintf("corrected time range separator: %s -> %s", s.TimeRange, fixed))
					s.TimeRange = fixed
				} else {
					rep.addWarning(ClassStates, s.StateID, "malformed time range: "+s.TimeRange)
				}
			}
			if start, end, ok := TimeRangeDates(s.TimeRange); ok && start.After(end) {
				rep.addWarning(ClassStates, s.StateID, "time range starts after it ends: "+s.TimeRange)
			}

			if deduped := dedupe(s.EntityIDs); len(deduped) != len(s.EntityIDs) {
				rep.addCorrection(ClassStates, s.StateID, fmt.Sprintf("removed duplicate entity IDs: %v -> %v", []string(s.EntityIDs), deduped))
				s.EntityIDs = deduped
			}

			// Kind/cardinality coercion: a joint state with one entity
			// becomes independent, an independent state with several
			// becomes joint. Either way the ID is rebuilt.
			if s.StateKind == StateJoint && len(s.EntityIDs) < 2 {
				s.StateKind = StateIndependent
				if newID, ok := StateID(StateIndependent, s.EntityIDs, s.TimeRange); ok {
					renames[originalID] = newID
					s.StateID = newID
					rep.addCorrection(ClassStates, newID, fmt.Sprintf("joint state with one entity coerced to independent: %s -> %s", originalID, newID))
				}
			} else if s.StateKind == StateIndependent && len(s.EntityIDs) > 1 {
				s.StateKind = StateJoint
				if newID, ok := StateID(StateJoint, s.EntityIDs, s.TimeRange); ok {
					renames[originalID] = newID
					s.StateID = newID
					rep.addCorrection(ClassStates, newID, fmt.Sprintf("independent state with %d entities coerced to joint: %s -> %s", len(s.EntityIDs), originalID, newID))
				}
			}

			for _, eid := range s.EntityIDs {
				if !entityIDs[eid] {
					rep.addError(ClassStates, s.StateID, fmt.Sprintf("state %s references missing entity %s", s.StateID, eid))
					return
				}
			}

			// Joint states keep their entity list in canonical order.
			if s.StateKind == StateJoint && !sort.StringsAreSorted(s.EntityIDs) {
				sorted := append([]string(nil), s.EntityIDs...)
				sort.Strings(sorted)
				s.EntityIDs = sorted
				if newID, ok := StateID(StateJoint, s.EntityIDs, s.TimeRange); ok {
					renames[originalID] = newID
					s.StateID = newID
					rep.addCorrection(ClassStates, s.StateID, fmt.Sprintf("canonicalized joint state entity order: %s -> %s", originalID, newID))
				}
			}

			// Identifier consistency: the stored ID must equal the ID
			// recomputed from (kind, entity IDs, time range).
			if expected, ok := StateID(s.StateKind, s.EntityIDs, s.TimeRange); ok {
				if s.StateID != expected {
					renames[originalID] = expected
					rep.addCorrection(ClassStates, expected, fmt.Sprintf("corrected state ID: %s -> %s", s.StateID, expected))
					s.StateID = expected
				}
			} else {
				rep.addWarning(ClassStates, s.StateID, "state ID cannot be recomputed, keeping as stored: "+s.StateID)
			}

			valid = append(valid, s)
		}, func(r any) {
			rep.addError(ClassStates, s.StateID, fmt.Sprintf("state %s: unexpected failure: %v", s.StateID, r))
		})
	}
	return valid, renames
}

// validateRelations is stage C. Endpoint IDs have already been renamed.
func validateRelations(relations []StateRelation, stateIDs map[string]bool, rep *Report) []StateRelation {
	valid := make([]StateRelation, 0, len(relations))

	for _, rel := range relations {
		rel := rel
		guard(func() {
			if rel.SubjectID == "" || rel.RelationLabel == "" || rel.ObjectID == "" {
				rep.addError(ClassRelations, rel.SubjectID, fmt.Sprintf("relation missing required fields: %+v", rel))
				rep.flag(ClassRelations, rel.ObjectID)
				return
			}
			if !KnownRelationLabel(rel.RelationLabel) {
				rep.addWarning(ClassRelations, rel.SubjectID, "relation label outside vocabulary: "+rel.RelationLabel)
				rep.flag(ClassRelations, rel.ObjectID)
			}
			if rel.Basis == "" {
				rep.addWarning(ClassRelations, rel.SubjectID, fmt.Sprintf("relation %s -%s-> %s has no basis", rel.SubjectID, rel.RelationLabel, rel.ObjectID))
				rep.flag(ClassRelations, rel.ObjectID)
			}
			if !stateIDs[rel.SubjectID] {
				rep.addError(ClassRelations, rel.SubjectID, "relation subject references missing state: "+rel.SubjectID)
				return
			}
			if !stateIDs[rel.ObjectID] {
				rep.addError(ClassRelations, rel.ObjectID, "relation object references missing state: "+rel.ObjectID)
				return
			}
			valid = append(valid, rel)
		}, func(r any) {
			rep.addError(ClassRelations, rel.SubjectID, fmt.Sprintf("relation %s: unexpected failure: %v", rel.SubjectID, r))
		})
	}
	return valid
}

// applyRenames rewrites relation endpoints through the rename map,
// following chains (a coercion followed by an ID correction).
func applyRenames(relations []StateRelation, renames map[string]string) {
	if len(renames) == 0 {
		return
	}
	resolve := func(id string) string {
		for range renames {
			next, ok := renames[id]
			if !ok {
				return id
			}
			id = next
		}
		return id
	}
	for i := range relations {
		relations[i].SubjectID = resolve(relations[i].SubjectID)
		relations[i].ObjectID = resolve(relations[i].ObjectID)
	}
}

// fixTimeRange attempts the one known cosmetic repair: the alternate
// separator token. Anything else is left for the caller to flag.
func fixTimeRange(s string) (string, bool) {
	if strings.Contains(s, timeAltSeparator) {
		fixed := strings.Replace(s, timeAltSeparator, TimeSeparator, 1)
		if ValidTimeRange(fixed) {
			return fixed, true
		}
	}
	return "", false
}

// dedupe removes duplicates preserving first-occurrence order.
func dedupe(ids []string) StringList {
	seen := make(map[string]bool, len(ids))
	out := make(StringList, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// guard runs fn, routing any panic to onPanic. Validation must be total
// over arbitrary decoded input.
func guard(fn func(), onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(r)
		}
	}()
	fn()
}
