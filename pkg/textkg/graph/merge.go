package graph

// Merge combines payloads from multiple chunks or documents into one,
// deduplicating entities by ID, states by state ID, and relations by
// (subject, label, object). First occurrence wins, so chunk order
// determines which duplicate survives.
func Merge(payloads ...*Payload) *Payload {
	merged := &Payload{}
	seenEntities := make(map[string]bool)
	seenStates := make(map[string]bool)
	seenRelations := make(map[string]bool)

	for _, p := range payloads {
		if p == nil {
			continue
		}
		for _, e := range p.Entities {
			if e.ID == "" || seenEntities[e.ID] {
				continue
			}
			seenEntities[e.ID] = true
			merged.Entities = append(merged.Entities, e)
		}
		for _, s := range p.States {
			if s.StateID == "" || seenStates[s.StateID] {
				continue
			}
			seenStates[s.StateID] = true
			merged.States = append(merged.States, s)
		}
		for _, r := range p.Relations {
			key := r.SubjectID + "|" + r.RelationLabel + "|" + r.ObjectID
			if seenRelations[key] {
				continue
			}
			seenRelations[key] = true
			merged.Relations = append(merged.Relations, r)
		}
	}
	return merged
}
