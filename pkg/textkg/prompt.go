package textkg

import (
	"fmt"

	"github.com/randalmurphal/textkg/pkg/textkg/schedule"
)

// PromptBuilder produces the system and user prompts for one chunk.
type PromptBuilder func(doc schedule.Document, chunkIndex int, text string) (system, user string)

const extractionSystemPrompt = `You are an information extraction engine. From the given text, extract a knowledge graph and return it as a single JSON object with exactly three top-level arrays: "entities", "states", and "relations". Return only JSON, no commentary.

Entities. Each entity has:
- "kind": one of "event", "location", "facility"
- "id": an identifier following the grammar below
- "geo_description": for locations and facilities, a short geographic description; omit or leave empty for events

Identifier grammar:
- event: E-<Name>-<YYYYMMDD>-<TYPE>, e.g. E-RiverFlood-20240712-DISASTER
- location: L-<Name> or L-<TYPE>-<name>, e.g. L-Springfield or L-PROVINCE-hunan
- facility: F-<Name>-<description>, e.g. F-DamAlpha-hydroelectric dam

States. Each state captures the condition of one or more entities over a time span:
- "state_kind": "independent" (one entity) or "joint" (two or more entities)
- "state_id": derived from the member entities and the time range; use prefix ES-/LS-/FS- for independent states of events/locations/facilities, JS- for joint states
- "entity_ids": the member entity identifiers
- "time_range": "YYYY-MM-DD至YYYY-MM-DD" (start至end, same date for a single day)
- "basis": a short quote or paraphrase from the text supporting the state

Relations. Each relation links two states:
- "subject_id", "object_id": state identifiers
- "relation_label": one of "triggers", "affects", "regulates", "causes", "implies_cause"
- "basis": a short quote or paraphrase supporting the relation

Only extract what the text states or directly implies. Every entity referenced by a state must appear in "entities", and every state referenced by a relation must appear in "states".`

// DefaultPromptBuilder is the standard extraction prompt.
func DefaultPromptBuilder(doc schedule.Document, chunkIndex int, text string) (string, string) {
	user := fmt.Sprintf("Source document: %s (part %d)\n\nText:\n%s", doc.Name, chunkIndex+1, text)
	return extractionSystemPrompt, user
}
