package formations

// EntryDefinition models the JSON contract for designer-authored formation
// entries. It is shared with the schema generator so we can produce a
// machine-readable document for validation and editor tooling.
type EntryDefinition struct {
	Name       string   `json:"name" jsonschema:"title=Formation name,pattern=^[A-Za-z][A-Za-z0-9 ]*$,description=Display name shown to players when the formation is announced"`
	Difficulty int      `json:"difficulty" jsonschema:"title=Difficulty,minimum=1,maximum=25,description=Countdown seconds and base score gain for the formation"`
	Pattern    []string `json:"pattern" jsonschema:"title=Pattern rows,description=ASCII rows using x for an occupied cell and . for an empty one; the first x in scan order is the anchor"`
}

// FileDefinitions represents the contents of definitions.json: the canonical
// array format authored by designers.
type FileDefinitions []EntryDefinition
