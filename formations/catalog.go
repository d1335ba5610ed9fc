// Package formations loads the immutable catalog of target patterns the
// turn controller challenges players with. Entries are authored as ASCII
// pattern grids in definitions.json and compiled into relative offsets at
// startup; nothing in the catalog mutates afterwards.
package formations

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

// MaxDifficulty bounds an authored difficulty value. It doubles as the
// scoring band ceiling on the server side.
const MaxDifficulty = 26

//go:embed definitions.json
var embeddedDefinitions []byte

// Offset is a cell position relative to a formation's anchor.
type Offset struct {
	Left int
	Top  int
}

// Formation is a compiled, read-only pattern template.
type Formation struct {
	Name       string
	Size       int
	Difficulty int
	Points     []Offset
	Map        [][]bool
}

// Catalog is the fixed set of formations available to the turn controller.
type Catalog struct {
	formations []Formation
	byName     map[string]Formation
}

// Load compiles the embedded definitions. A catalog without at least one
// formation of size <= 2 could stall formation selection forever, so it is
// rejected as a configuration error.
func Load() (*Catalog, error) {
	return loadDefinitions(embeddedDefinitions)
}

// MustLoad panics when the embedded catalog is invalid. The definitions
// ship inside the binary, so a failure here is a build defect.
func MustLoad() *Catalog {
	catalog, err := Load()
	if err != nil {
		panic(fmt.Sprintf("formations: %v", err))
	}
	return catalog
}

func loadDefinitions(data []byte) (*Catalog, error) {
	var defs FileDefinitions
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	return New(defs)
}

// New compiles a catalog from in-memory definitions. It applies the same
// validation as Load.
func New(defs FileDefinitions) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("definitions are empty")
	}

	catalog := &Catalog{
		formations: make([]Formation, 0, len(defs)),
		byName:     make(map[string]Formation, len(defs)),
	}
	smallest := -1
	for _, def := range defs {
		formation, err := compile(def)
		if err != nil {
			return nil, fmt.Errorf("formation %q: %w", def.Name, err)
		}
		if _, exists := catalog.byName[formation.Name]; exists {
			return nil, fmt.Errorf("formation %q: duplicate name", formation.Name)
		}
		catalog.formations = append(catalog.formations, formation)
		catalog.byName[formation.Name] = formation
		if smallest == -1 || formation.Size < smallest {
			smallest = formation.Size
		}
	}
	if smallest > 2 {
		return nil, fmt.Errorf("no formation of size <= 2; selection could never settle")
	}
	return catalog, nil
}

// compile turns an ASCII pattern into offsets relative to the anchor cell,
// the first occupied cell in row-major scan order.
func compile(def EntryDefinition) (Formation, error) {
	if strings.TrimSpace(def.Name) == "" {
		return Formation{}, fmt.Errorf("missing name")
	}
	if def.Difficulty < 1 || def.Difficulty >= MaxDifficulty {
		return Formation{}, fmt.Errorf("difficulty %d outside [1, %d)", def.Difficulty, MaxDifficulty)
	}
	if len(def.Pattern) == 0 {
		return Formation{}, fmt.Errorf("empty pattern")
	}

	visual := make([][]bool, len(def.Pattern))
	anchorLeft, anchorTop := -1, -1
	size := 0
	for top, row := range def.Pattern {
		visual[top] = make([]bool, len(row))
		for left, cell := range row {
			switch cell {
			case 'x':
				visual[top][left] = true
				size++
				if anchorTop == -1 {
					anchorLeft, anchorTop = left, top
				}
			case '.':
			default:
				return Formation{}, fmt.Errorf("unexpected pattern rune %q", cell)
			}
		}
	}
	if size < 2 {
		return Formation{}, fmt.Errorf("needs at least two cells, got %d", size)
	}

	points := make([]Offset, 0, size-1)
	for top, row := range visual {
		for left, occupied := range row {
			if !occupied || (left == anchorLeft && top == anchorTop) {
				continue
			}
			points = append(points, Offset{Left: left - anchorLeft, Top: top - anchorTop})
		}
	}

	return Formation{
		Name:       def.Name,
		Size:       size,
		Difficulty: def.Difficulty,
		Points:     points,
		Map:        visual,
	}, nil
}

// Pick selects uniformly among formations whose size requirement fits
// max(2, activeCount) participants. Load guarantees the eligible set is
// never empty.
func (c *Catalog) Pick(rng *rand.Rand, activeCount int) Formation {
	limit := activeCount
	if limit < 2 {
		limit = 2
	}
	eligible := make([]Formation, 0, len(c.formations))
	for _, formation := range c.formations {
		if formation.Size <= limit {
			eligible = append(eligible, formation)
		}
	}
	return eligible[rng.Intn(len(eligible))]
}

// Get looks a formation up by name.
func (c *Catalog) Get(name string) (Formation, bool) {
	formation, ok := c.byName[name]
	return formation, ok
}

// Len reports how many formations the catalog holds.
func (c *Catalog) Len() int {
	return len(c.formations)
}
