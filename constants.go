package server

import "time"

const (
	writeWait    = 10 * time.Second
	turnInterval = time.Second

	gridWidth  = 96
	gridHeight = 60

	// MaxPoints caps a formation's difficulty and anchors the penalty
	// formula: a missed formation costs round((MaxPoints-difficulty)/4).
	MaxPoints = 26

	// A player who stays inactive for idleAfterTurns resolutions is
	// announced as idle; past maxIdleTurns it is kicked.
	idleAfterTurns = 2
	maxIdleTurns   = 120

	// Spawn disc leaves enough room around the center for 4x the player count.
	spawnRadiusFactor = 4.0
)

// playerNames is the roster new connections draw a display name from.
var playerNames = []string{
	"Saber",
	"Tooth",
	"Moose",
	"Lion",
	"Peanut",
	"Jelly",
	"Thyme",
	"Zombie",
	"Cranberry",
	"Pipa",
	"Walnut",
	"Puddle",
	"Ziya",
	"Key",
}
