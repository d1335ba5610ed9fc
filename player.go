package server

// Player is the public state every client sees for a participant.
type Player struct {
	ID        string `json:"id"`
	Left      int    `json:"left"`
	Top       int    `json:"top"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Succeeded int    `json:"succeeded"`
	Total     int    `json:"total"`
	Active    bool   `json:"active"`
	LockedIn  bool   `json:"lockedIn"`
}

// playerState carries the server-side bookkeeping that never leaves the
// process: idle accounting and the logging session id for the connection.
type playerState struct {
	Player
	idleTurns int
	sessionID string
}

func (p *playerState) snapshot() Player {
	return p.Player
}
