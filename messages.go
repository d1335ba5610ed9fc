package server

// Server → client messages. Every body is tagged by a `type` field so the
// client can dispatch without peeking at the rest of the payload.

type welcomeMessage struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	Players []Player `json:"players"`
}

type playerMessage struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

type positionMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Left int    `json:"left"`
	Top  int    `json:"top"`
	Time int64  `json:"time"`
}

type nextFormationMessage struct {
	Type      string   `json:"type"`
	Formation string   `json:"formation"`
	Time      int      `json:"time"`
	Map       [][]bool `json:"map"`
	Active    int      `json:"active"`
}

type formationMessage struct {
	Type       string   `json:"type"`
	Formation  string   `json:"formation"`
	Difficulty int      `json:"difficulty"`
	Gain       int      `json:"gain"`
	Loss       int      `json:"loss"`
	IDs        []string `json:"ids"`
	Save       string   `json:"save"`
}

type flashMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Stop bool   `json:"stop,omitempty"`
}

type lockInMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type idleMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type disconnectedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type kickMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type restartMessage struct {
	Type string `json:"type"`
}
