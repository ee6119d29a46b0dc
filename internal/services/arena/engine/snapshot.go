package engine

// AuctionSnapshot is the public view of an open auction.
type AuctionSnapshot struct {
	Property   int   `json:"property"`
	HighBidder int   `json:"highBidder"`
	HighBid    int   `json:"highBid"`
	Bidder     int   `json:"currentBidder"`
	Acted      []int `json:"acted"`
}

// Snapshot is the full observable game state sent to agents and spectators.
type Snapshot struct {
	Status        Status                       `json:"status"`
	Phase         Phase                        `json:"phase"`
	Turn          int                          `json:"turn"`
	Round         int                          `json:"round"`
	CurrentPlayer int                          `json:"currentPlayer"`
	ActingPlayer  int                          `json:"actingPlayer"`
	AliveCount    int                          `json:"aliveCount"`
	Winner        int                          `json:"winner"`
	LastDice      Dice                         `json:"lastDice"`
	Players       [PlayerCount]PlayerState     `json:"players"`
	Properties    [PropertyCount]PropertyState `json:"properties"`
	Auction       *AuctionSnapshot             `json:"auction,omitempty"`
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Status:        e.status,
		Phase:         e.phase,
		Turn:          e.turn,
		Round:         e.round,
		CurrentPlayer: e.current,
		ActingPlayer:  e.ActingPlayer(),
		AliveCount:    e.alive,
		Winner:        e.winner,
		LastDice:      e.lastDice,
		Players:       e.players,
		Properties:    e.props,
	}
	if e.auction.Active {
		a := e.auction
		acted := []int{}
		for i, ok := range a.Acted {
			if ok {
				acted = append(acted, i)
			}
		}
		s.Auction = &AuctionSnapshot{
			Property:   a.Property,
			HighBidder: a.HighBidder,
			HighBid:    a.HighBid,
			Bidder:     a.Bidder,
			Acted:      acted,
		}
	}
	return s
}
