package engine

// ActionType names a player action.
type ActionType string

const (
	ActionRollDice    ActionType = "rollDice"
	ActionPayJailFee  ActionType = "payJailFee"
	ActionBuyProperty ActionType = "buyProperty"
	ActionDeclineBuy  ActionType = "declineBuy"
	ActionBid         ActionType = "bid"
	ActionPassBid     ActionType = "passBid"
	ActionMortgage    ActionType = "mortgage"
	ActionUnmortgage  ActionType = "unmortgage"
	ActionBuildHouse  ActionType = "buildHouse"
	ActionSellHouse   ActionType = "sellHouse"
	ActionEndTurn     ActionType = "endTurn"
)

// Action is an action with its optional parameters. Property is used by the
// mortgage and house actions, Amount by bid.
type Action struct {
	Type     ActionType `json:"type"`
	Property int        `json:"property,omitempty"`
	Amount   int        `json:"amount,omitempty"`
}

// Phase is where the active player is within their turn.
type Phase string

const (
	PhaseTurnStart   Phase = "TURN_START"
	PhaseBuyDecision Phase = "BUY_DECISION"
	PhasePostTurn    Phase = "POST_TURN"
)

// Status is the game lifecycle state.
type Status string

const (
	StatusStarted Status = "STARTED"
	StatusEnded   Status = "ENDED"
)
