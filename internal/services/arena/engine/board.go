package engine

// Game constants.
const (
	BoardSize     = 40
	PlayerCount   = 4
	PropertyCount = 28

	StartingCash = 1500
	Salary       = 200
	JailFee      = 50
	JailTile     = 10
	GoToJailTile = 30
	MaxJailTurns = 3
	MaxDoubles   = 3
	MaxHouses    = 4
	MaxRounds    = 100

	// Bank is the owner/creditor index used for the bank.
	Bank = -1
)

// TileKind classifies a board tile.
type TileKind int

const (
	TileStart TileKind = iota
	TileOwnable
	TileTax
	TileChance
	TileCommunity
	TileJail
	TileFreeParking
	TileGoToJail
)

// PropertyKind classifies an ownable tile.
type PropertyKind int

const (
	KindColor PropertyKind = iota
	KindRailroad
	KindUtility
)

// Tile is one board square.
type Tile struct {
	Name     string
	Kind     TileKind
	Property int
	Tax      int
}

// PropertyDef holds the fixed economics of an ownable tile. HouseRent[n-1] is
// the rent with n houses; the fourth tier is the hotel.
type PropertyDef struct {
	Name      string
	Tile      int
	Kind      PropertyKind
	Group     int
	Price     int
	Rent      int
	HouseRent [MaxHouses]int
	HouseCost int
}

// MortgageValue is half the purchase price.
func (p PropertyDef) MortgageValue() int {
	return p.Price / 2
}

// UnmortgageCost is the mortgage value plus 10% interest.
func (p PropertyDef) UnmortgageCost() int {
	return p.MortgageValue() * 110 / 100
}

var railroadRent = [4]int{25, 50, 100, 200}

var utilityMultiplier = [2]int{4, 10}

// Properties lists the 28 ownables in board order; the slice index is the
// stable property index used by actions and checkpoints.
var Properties = [PropertyCount]PropertyDef{
	{Name: "Mediterranean Avenue", Tile: 1, Kind: KindColor, Group: 1, Price: 60, Rent: 2, HouseRent: [4]int{10, 30, 90, 250}, HouseCost: 50},
	{Name: "Baltic Avenue", Tile: 3, Kind: KindColor, Group: 1, Price: 60, Rent: 4, HouseRent: [4]int{20, 60, 180, 450}, HouseCost: 50},
	{Name: "Reading Railroad", Tile: 5, Kind: KindRailroad, Price: 200},
	{Name: "Oriental Avenue", Tile: 6, Kind: KindColor, Group: 2, Price: 100, Rent: 6, HouseRent: [4]int{30, 90, 270, 550}, HouseCost: 50},
	{Name: "Vermont Avenue", Tile: 8, Kind: KindColor, Group: 2, Price: 100, Rent: 6, HouseRent: [4]int{30, 90, 270, 550}, HouseCost: 50},
	{Name: "Connecticut Avenue", Tile: 9, Kind: KindColor, Group: 2, Price: 120, Rent: 8, HouseRent: [4]int{40, 100, 300, 600}, HouseCost: 50},
	{Name: "St. Charles Place", Tile: 11, Kind: KindColor, Group: 3, Price: 140, Rent: 10, HouseRent: [4]int{50, 150, 450, 750}, HouseCost: 100},
	{Name: "Electric Company", Tile: 12, Kind: KindUtility, Price: 150},
	{Name: "States Avenue", Tile: 13, Kind: KindColor, Group: 3, Price: 140, Rent: 10, HouseRent: [4]int{50, 150, 450, 750}, HouseCost: 100},
	{Name: "Virginia Avenue", Tile: 14, Kind: KindColor, Group: 3, Price: 160, Rent: 12, HouseRent: [4]int{60, 180, 500, 900}, HouseCost: 100},
	{Name: "Pennsylvania Railroad", Tile: 15, Kind: KindRailroad, Price: 200},
	{Name: "St. James Place", Tile: 16, Kind: KindColor, Group: 4, Price: 180, Rent: 14, HouseRent: [4]int{70, 200, 550, 950}, HouseCost: 100},
	{Name: "Tennessee Avenue", Tile: 18, Kind: KindColor, Group: 4, Price: 180, Rent: 14, HouseRent: [4]int{70, 200, 550, 950}, HouseCost: 100},
	{Name: "New York Avenue", Tile: 19, Kind: KindColor, Group: 4, Price: 200, Rent: 16, HouseRent: [4]int{80, 220, 600, 1000}, HouseCost: 100},
	{Name: "Kentucky Avenue", Tile: 21, Kind: KindColor, Group: 5, Price: 220, Rent: 18, HouseRent: [4]int{90, 250, 700, 1050}, HouseCost: 150},
	{Name: "Indiana Avenue", Tile: 23, Kind: KindColor, Group: 5, Price: 220, Rent: 18, HouseRent: [4]int{90, 250, 700, 1050}, HouseCost: 150},
	{Name: "Illinois Avenue", Tile: 24, Kind: KindColor, Group: 5, Price: 240, Rent: 20, HouseRent: [4]int{100, 300, 750, 1100}, HouseCost: 150},
	{Name: "B. & O. Railroad", Tile: 25, Kind: KindRailroad, Price: 200},
	{Name: "Atlantic Avenue", Tile: 26, Kind: KindColor, Group: 6, Price: 260, Rent: 22, HouseRent: [4]int{110, 330, 800, 1150}, HouseCost: 150},
	{Name: "Ventnor Avenue", Tile: 27, Kind: KindColor, Group: 6, Price: 260, Rent: 22, HouseRent: [4]int{110, 330, 800, 1150}, HouseCost: 150},
	{Name: "Water Works", Tile: 28, Kind: KindUtility, Price: 150},
	{Name: "Marvin Gardens", Tile: 29, Kind: KindColor, Group: 6, Price: 280, Rent: 24, HouseRent: [4]int{120, 360, 850, 1200}, HouseCost: 150},
	{Name: "Pacific Avenue", Tile: 31, Kind: KindColor, Group: 7, Price: 300, Rent: 26, HouseRent: [4]int{130, 390, 900, 1275}, HouseCost: 200},
	{Name: "North Carolina Avenue", Tile: 32, Kind: KindColor, Group: 7, Price: 300, Rent: 26, HouseRent: [4]int{130, 390, 900, 1275}, HouseCost: 200},
	{Name: "Pennsylvania Avenue", Tile: 34, Kind: KindColor, Group: 7, Price: 320, Rent: 28, HouseRent: [4]int{150, 450, 1000, 1400}, HouseCost: 200},
	{Name: "Short Line", Tile: 35, Kind: KindRailroad, Price: 200},
	{Name: "Park Place", Tile: 37, Kind: KindColor, Group: 8, Price: 350, Rent: 35, HouseRent: [4]int{175, 500, 1100, 1500}, HouseCost: 200},
	{Name: "Boardwalk", Tile: 39, Kind: KindColor, Group: 8, Price: 400, Rent: 50, HouseRent: [4]int{200, 600, 1400, 2000}, HouseCost: 200},
}

// Board is the 40-tile layout. Ownable tiles point into Properties.
var Board = buildBoard()

func buildBoard() [BoardSize]Tile {
	var board [BoardSize]Tile
	for i := range board {
		board[i] = Tile{Kind: TileFreeParking, Property: -1}
	}
	board[0] = Tile{Name: "Go", Kind: TileStart, Property: -1}
	board[JailTile] = Tile{Name: "Jail", Kind: TileJail, Property: -1}
	board[20] = Tile{Name: "Free Parking", Kind: TileFreeParking, Property: -1}
	board[GoToJailTile] = Tile{Name: "Go To Jail", Kind: TileGoToJail, Property: -1}
	board[4] = Tile{Name: "Income Tax", Kind: TileTax, Property: -1, Tax: 200}
	board[38] = Tile{Name: "Luxury Tax", Kind: TileTax, Property: -1, Tax: 100}
	for _, tile := range []int{7, 22, 36} {
		board[tile] = Tile{Name: "Chance", Kind: TileChance, Property: -1}
	}
	for _, tile := range []int{2, 17, 33} {
		board[tile] = Tile{Name: "Community Chest", Kind: TileCommunity, Property: -1}
	}
	for i, def := range Properties {
		board[def.Tile] = Tile{Name: def.Name, Kind: TileOwnable, Property: i}
	}
	return board
}

// groupMembers returns the property indices sharing a color group.
func groupMembers(group int) []int {
	var members []int
	for i, def := range Properties {
		if def.Kind == KindColor && def.Group == group {
			members = append(members, i)
		}
	}
	return members
}
