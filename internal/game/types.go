// internal/game/types.go
//
// Core type definitions for the memory game engine.
// Defines:
//   - Image/Point/Layout: the fixed configuration a board is dealt from.
//   - Card: one tile on the board.
//   - CardView/RenderState: the read-only snapshot hosts draw from.

package game

// Status messages shown after a comparison or on victory.
const (
	MsgMatched    = "CARDS MATCHED! Good Job!"
	MsgNotMatched = "CARDS NOT MATCHED. Try again!"
	MsgWon        = "CONGRATULATIONS! YOU WON!"
)

// DefaultNewGameKey restarts the game when pressed (case-insensitive).
const DefaultNewGameKey = 'n'

// Image is a palette entry. Width and Height are the rendered size the
// host draws it at; the engine uses them only for hit-testing.
type Image struct {
	Name   string
	Width  int
	Height int
}

// Point is a card centre in host coordinates.
type Point struct {
	X float64
	Y float64
}

// Layout is the board configuration a Session deals from.
// len(Positions) is the board size and must equal 2*len(Palette).
type Layout struct {
	Palette    []Image
	Positions  []Point
	NewGameKey rune
}

// Card is one tile. ImageID and Pos never change after the deal.
type Card struct {
	ImageID  int
	Pos      Point
	Selected bool
	Visible  bool
	Matched  bool // permanent once set
}

// CardView is one card in a render snapshot.
type CardView struct {
	ImageID  int     `json:"imageId"`
	Image    string  `json:"image"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Visible  bool    `json:"visible"`
	Selected bool    `json:"selected"`
	Matched  bool    `json:"matched"`
}

// RenderState is a copy of everything a host needs to draw one frame.
// Cards with Visible=false are drawn face-down regardless of Matched.
type RenderState struct {
	Cards   []CardView `json:"cards"`
	Message string     `json:"message"`
	Won     bool       `json:"won"`
}
