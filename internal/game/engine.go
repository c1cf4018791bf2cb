// internal/game/engine.go
//
// Core game engine for a single memory-matching session.
// Responsibilities:
//   - Deal a board from a Layout using the deck generator.
//   - Track up to two selected cards and evaluate whether they match.
//   - Resolve the previous pair at the start of the next press, so both
//     flipped cards stay on screen for one full frame without a timer.
//   - Count matched cards and detect the win.
//
// Notes:
//   - A Session is not safe for concurrent use; hosts serialise events.
//   - Selection slots hold board indices (-1 when empty), never card copies.
package game

import (
	"fmt"
	"unicode"

	"github.com/robalobadob/memory/internal/deck"
)

const noCard = -1

// Session is the mutable state of one playthrough.
type Session struct {
	layout Layout
	next   func() deck.Source

	cards   []Card
	first   int
	second  int
	matched int
	won     bool
	message string
	presses int
}

// New validates the layout and deals the first board. Every later deal
// keeps drawing from src.
// The returned error is always a *deck.ConfigurationError.
func New(l Layout, src deck.Source) (*Session, error) {
	if src == nil {
		return nil, &deck.ConfigurationError{Field: "source", Reason: "random source is required"}
	}
	return NewDealer(l, func() deck.Source { return src })
}

// NewDealer is like New but asks next for a source on every deal, so a
// seeded factory redeals the same board after a new-game key.
func NewDealer(l Layout, next func() deck.Source) (*Session, error) {
	if err := ValidateLayout(l); err != nil {
		return nil, err
	}
	if next == nil {
		return nil, &deck.ConfigurationError{Field: "source", Reason: "random source is required"}
	}

	// Copy so later edits to the caller's slices cannot move cards.
	own := Layout{
		Palette:    append([]Image(nil), l.Palette...),
		Positions:  append([]Point(nil), l.Positions...),
		NewGameKey: l.NewGameKey,
	}
	if own.NewGameKey == 0 {
		own.NewGameKey = DefaultNewGameKey
	}

	s := &Session{layout: own, next: next}
	s.StartNewGame()
	return s, nil
}

// ValidateLayout reports the first reason l cannot be dealt.
func ValidateLayout(l Layout) error {
	if err := deck.Validate(len(l.Positions), len(l.Palette)); err != nil {
		return err
	}
	for i, img := range l.Palette {
		if img.Width <= 0 || img.Height <= 0 {
			return &deck.ConfigurationError{
				Field:  fmt.Sprintf("palette[%d]", i),
				Reason: fmt.Sprintf("image %q has non-positive size %dx%d", img.Name, img.Width, img.Height),
			}
		}
	}
	return nil
}

// StartNewGame discards the board, any pending pair and all counters, and deals again.
func (s *Session) StartNewGame() {
	ids, err := deck.GenerateAssignment(len(s.layout.Positions), len(s.layout.Palette), s.next())
	if err != nil {
		// The layout was validated up front; only a nil source from next lands here.
		panic(err)
	}

	cards := make([]Card, len(ids))
	for i, id := range ids {
		cards[i] = Card{ImageID: id, Pos: s.layout.Positions[i]}
	}

	s.cards = cards
	s.first, s.second = noCard, noCard
	s.matched = 0
	s.won = false
	s.message = ""
	s.presses = 0
}

// HandlePointerPress applies one click at (x, y).
//
// Order of work:
//  1. A pair left over from the previous press is resolved first:
//     matched cards are locked in, mismatched cards are turned back over.
//  2. The first card (board order) under the pointer is found.
//  3. An unmatched hit card is flipped and takes the first free slot;
//     filling the second slot evaluates the pair and sets the message.
//  4. Once every card is matched the session is won.
func (s *Session) HandlePointerPress(x, y float64) {
	s.presses++
	s.message = ""

	if s.first != noCard && s.second != noCard {
		s.resolvePending()
	}

	if i := s.hitTest(x, y); i != noCard && !s.cards[i].Matched {
		c := &s.cards[i]
		c.Visible = true
		c.Selected = true

		switch {
		case s.first == noCard:
			s.first = i
		case s.second == noCard && i != s.first:
			s.second = i
			if s.isMatch(s.first, s.second) {
				s.matched += 2
				s.message = MsgMatched
			} else {
				s.message = MsgNotMatched
			}
		}
	}

	if s.matched == len(s.cards) {
		s.won = true
		s.message = MsgWon
	}
}

// HandleKeyPress restarts the game on the new-game key; other keys are ignored.
// It reports whether a new game was dealt.
func (s *Session) HandleKeyPress(key rune) bool {
	if unicode.ToLower(key) != unicode.ToLower(s.layout.NewGameKey) {
		return false
	}
	s.StartNewGame()
	return true
}

// resolvePending settles the two selected cards from the previous press.
func (s *Session) resolvePending() {
	a, b := &s.cards[s.first], &s.cards[s.second]
	if s.isMatch(s.first, s.second) {
		a.Matched, b.Matched = true, true
		// The winning pair stays highlighted.
		if s.matched != len(s.cards) {
			a.Selected, b.Selected = false, false
		}
	} else {
		a.Visible, b.Visible = false, false
		a.Selected, b.Selected = false, false
	}
	s.first, s.second = noCard, noCard
}

// isMatch compares the image assigned at deal time.
func (s *Session) isMatch(i, j int) bool {
	return s.cards[i].ImageID == s.cards[j].ImageID
}

// hitTest returns the index of the first card whose box strictly contains
// (x, y), or noCard. Boxes are centred on the card and sized to its image.
func (s *Session) hitTest(x, y float64) int {
	for i, c := range s.cards {
		img := s.layout.Palette[c.ImageID]
		halfW := float64(img.Width) / 2
		halfH := float64(img.Height) / 2
		if x > c.Pos.X-halfW && x < c.Pos.X+halfW &&
			y > c.Pos.Y-halfH && y < c.Pos.Y+halfH {
			return i
		}
	}
	return noCard
}

// RenderState returns a snapshot safe to keep after further events.
func (s *Session) RenderState() RenderState {
	views := make([]CardView, len(s.cards))
	for i, c := range s.cards {
		views[i] = CardView{
			ImageID:  c.ImageID,
			Image:    s.layout.Palette[c.ImageID].Name,
			X:        c.Pos.X,
			Y:        c.Pos.Y,
			Visible:  c.Visible,
			Selected: c.Selected,
			Matched:  c.Matched,
		}
	}
	return RenderState{Cards: views, Message: s.message, Won: s.won}
}

// Selection returns the board indices in the two selection slots, -1 when empty.
func (s *Session) Selection() (first, second int) { return s.first, s.second }

// Card returns a copy of the card at board index i.
func (s *Session) Card(i int) Card { return s.cards[i] }

// BoardSize is the number of cards on the board.
func (s *Session) BoardSize() int { return len(s.cards) }

// MatchedCount is the number of cards in confirmed or pending matched pairs.
func (s *Session) MatchedCount() int { return s.matched }

// Won reports whether every pair has been found.
func (s *Session) Won() bool { return s.won }

// Message is the current status line.
func (s *Session) Message() string { return s.message }

// Presses counts pointer presses since the last deal.
func (s *Session) Presses() int { return s.presses }

// Layout returns the configuration the session deals from.
func (s *Session) Layout() Layout {
	return Layout{
		Palette:    append([]Image(nil), s.layout.Palette...),
		Positions:  append([]Point(nil), s.layout.Positions...),
		NewGameKey: s.layout.NewGameKey,
	}
}
