package game

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/memory/internal/deck"
)

// scripted replays fixed Intn results, cycling when exhausted.
type scripted struct {
	vals []int
	i    int
}

func (s *scripted) Intn(n int) int {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v % n
}

// identity never swaps, so the deal is 0,0,1,1,2,2,...
type identity struct{}

func (identity) Intn(n int) int { return n - 1 }

const cardSize = 100

// testLayout lays pairs*2 cards out four per row, 150 apart, 100x100 each.
func testLayout(pairs int) Layout {
	l := Layout{}
	for i := 0; i < pairs; i++ {
		l.Palette = append(l.Palette, Image{Name: fmt.Sprintf("img%d", i), Width: cardSize, Height: cardSize})
	}
	for i := 0; i < pairs*2; i++ {
		l.Positions = append(l.Positions, Point{X: float64(100 + 150*(i%4)), Y: float64(100 + 150*(i/4))})
	}
	return l
}

func press(s *Session, i int) {
	p := s.layout.Positions[i]
	s.HandlePointerPress(p.X, p.Y)
}

func pressMiss(s *Session) { s.HandlePointerPress(-500, -500) }

func newSession(t *testing.T, pairs int, src deck.Source) *Session {
	t.Helper()
	s, err := New(testLayout(pairs), src)
	require.NoError(t, err)
	return s
}

func assertFresh(t *testing.T, s *Session) {
	t.Helper()
	assert.Equal(t, 0, s.MatchedCount())
	assert.False(t, s.Won())
	assert.Empty(t, s.Message())
	first, second := s.Selection()
	assert.Equal(t, -1, first)
	assert.Equal(t, -1, second)
	for i := 0; i < s.BoardSize(); i++ {
		c := s.Card(i)
		assert.False(t, c.Visible, "card %d visible", i)
		assert.False(t, c.Selected, "card %d selected", i)
		assert.False(t, c.Matched, "card %d matched", i)
	}
}

func TestNew_FreshBoard(t *testing.T) {
	s := newSession(t, 6, rand.New(rand.NewSource(3)))
	require.Equal(t, 12, s.BoardSize())
	assertFresh(t, s)

	counts := map[int]int{}
	for i := 0; i < s.BoardSize(); i++ {
		counts[s.Card(i).ImageID]++
		assert.Equal(t, s.layout.Positions[i], s.Card(i).Pos)
	}
	for id, n := range counts {
		assert.Equal(t, 2, n, "image %d", id)
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	odd := testLayout(2)
	odd.Positions = odd.Positions[:3]

	mismatch := testLayout(3)
	mismatch.Palette = mismatch.Palette[:2]

	noSize := testLayout(2)
	noSize.Palette[1].Height = 0

	cases := map[string]struct {
		layout Layout
		src    deck.Source
	}{
		"odd board":        {odd, identity{}},
		"palette mismatch": {mismatch, identity{}},
		"empty":            {Layout{}, identity{}},
		"zero image size":  {noSize, identity{}},
		"no source":        {testLayout(2), nil},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			s, err := New(tc.layout, tc.src)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, deck.ErrConfiguration), "got %v", err)
		})
	}
}

func TestNew_CopiesLayout(t *testing.T) {
	l := testLayout(2)
	s, err := New(l, identity{})
	require.NoError(t, err)

	l.Positions[0] = Point{X: -1, Y: -1}
	l.Palette[0].Width = 1

	assert.Equal(t, Point{X: 100, Y: 100}, s.Layout().Positions[0])
	press(s, 0)
	assert.True(t, s.Card(0).Selected)
}

// Board of four cards dealt A,B,A,B.
func TestPointerPress_MismatchThenReselect(t *testing.T) {
	s := newSession(t, 2, &scripted{vals: []int{3, 1, 1}})
	for i, want := range []int{0, 1, 0, 1} {
		require.Equal(t, want, s.Card(i).ImageID)
	}

	press(s, 0)
	first, second := s.Selection()
	assert.Equal(t, 0, first)
	assert.Equal(t, -1, second)
	assert.True(t, s.Card(0).Visible)
	assert.True(t, s.Card(0).Selected)
	assert.Empty(t, s.Message())

	press(s, 1)
	first, second = s.Selection()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.True(t, s.Card(1).Visible)
	assert.Equal(t, MsgNotMatched, s.Message())
	assert.Equal(t, 0, s.MatchedCount())

	press(s, 2)
	for _, i := range []int{0, 1} {
		assert.False(t, s.Card(i).Visible, "card %d", i)
		assert.False(t, s.Card(i).Selected, "card %d", i)
		assert.False(t, s.Card(i).Matched, "card %d", i)
	}
	first, second = s.Selection()
	assert.Equal(t, 2, first)
	assert.Equal(t, -1, second)
	assert.True(t, s.Card(2).Visible)
	assert.Empty(t, s.Message())

	// Re-pressing the lone selected card must not fill the second slot.
	press(s, 2)
	first, second = s.Selection()
	assert.Equal(t, 2, first)
	assert.Equal(t, -1, second)
	assert.True(t, s.Card(2).Visible)
	assert.True(t, s.Card(2).Selected)
	assert.Equal(t, 0, s.MatchedCount())
	assert.Empty(t, s.Message())
}

func TestPointerPress_MatchLockedInOnNextPress(t *testing.T) {
	s := newSession(t, 3, identity{}) // 0,0,1,1,2,2

	press(s, 0)
	press(s, 1)
	assert.Equal(t, MsgMatched, s.Message())
	assert.Equal(t, 2, s.MatchedCount())
	assert.False(t, s.Card(0).Matched, "match is applied on the next press")
	assert.True(t, s.Card(0).Selected)

	pressMiss(s)
	for _, i := range []int{0, 1} {
		c := s.Card(i)
		assert.True(t, c.Matched, "card %d", i)
		assert.True(t, c.Visible, "card %d", i)
		assert.False(t, c.Selected, "card %d", i)
	}
	assert.Empty(t, s.Message())

	// Matched cards cannot be selected again and never unmatch.
	press(s, 0)
	first, _ := s.Selection()
	assert.Equal(t, -1, first)

	press(s, 2)
	press(s, 4)
	press(s, 3)
	for _, i := range []int{0, 1} {
		assert.True(t, s.Card(i).Matched, "card %d", i)
		assert.True(t, s.Card(i).Visible, "card %d", i)
	}
}

func TestPointerPress_MismatchHidesOnAnyNextPress(t *testing.T) {
	s := newSession(t, 3, identity{})

	press(s, 0)
	press(s, 2)
	assert.Equal(t, MsgNotMatched, s.Message())

	pressMiss(s)
	for _, i := range []int{0, 2} {
		c := s.Card(i)
		assert.False(t, c.Visible, "card %d", i)
		assert.False(t, c.Selected, "card %d", i)
		assert.False(t, c.Matched, "card %d", i)
	}
	first, second := s.Selection()
	assert.Equal(t, -1, first)
	assert.Equal(t, -1, second)
}

func TestPointerPress_MissIsNoop(t *testing.T) {
	s := newSession(t, 3, identity{})
	press(s, 4)
	before := s.RenderState()
	first, second := s.Selection()

	pressMiss(s)
	s.HandlePointerPress(175, 100) // gap between cards 0 and 1

	assert.Equal(t, before.Cards, s.RenderState().Cards)
	f2, s2 := s.Selection()
	assert.Equal(t, first, f2)
	assert.Equal(t, second, s2)
	assert.Equal(t, 0, s.MatchedCount())
	assert.False(t, s.Won())
}

func TestPointerPress_HitBoxIsStrict(t *testing.T) {
	s := newSession(t, 2, identity{})

	s.HandlePointerPress(150, 100) // right edge of card 0
	first, _ := s.Selection()
	assert.Equal(t, -1, first)

	s.HandlePointerPress(149.5, 51)
	first, _ = s.Selection()
	assert.Equal(t, 0, first)
}

func TestPointerPress_TinyAndOddImagesAreClickable(t *testing.T) {
	l := Layout{
		Palette:   []Image{{Name: "dot", Width: 1, Height: 1}, {Name: "odd", Width: 3, Height: 3}},
		Positions: []Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 30, Y: 10}, {X: 40, Y: 10}},
	}
	s, err := New(l, identity{})
	require.NoError(t, err)

	s.HandlePointerPress(10.4, 10.4)
	first, _ := s.Selection()
	assert.Equal(t, 0, first)
	s.HandlePointerPress(20, 10)
	assert.Equal(t, MsgMatched, s.Message())

	// Half of 3 is 1.5, so 31.2 is inside card 2.
	s.HandlePointerPress(31.2, 11.2)
	first, _ = s.Selection()
	assert.Equal(t, 2, first)
	s.HandlePointerPress(40, 10)
	assert.True(t, s.Won())
}

func TestPointerPress_WinDetection(t *testing.T) {
	s := newSession(t, 6, identity{})
	n := s.BoardSize()

	for pair := 0; pair < n/2; pair++ {
		press(s, 2*pair)
		assert.False(t, s.Won(), "won after first card of pair %d", pair)
		press(s, 2*pair+1)

		if pair < n/2-1 {
			assert.False(t, s.Won(), "won early at pair %d", pair)
			assert.Equal(t, MsgMatched, s.Message())
		}
		assert.Equal(t, 2*(pair+1), s.MatchedCount())
	}

	assert.True(t, s.Won())
	assert.Equal(t, n, s.MatchedCount())
	assert.Equal(t, MsgWon, s.Message())

	// The last pair is confirmed on the next press but stays highlighted.
	pressMiss(s)
	last := s.Card(n - 1)
	assert.True(t, last.Matched)
	assert.True(t, last.Selected)
	assert.True(t, s.Won())
	assert.Equal(t, MsgWon, s.Message())
	for i := 0; i < n; i++ {
		assert.True(t, s.Card(i).Matched, "card %d", i)
	}
}

func TestPointerPress_RandomPlaythroughWins(t *testing.T) {
	s := newSession(t, 6, rand.New(rand.NewSource(99)))

	byImage := map[int][]int{}
	for i := 0; i < s.BoardSize(); i++ {
		id := s.Card(i).ImageID
		byImage[id] = append(byImage[id], i)
	}
	for id := 0; id < 6; id++ {
		require.Len(t, byImage[id], 2)
		press(s, byImage[id][0])
		press(s, byImage[id][1])
	}
	assert.True(t, s.Won())
	assert.Equal(t, 12, s.Presses())
}

func TestKeyPress_NewGameMidComparison(t *testing.T) {
	for _, key := range []rune{'n', 'N'} {
		s := newSession(t, 3, identity{})
		press(s, 0)
		press(s, 2)
		require.Equal(t, MsgNotMatched, s.Message())

		assert.True(t, s.HandleKeyPress(key))
		assertFresh(t, s)
		assert.Equal(t, 0, s.Presses())
	}
}

func TestKeyPress_OtherKeysIgnored(t *testing.T) {
	s := newSession(t, 3, identity{})
	press(s, 0)

	assert.False(t, s.HandleKeyPress('x'))
	assert.False(t, s.HandleKeyPress(' '))
	first, _ := s.Selection()
	assert.Equal(t, 0, first)
	assert.True(t, s.Card(0).Visible)
}

func TestKeyPress_CustomBinding(t *testing.T) {
	l := testLayout(2)
	l.NewGameKey = 'R'
	s, err := New(l, identity{})
	require.NoError(t, err)
	press(s, 0)

	s.HandleKeyPress('n')
	assert.True(t, s.Card(0).Visible)

	s.HandleKeyPress('r')
	assertFresh(t, s)
}

func TestNewDealer_RedealsFromFreshSource(t *testing.T) {
	calls := 0
	s, err := NewDealer(testLayout(6), func() deck.Source {
		calls++
		return rand.New(rand.NewSource(42))
	})
	require.NoError(t, err)

	deal := func() []int {
		ids := make([]int, s.BoardSize())
		for i := range ids {
			ids[i] = s.Card(i).ImageID
		}
		return ids
	}
	before := deal()
	press(s, 0)
	require.True(t, s.HandleKeyPress('n'))

	assert.Equal(t, before, deal())
	assert.Equal(t, 2, calls)
	assertFresh(t, s)
}

func TestNewDealer_NilFactory(t *testing.T) {
	s, err := NewDealer(testLayout(2), nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, deck.ErrConfiguration)
}

func TestKeyPress_AfterWinResets(t *testing.T) {
	s := newSession(t, 1, identity{})
	press(s, 0)
	press(s, 1)
	require.True(t, s.Won())

	s.HandleKeyPress('n')
	assertFresh(t, s)
}

func TestRenderState_Snapshot(t *testing.T) {
	s := newSession(t, 2, identity{})
	press(s, 0)

	rs := s.RenderState()
	require.Len(t, rs.Cards, 4)
	assert.Equal(t, CardView{ImageID: 0, Image: "img0", X: 100, Y: 100, Visible: true, Selected: true}, rs.Cards[0])
	assert.False(t, rs.Cards[1].Visible)

	press(s, 2)
	assert.Empty(t, rs.Message, "snapshot must not follow later events")
	assert.False(t, rs.Cards[2].Visible)
	assert.Equal(t, MsgNotMatched, s.RenderState().Message)
}
