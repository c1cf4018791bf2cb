package cmd

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/robalobadob/memory/internal/daily"
	"github.com/robalobadob/memory/internal/deck"
	"github.com/robalobadob/memory/internal/game"
	"github.com/robalobadob/memory/internal/layout"
)

// playCmd runs a single game in the terminal.
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a game in the terminal",
	Long: `Play deals a board and reads moves from standard input.

Moves:
  <row> <col>   flip the card at that cell (1-based)
  n             start a new game (or the layout's new-game key)
  q, quit       quit ("quit" only, when q is the new-game key)

Any other single character is passed to the game as a key press.`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func init() {
	RootCmd.AddCommand(playCmd)
	playCmd.Flags().Int64("seed", 0, "seed the deal for a reproducible board (0 = random)")
	playCmd.Flags().Bool("daily", false, "play today's shared board")
}

func runPlay(cmd *cobra.Command, args []string) error {
	l, err := layout.Load(layoutPath(cmd))
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}

	var s *game.Session
	seed, _ := cmd.Flags().GetInt64("seed")
	isDaily, _ := cmd.Flags().GetBool("daily")
	switch {
	case isDaily:
		// Restarting a daily game redeals the same board.
		date, salt := time.Now(), getEnv("DAILY_SALT", "local_dev_salt")
		s, err = game.NewDealer(l, func() deck.Source { return daily.Source(date, salt) })
	case seed != 0:
		s, err = game.New(l, rand.New(rand.NewSource(seed)))
	default:
		s, err = game.New(l, deck.NewReaderSource(nil))
	}
	if err != nil {
		return err
	}
	return playLoop(cmd.InOrStdin(), cmd.OutOrStdout(), s, terminalWidth())
}

// terminalWidth reports the stdout width, or 80 when it is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// playLoop renders the board and applies moves read from in until EOF or quit.
func playLoop(in io.Reader, out io.Writer, s *game.Session, width int) error {
	l := s.Layout()
	g := newGrid(l.Positions)
	sc := bufio.NewScanner(in)

	renderBoard(out, g, s.RenderState(), width)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		mv, err := parseMove(sc.Text(), l.NewGameKey)
		if err != nil {
			color.New(color.FgRed).Fprintln(out, err)
			continue
		}
		switch mv.kind {
		case moveQuit:
			return nil
		case moveNone:
			continue
		case moveKey:
			s.HandleKeyPress(mv.key)
		case moveCell:
			i, ok := g.at(mv.row, mv.col)
			if !ok {
				color.New(color.FgRed).Fprintf(out, "no card at %d %d\n", mv.row, mv.col)
				continue
			}
			p := s.Card(i).Pos
			s.HandlePointerPress(p.X, p.Y)
		}
		renderBoard(out, g, s.RenderState(), width)
	}
}

type moveKind int

const (
	moveNone moveKind = iota
	moveCell
	moveKey
	moveQuit
)

type move struct {
	kind     moveKind
	row, col int
	key      rune
}

// parseMove reads "row col", "quit", or a single key character. "q" also
// quits unless it is the new-game key.
func parseMove(line string, newGameKey rune) (move, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return move{kind: moveNone}, nil
	case 1:
		if strings.EqualFold(fields[0], "quit") {
			return move{kind: moveQuit}, nil
		}
		r := []rune(fields[0])
		if len(r) != 1 {
			return move{}, fmt.Errorf("unknown move %q", fields[0])
		}
		if unicode.ToLower(r[0]) == 'q' && unicode.ToLower(newGameKey) != 'q' {
			return move{kind: moveQuit}, nil
		}
		return move{kind: moveKey, key: r[0]}, nil
	case 2:
		row, err1 := strconv.Atoi(fields[0])
		col, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return move{}, fmt.Errorf("expected <row> <col>, got %q", line)
		}
		return move{kind: moveCell, row: row, col: col}, nil
	}
	return move{}, fmt.Errorf("expected <row> <col>, got %q", line)
}

// grid maps 1-based terminal cells to board indices. Cards sharing a Y
// coordinate form a row; rows and columns are ordered by coordinate.
type grid struct {
	rows [][]int
}

func newGrid(pos []game.Point) grid {
	byY := map[float64][]int{}
	var ys []float64
	for i, p := range pos {
		if _, ok := byY[p.Y]; !ok {
			ys = append(ys, p.Y)
		}
		byY[p.Y] = append(byY[p.Y], i)
	}
	sort.Float64s(ys)

	g := grid{rows: make([][]int, 0, len(ys))}
	for _, y := range ys {
		row := byY[y]
		sort.SliceStable(row, func(a, b int) bool { return pos[row[a]].X < pos[row[b]].X })
		g.rows = append(g.rows, row)
	}
	return g
}

func (g grid) at(row, col int) (int, bool) {
	if row < 1 || row > len(g.rows) || col < 1 || col > len(g.rows[row-1]) {
		return 0, false
	}
	return g.rows[row-1][col-1], true
}

var (
	faceDown = color.New(color.FgHiBlack)
	faceUp   = color.New(color.FgCyan, color.Bold)
	selected = color.New(color.FgYellow, color.Bold)
	matched  = color.New(color.FgGreen)
	won      = color.New(color.FgGreen, color.Bold)
	notice   = color.New(color.FgMagenta, color.Bold)
)

// renderBoard draws one frame: a header row, one line per grid row, and the message.
func renderBoard(w io.Writer, g grid, rs game.RenderState, width int) {
	cols := 0
	for _, r := range g.rows {
		cols = max(cols, len(r))
	}
	cell := 14
	if cols > 0 && (width-4)/cols < cell {
		cell = max(6, (width-4)/cols)
	}

	fmt.Fprint(w, "    ")
	for c := 1; c <= cols; c++ {
		fmt.Fprintf(w, "%-*s", cell, strconv.Itoa(c))
	}
	fmt.Fprintln(w)

	for r, row := range g.rows {
		fmt.Fprintf(w, "%-4d", r+1)
		for _, i := range row {
			cv := rs.Cards[i]
			label, c := "[ ?? ]", faceDown
			if cv.Visible {
				label = "[" + truncate(cv.Image, cell-3) + "]"
				switch {
				case cv.Selected:
					c = selected
				case cv.Matched:
					c = matched
				default:
					c = faceUp
				}
			}
			c.Fprintf(w, "%-*s", cell, label)
		}
		fmt.Fprintln(w)
	}

	switch {
	case rs.Won:
		won.Fprintln(w, rs.Message)
	case rs.Message != "":
		notice.Fprintln(w, rs.Message)
	default:
		fmt.Fprintln(w)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n < 1 {
		n = 1
	}
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
