// internal/layout/layout.go
//
// Loads the board configuration the game deals from.
//
// Sources:
//   - A TOML file named by the caller (LAYOUT_FILE / --layout).
//   - Otherwise the embedded default in assets/layout.toml.
//
// Positions come either from an explicit [grid].positions list or are
// generated row-major from rows/cols/origin/step. The decoded file is
// checked with struct tags first, then by the game's own layout rules, and
// every failure is reported as a *deck.ConfigurationError.

package layout

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/robalobadob/memory/assets"
	"github.com/robalobadob/memory/internal/deck"
	"github.com/robalobadob/memory/internal/game"
)

var validate = validator.New()

// File mirrors the TOML document.
type File struct {
	NewGameKey string  `toml:"new_game_key" validate:"omitempty,len=1"`
	Images     []Image `toml:"image" validate:"required,min=1,dive"`
	Grid       Grid    `toml:"grid"`
}

// Image is one [[image]] table.
type Image struct {
	Name   string `toml:"name" validate:"required"`
	Width  int    `toml:"width" validate:"gt=0"`
	Height int    `toml:"height" validate:"gt=0"`
}

// Grid describes where cards sit. Positions wins over the generated grid.
type Grid struct {
	Rows      int          `toml:"rows" validate:"gte=0"`
	Cols      int          `toml:"cols" validate:"gte=0"`
	OriginX   float64      `toml:"origin_x"`
	OriginY   float64      `toml:"origin_y"`
	StepX     float64      `toml:"step_x"`
	StepY     float64      `toml:"step_y"`
	Positions [][2]float64 `toml:"positions"`
}

// Load reads path, or the embedded default when path is empty.
func Load(path string) (game.Layout, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return game.Layout{}, fmt.Errorf("read layout %s: %w", path, err)
	}
	l, err := Parse(data)
	if err != nil {
		return game.Layout{}, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// Default returns the embedded 3x4 layout.
func Default() (game.Layout, error) {
	data, err := assets.DefaultLayout()
	if err != nil {
		return game.Layout{}, fmt.Errorf("read embedded layout: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML layout document.
func Parse(data []byte) (game.Layout, error) {
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return game.Layout{}, &deck.ConfigurationError{Field: "layout", Reason: err.Error()}
	}
	return f.Layout()
}

// Layout converts the decoded file into a game.Layout.
func (f File) Layout() (game.Layout, error) {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return game.Layout{}, &deck.ConfigurationError{
				Field:  fe.Namespace(),
				Reason: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return game.Layout{}, &deck.ConfigurationError{Field: "layout", Reason: err.Error()}
	}

	l := game.Layout{Positions: f.Grid.points()}
	for _, img := range f.Images {
		l.Palette = append(l.Palette, game.Image{Name: img.Name, Width: img.Width, Height: img.Height})
	}
	if f.NewGameKey != "" {
		l.NewGameKey, _ = utf8.DecodeRuneInString(f.NewGameKey)
	}

	if err := game.ValidateLayout(l); err != nil {
		return game.Layout{}, err
	}
	return l, nil
}

// points returns card centres in board order (left-to-right, top-to-bottom).
func (g Grid) points() []game.Point {
	if len(g.Positions) > 0 {
		out := make([]game.Point, len(g.Positions))
		for i, p := range g.Positions {
			out[i] = game.Point{X: p[0], Y: p[1]}
		}
		return out
	}
	out := make([]game.Point, 0, g.Rows*g.Cols)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			out = append(out, game.Point{
				X: g.OriginX + float64(c)*g.StepX,
				Y: g.OriginY + float64(r)*g.StepY,
			})
		}
	}
	return out
}
