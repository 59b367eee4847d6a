package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the lifecycle state of a game.
type GameStatus string

const (
	GameStatusCreated GameStatus = "created"
	GameStatusActive  GameStatus = "active"
	GameStatusPaused  GameStatus = "paused"
	GameStatusEnded   GameStatus = "ended"
)

// Valid reports whether s is a known status
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusCreated, GameStatusActive, GameStatusPaused, GameStatusEnded:
		return true
	}
	return false
}

// DrawMode defines who triggers a draw.
type DrawMode string

const (
	DrawModeManual DrawMode = "manual"
	DrawModeTimed  DrawMode = "timed"
)

// MaxNumber is the highest number that can be drawn
const MaxNumber = 75

// Game represents one bingo game.
type Game struct {
	ID                uuid.UUID  `json:"id"`
	JoinCode          string     `json:"join_code"`
	Name              string     `json:"name"`
	Status            GameStatus `json:"status"`
	DrawMode          DrawMode   `json:"draw_mode"`
	DrawIntervalSec   int        `json:"draw_interval_sec,omitempty"`
	DrawnNumbers      []int      `json:"drawn_numbers"` // draw order
	RegisteredPlayers int        `json:"registered_players"`
	ActivePlayers     int        `json:"active_players"`
	WinnerCount       int        `json:"winner_count"`
	AdminConnections  []string   `json:"admin_connections,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	LastDrawnAt       *time.Time `json:"last_drawn_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasDrawn reports whether n has already been called
func (g *Game) HasDrawn(n int) bool {
	for _, d := range g.DrawnNumbers {
		if d == n {
			return true
		}
	}
	return false
}

// RemainingNumbers returns the numbers not drawn yet, ascending
func (g *Game) RemainingNumbers() []int {
	drawn := make([]bool, MaxNumber+1)
	for _, d := range g.DrawnNumbers {
		if d >= 1 && d <= MaxNumber {
			drawn[d] = true
		}
	}
	remaining := make([]int, 0, MaxNumber-len(g.DrawnNumbers))
	for n := 1; n <= MaxNumber; n++ {
		if !drawn[n] {
			remaining = append(remaining, n)
		}
	}
	return remaining
}

// LastDrawn returns the most recent number, or 0 if none
func (g *Game) LastDrawn() int {
	if len(g.DrawnNumbers) == 0 {
		return 0
	}
	return g.DrawnNumbers[len(g.DrawnNumbers)-1]
}

func (g *Game) IsTimed() bool {
	return g.DrawMode == DrawModeTimed && g.DrawIntervalSec > 0
}

// Clone returns a deep copy
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.DrawnNumbers = append([]int(nil), g.DrawnNumbers...)
	c.AdminConnections = append([]string(nil), g.AdminConnections...)
	c.StartedAt = cloneTime(g.StartedAt)
	c.EndedAt = cloneTime(g.EndedAt)
	c.LastDrawnAt = cloneTime(g.LastDrawnAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
