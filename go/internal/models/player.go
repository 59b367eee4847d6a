package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/bingo/go/internal/bingo"
)

// Player represents a registered participant of a game.
type Player struct {
	ID            uuid.UUID  `json:"id"`
	GameID        uuid.UUID  `json:"game_id"`
	Name          string     `json:"name"`
	Card          bingo.Card `json:"card"`
	MarkedNumbers []int      `json:"marked_numbers"`
	HasWon        bool       `json:"has_won"`
	WonAt         *time.Time `json:"won_at,omitempty"`
	Online        bool       `json:"online"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	ConnectionID  *string    `json:"connection_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (p *Player) IsMarked(n int) bool {
	for _, m := range p.MarkedNumbers {
		if m == n {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.MarkedNumbers = append([]int(nil), p.MarkedNumbers...)
	c.WonAt = cloneTime(p.WonAt)
	if p.Card.FreeSpace != nil {
		fs := *p.Card.FreeSpace
		c.Card.FreeSpace = &fs
	}
	if p.ConnectionID != nil {
		id := *p.ConnectionID
		c.ConnectionID = &id
	}
	return &c
}
