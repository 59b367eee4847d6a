package bingo

import (
	"fmt"

	"github.com/valyala/fastrand"
)

const (
	// Size is the width and height of a card
	Size = 5
	// ColumnSpan is how many numbers each column draws from
	ColumnSpan = 15
	// MaxNumber is the highest callable number
	MaxNumber = Size * ColumnSpan
)

// RandFunc returns a uniformly distributed integer in [0, n)
type RandFunc func(n int) int

// FastRand is the default RandFunc, safe for concurrent use
func FastRand(n int) int {
	return int(fastrand.Uint32n(uint32(n)))
}

// Cell addresses one square of a card
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Center is the conventional free space
var Center = Cell{Row: 2, Col: 2}

// Card is a 5x5 bingo card. Grid is row-major; the free space, if any, holds 0.
type Card struct {
	Grid      [Size][Size]int `json:"grid"`
	FreeSpace *Cell           `json:"free_space,omitempty"`
}

// NewCard builds a card whose column c holds five distinct numbers from
// [15c+1, 15c+15], optionally with a free space at the center
func NewCard(rand RandFunc, freeCenter bool) Card {
	if rand == nil {
		rand = FastRand
	}

	var card Card
	for col := 0; col < Size; col++ {
		low := col*ColumnSpan + 1
		pool := make([]int, ColumnSpan)
		for i := range pool {
			pool[i] = low + i
		}
		// partial Fisher-Yates, only the first Size slots are needed
		for row := 0; row < Size; row++ {
			j := row + rand(len(pool)-row)
			pool[row], pool[j] = pool[j], pool[row]
			card.Grid[row][col] = pool[row]
		}
	}

	if freeCenter {
		center := Center
		card.FreeSpace = &center
		card.Grid[center.Row][center.Col] = 0
	}
	return card
}

// IsFree reports whether the cell is the card's free space
func (c Card) IsFree(row, col int) bool {
	return c.FreeSpace != nil && c.FreeSpace.Row == row && c.FreeSpace.Col == col
}

// Contains reports whether n is printed on the card
func (c Card) Contains(n int) bool {
	if n < 1 || n > MaxNumber {
		return false
	}
	col := (n - 1) / ColumnSpan
	for row := 0; row < Size; row++ {
		if !c.IsFree(row, col) && c.Grid[row][col] == n {
			return true
		}
	}
	return false
}

// Numbers returns every number on the card in row-major order, free space excluded
func (c Card) Numbers() []int {
	nums := make([]int, 0, Size*Size)
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if c.IsFree(row, col) {
				continue
			}
			nums = append(nums, c.Grid[row][col])
		}
	}
	return nums
}

// Validate checks the column ranges and uniqueness rules
func (c Card) Validate() error {
	if c.FreeSpace != nil {
		fs := c.FreeSpace
		if fs.Row < 0 || fs.Row >= Size || fs.Col < 0 || fs.Col >= Size {
			return fmt.Errorf("free space (%d,%d) is outside the card", fs.Row, fs.Col)
		}
	}

	seen := make(map[int]bool, Size*Size)
	for col := 0; col < Size; col++ {
		low, high := col*ColumnSpan+1, (col+1)*ColumnSpan
		for row := 0; row < Size; row++ {
			if c.IsFree(row, col) {
				continue
			}
			n := c.Grid[row][col]
			if n < low || n > high {
				return fmt.Errorf("cell (%d,%d) value %d outside column range [%d,%d]", row, col, n, low, high)
			}
			if seen[n] {
				return fmt.Errorf("number %d appears more than once", n)
			}
			seen[n] = true
		}
	}
	return nil
}

// ValidNumber reports whether n can be called at all
func ValidNumber(n int) bool {
	return n >= 1 && n <= MaxNumber
}
