package bingo

import "sort"

// LineKind names the direction of a winning line
type LineKind string

const (
	LineRow      LineKind = "row"
	LineColumn   LineKind = "column"
	LineDiagonal LineKind = "diagonal"
)

// Line is one complete row, column, or diagonal. Diagonal 0 runs from the
// top-left corner, diagonal 1 from the top-right.
type Line struct {
	Kind  LineKind `json:"kind"`
	Index int      `json:"index"`
}

// Result is the outcome of CheckWin
type Result struct {
	Won   bool   `json:"won"`
	Lines []Line `json:"lines,omitempty"`
}

// MarkSet is a set of marked numbers
type MarkSet map[int]struct{}

// NewMarkSet builds a set from a list, ignoring numbers outside 1-75
func NewMarkSet(nums []int) MarkSet {
	s := make(MarkSet, len(nums))
	for _, n := range nums {
		if ValidNumber(n) {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether n is in the set
func (s MarkSet) Has(n int) bool {
	_, ok := s[n]
	return ok
}

// Intersect keeps only numbers that are also in other
func (s MarkSet) Intersect(other []int) MarkSet {
	allowed := NewMarkSet(other)
	out := make(MarkSet, len(s))
	for n := range s {
		if allowed.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

// Sorted returns the set as an ascending slice
func (s MarkSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// CheckWin reports every complete line on the card. The free space counts as
// marked. Server and client both call this function; there is no other win check.
func CheckWin(card Card, marked MarkSet) Result {
	isMarked := func(row, col int) bool {
		if card.IsFree(row, col) {
			return true
		}
		return marked.Has(card.Grid[row][col])
	}

	var lines []Line

	for row := 0; row < Size; row++ {
		complete := true
		for col := 0; col < Size && complete; col++ {
			complete = isMarked(row, col)
		}
		if complete {
			lines = append(lines, Line{Kind: LineRow, Index: row})
		}
	}

	for col := 0; col < Size; col++ {
		complete := true
		for row := 0; row < Size && complete; row++ {
			complete = isMarked(row, col)
		}
		if complete {
			lines = append(lines, Line{Kind: LineColumn, Index: col})
		}
	}

	main, anti := true, true
	for i := 0; i < Size; i++ {
		main = main && isMarked(i, i)
		anti = anti && isMarked(i, Size-1-i)
	}
	if main {
		lines = append(lines, Line{Kind: LineDiagonal, Index: 0})
	}
	if anti {
		lines = append(lines, Line{Kind: LineDiagonal, Index: 1})
	}

	return Result{Won: len(lines) > 0, Lines: lines}
}

// CheckClaim evaluates a claim the way the server rules on it: only marks
// that have been drawn count
func CheckClaim(card Card, marked MarkSet, drawn []int) Result {
	return CheckWin(card, marked.Intersect(drawn))
}
