package sqlutil

// Helper functions for converting between Go slices and Postgres array columns

// ToInt4Array converts a Go int slice to the int32 slice pgx encodes as int[]
func ToInt4Array(vals []int) []int32 {
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = int32(v)
	}
	return out
}

// FromInt4Array converts a scanned int[] back to Go ints
func FromInt4Array(vals []int32) []int {
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}

// ToTextArray never returns nil so NOT NULL array columns get '{}'
func ToTextArray(vals []string) []string {
	if vals == nil {
		return []string{}
	}
	return vals
}
