package sqlutil

import (
	"reflect"
	"testing"
)

func TestInt4ArrayRoundTrip(t *testing.T) {
	in := []int{1, 75, 30}
	if got := FromInt4Array(ToInt4Array(in)); !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, want %v", got, in)
	}
	if got := ToInt4Array(nil); got == nil || len(got) != 0 {
		t.Errorf("nil input should become an empty array, got %#v", got)
	}
	if got := ToTextArray(nil); got == nil {
		t.Error("ToTextArray(nil) returned nil")
	}
}
