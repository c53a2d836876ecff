package debug

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func frameAt(t *testing.T) runtime.Frame {
	t.Helper()
	var pc [1]uintptr
	n := runtime.Callers(2, pc[:])
	require.NotZero(t, n)
	frame, _ := runtime.CallersFrames(pc[:n]).Next()
	return frame
}

func TestSymbolTableInterns(t *testing.T) {
	assert := require.New(t)
	st := NewSymbolTable()

	f := frameAt(t)
	id1 := st.locationID(&f)
	id2 := st.locationID(&f)
	assert.Equal(id1, id2)
	assert.Len(st.Locations, 1)
	assert.Len(st.Functions, 1)

	g := frameAt(t)
	id3 := st.locationID(&g)
	assert.NotEqual(id1, id3)
	assert.Len(st.Locations, 2)
	// same function, different line: the function record is shared
	assert.Len(st.Functions, 1)

	out := st.String([]int{id1, id3})
	assert.Equal(2, strings.Count(out, "TestSymbolTableInterns"))
}

func TestSymbolTableClone(t *testing.T) {
	assert := require.New(t)
	st := NewSymbolTable()
	f := frameAt(t)
	st.locationID(&f)

	c := st.Clone()
	g := frameAt(t)
	c.locationID(&g)

	assert.Len(st.Locations, 1)
	assert.Len(c.Locations, 2)
}
