package debug

import (
	"path/filepath"
	"runtime"
	"strings"
)

// SymbolTable interns call-site information collected when components are
// declared, so error reports can point at the user statement that created
// the offending constraint or expression.
type SymbolTable struct {
	Locations  []Location
	Functions  []Function
	mFunctions map[string]int `cbor:"-"` // frame.File+frame.Function to id in Functions
	mLocations map[uint64]int `cbor:"-"` // frame PC to location id in Locations
}

type Function struct {
	Name       string
	SystemName string
	Filename   string
}

type Location struct {
	FunctionID int
	Line       int64
}

func NewSymbolTable() SymbolTable {
	return SymbolTable{
		mFunctions: map[string]int{},
		mLocations: map[uint64]int{},
	}
}

// CollectStack records the current call stack in the table and returns the
// location ids, most recent call first. Without the debug tag the stack is
// trimmed to the two user frames closest to the declaration call.
func (st *SymbolTable) CollectStack() []int {
	var r []int
	if Debug {
		r = make([]int, 0, 2)
	} else {
		r = make([]int, 0, 5)
	}

	var pc [20]uintptr
	n := runtime.Callers(4, pc[:])
	if n == 0 {
		return r
	}
	frames := runtime.CallersFrames(pc[:n])
	cpt := 0
	for {
		frame, more := frames.Next()
		fe := strings.Split(frame.Function, "/")
		function := fe[len(fe)-1]

		if !Debug {
			if cpt == 2 {
				// limit stack size to 2 when debug is not set.
				break
			}
			if strings.Contains(function, "runtime.gopanic") {
				continue
			}
			if strings.Contains(frame.File, "opal/model") {
				continue
			}
			if strings.Contains(frame.File, "opal/expr") {
				continue
			}
			frame.File = filepath.Base(frame.File)
		}

		r = append(r, st.locationID(&frame))
		cpt++

		if !more {
			break
		}
		if strings.HasSuffix(function, "Build") {
			break
		}
	}
	return r
}

func (st *SymbolTable) locationID(frame *runtime.Frame) int {
	lID, ok := st.mLocations[uint64(frame.PC)]
	if !ok {
		// first let's see if we have the function.
		fID, ok := st.mFunctions[frame.File+frame.Function]
		if !ok {
			fe := strings.Split(frame.Function, "/")
			fName := fe[len(fe)-1]
			f := Function{
				Name:       fName,
				SystemName: frame.Function,
				Filename:   frame.File,
			}

			st.Functions = append(st.Functions, f)
			fID = len(st.Functions) - 1
			st.mFunctions[frame.File+frame.Function] = fID
		}

		l := Location{FunctionID: fID, Line: int64(frame.Line)}

		st.Locations = append(st.Locations, l)
		lID = len(st.Locations) - 1
		st.mLocations[uint64(frame.PC)] = lID
	}

	return lID
}

// Clone returns a deep copy of the table.
func (st *SymbolTable) Clone() SymbolTable {
	c := SymbolTable{
		Locations:  append([]Location(nil), st.Locations...),
		Functions:  append([]Function(nil), st.Functions...),
		mFunctions: make(map[string]int, len(st.mFunctions)),
		mLocations: make(map[uint64]int, len(st.mLocations)),
	}
	for k, v := range st.mFunctions {
		c.mFunctions[k] = v
	}
	for k, v := range st.mLocations {
		c.mLocations[k] = v
	}
	return c
}

// String renders the recorded stack ids to a readable trace.
func (st *SymbolTable) String(stack []int) string {
	var sbb strings.Builder
	for _, lID := range stack {
		l := st.Locations[lID]
		f := st.Functions[l.FunctionID]
		sbb.WriteString(f.Name)
		sbb.WriteString("\n\t")
		sbb.WriteString(f.Filename)
		sbb.WriteByte(':')
		sbb.WriteString(itoa(l.Line))
		sbb.WriteByte('\n')
	}
	return sbb.String()
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
