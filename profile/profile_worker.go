package profile

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/pprof/profile"
)

// since we are assuming usage of this package from a single go routine, this
// channel only has one "producer", and one "consumer". its purpose is to
// guarantee the order of execution of adding / removing a profiling session
// and sampling events, while enabling the caller (model construction) to
// sample the events asynchronously.
var chCommands = make(chan command, 100)
var onceInit sync.Once

type command struct {
	p      *Profile
	pc     []uintptr
	remove bool
}

func worker() {
	for c := range chCommands {
		if c.p != nil {
			if c.remove {
				for i := 0; i < len(sessions); i++ {
					if sessions[i] == c.p {
						sessions[i] = sessions[len(sessions)-1]
						sessions = sessions[:len(sessions)-1]
						break
					}
				}
				close(c.p.chDone)
				atomic.AddUint32(&activeSessions, ^uint32(0))
			} else {
				sessions = append(sessions, c.p)
			}
			continue
		}

		collected := collectFrames(c.pc)
		for _, s := range sessions {
			s.addSample(collected)
		}
	}
}

// collectFrames resolves the raw program counters, dropping runtime frames
// and stopping at the user model boundary (a function named Build).
func collectFrames(pc []uintptr) []runtime.Frame {
	frames := runtime.CallersFrames(pc)
	var r []runtime.Frame
	for {
		frame, more := frames.Next()
		if strings.HasPrefix(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		r = append(r, frame)
		if !more {
			break
		}
		if strings.HasSuffix(frame.Function, "Build") {
			break
		}
	}
	return r
}

func (p *Profile) addSample(frames []runtime.Frame) {
	locs := make([]*profile.Location, 0, len(frames))
	for i := range frames {
		locs = append(locs, p.getLocation(&frames[i]))
	}
	p.pprof.Sample = append(p.pprof.Sample, &profile.Sample{
		Location: locs,
		Value:    []int64{1},
	})
}
