// Package contentstream parses, traces and serializes page description
// programs: the operator streams that paint text, paths and images.
package contentstream

import (
	"github.com/fileskadis/fileskadis/coords"
)

// GraphicsState is the subset of the graphics state the tracer follows:
// the transformation matrix and the active text parameters.
type GraphicsState struct {
	CTM      coords.Matrix
	Font     string
	FontSize float64
	Leading  float64
}

func newGraphicsState() GraphicsState {
	return GraphicsState{CTM: coords.Identity()}
}

type stateStack struct {
	states []GraphicsState
}

func (s *stateStack) push(g GraphicsState) {
	s.states = append(s.states, g)
}

func (s *stateStack) pop() (GraphicsState, bool) {
	if len(s.states) == 0 {
		return GraphicsState{}, false
	}
	g := s.states[len(s.states)-1]
	s.states = s.states[:len(s.states)-1]
	return g, true
}
