package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateDetecting, true},
		{StateIdle, StateAborted, true},
		{StateIdle, StateCropping, false},
		{StateDetecting, StateDone, true},
		{StateDetecting, StateResolving, true},
		{StateDetecting, StateCropping, true},
		{StateResolving, StateCropping, true},
		{StateResolving, StateDetecting, false},
		{StateCropping, StateDone, true},
		{StateCropping, StateResolving, false},
		{StateDone, StateAborted, false},
		{StateAborted, StateDetecting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateCropping.Terminal())
}

func TestTransitionError(t *testing.T) {
	err := &TransitionError{RunID: "r1", From: StateDone, To: StateCropping}
	assert.Equal(t, "invalid state transition for run r1: done -> cropping", err.Error())
}
