package memory

import (
	"testing"

	"github.com/vovakirdan/storyhub/internal/state"
	"github.com/vovakirdan/storyhub/internal/state/statetest"
)

func TestPresence(t *testing.T) {
	statetest.RunPresence(t, func(*testing.T) state.Presence { return NewPresence() })
}

func TestRooms(t *testing.T) {
	statetest.RunRooms(t, func(*testing.T) state.Rooms { return NewRooms() })
}
