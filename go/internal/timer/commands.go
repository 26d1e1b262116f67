package timer

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned when a command name is not one of the five
// user commands.
var ErrUnknownCommand = errors.New("unknown timer command")

// CommandType names a user-triggered transition.
type CommandType string

const (
	CommandStart      CommandType = "start"
	CommandPause      CommandType = "pause"
	CommandReset      CommandType = "reset"
	CommandAddTime    CommandType = "addTime"
	CommandRemoveTime CommandType = "removeTime"
)

// Command is a user request as it arrives from the presentation layer.
type Command struct {
	Type    CommandType `json:"command"`
	Minutes int         `json:"minutes,omitempty"`
}

// Execute applies a command to the store and returns the resulting state and
// whether it changed.
func (s *Store) Execute(cmd Command) (State, bool, error) {
	var (
		st      State
		changed bool
	)

	switch cmd.Type {
	case CommandStart:
		st, changed = s.Start()
	case CommandPause:
		st, changed = s.Pause()
	case CommandReset:
		minutes := cmd.Minutes
		if minutes == 0 {
			minutes = DefaultMinutes
		}
		st, changed = s.Reset(minutes)
	case CommandAddTime:
		st, changed = s.AddTime(cmd.Minutes)
	case CommandRemoveTime:
		st, changed = s.RemoveTime(cmd.Minutes)
	default:
		return State{}, false, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}

	return st, changed, nil
}
