// Package input decodes observer commands and filters them before they reach a shot
// session.
package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned for command types the session does not understand.
var ErrUnknownCommand = errors.New("unknown command")

// CommandType names an action a player can take between shots.
type CommandType string

const (
	CommandAimLeft   CommandType = "aim_left"
	CommandAimRight  CommandType = "aim_right"
	CommandAimUp     CommandType = "aim_up"
	CommandAimDown   CommandType = "aim_down"
	CommandPowerUp   CommandType = "power_up"
	CommandPowerDown CommandType = "power_down"
	CommandHit       CommandType = "hit"
	CommandReplay    CommandType = "replay"
)

var knownCommands = map[CommandType]struct{}{
	CommandAimLeft:   {},
	CommandAimRight:  {},
	CommandAimUp:     {},
	CommandAimDown:   {},
	CommandPowerUp:   {},
	CommandPowerDown: {},
	CommandHit:       {},
	CommandReplay:    {},
}

// Command is a single player action. Fast multiplies the azimuth step for aim_left and
// aim_right.
type Command struct {
	Type     CommandType `json:"type"`
	Fast     bool        `json:"fast,omitempty"`
	Sequence uint64      `json:"seq,omitempty"`
}

// Validate checks the command type.
func (c Command) Validate() error {
	if _, ok := knownCommands[c.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}
	if c.Fast && c.Type != CommandAimLeft && c.Type != CommandAimRight {
		return fmt.Errorf("fast modifier only applies to azimuth commands, got %q", c.Type)
	}
	return nil
}

// Decode parses and validates a JSON command. Type names are case-insensitive.
func Decode(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	cmd.Type = CommandType(strings.ToLower(strings.TrimSpace(string(cmd.Type))))
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
