package shell

import (
	"errors"
	"fmt"
	"strings"
)

type (
	CommandKind int

	Command struct {
		Kind CommandKind
		Arg  string
	}
)

const (
	CmdNone CommandKind = iota
	CmdLat
	CmdLng
	CmdCategory
	CmdUser
	CmdMatch
	CmdTopic
	CmdHelp
	CmdQuit
)

var ErrUnknownCommand = errors.New("unknown command")

const helpText = "commands: lat <v> | lng <v> | category <c> | user <id> | match | topic <t> | help | quit"

// ParseCommand reads one operator input line. A blank line is CmdNone.
// "topic" with no argument clears the tester panel
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdNone}, nil
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "lat":
		return withArg(CmdLat, name, arg)
	case "lng", "lon":
		return withArg(CmdLng, name, arg)
	case "category", "cat":
		return withArg(CmdCategory, name, arg)
	case "user":
		return Command{Kind: CmdUser, Arg: arg}, nil
	case "match", "m":
		return Command{Kind: CmdMatch}, nil
	case "topic", "t":
		return Command{Kind: CmdTopic, Arg: arg}, nil
	case "help", "?":
		return Command{Kind: CmdHelp}, nil
	case "quit", "exit", "q":
		return Command{Kind: CmdQuit}, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

func withArg(kind CommandKind, name, arg string) (Command, error) {
	if arg == "" {
		return Command{}, fmt.Errorf("%s needs a value", name)
	}
	return Command{Kind: kind, Arg: arg}, nil
}
