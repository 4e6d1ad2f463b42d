package config

import "fmt"

// Action is the closed set of things a task can do to its directory.
type Action int

const (
	ActionList Action = iota + 1
	ActionAnalyze
	ActionBackup
	ActionClean
)

var actionNames = map[Action]string{
	ActionList:    "list",
	ActionAnalyze: "analyze",
	ActionBackup:  "backup",
	ActionClean:   "clean",
}

// ParseAction maps a lowercase action name to its Action.
func ParseAction(name string) (Action, error) {
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w %q (want list, analyze, backup or clean)", ErrUnknownAction, name)
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}
