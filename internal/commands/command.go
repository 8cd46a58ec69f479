package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is an operation an edge controller knows how to execute.
type Action string

const (
	ActionRestart         Action = "RESTART"
	ActionPullUpdate      Action = "PULL_UPDATE"
	ActionDownloadModel   Action = "DOWNLOAD_MODEL"
	ActionReadSensor      Action = "READ_SENSOR"
	ActionTriggerActuator Action = "TRIGGER_ACTUATOR"
	ActionRunInference    Action = "RUN_INFERENCE"
	ActionShellExec       Action = "SHELL_EXEC"
)

var ErrUnknownAction = errors.New("unknown command action")

var supportedActions = map[Action]bool{
	ActionRestart:         true,
	ActionPullUpdate:      true,
	ActionDownloadModel:   true,
	ActionReadSensor:      true,
	ActionTriggerActuator: true,
	ActionRunInference:    true,
	ActionShellExec:       true,
}

// ParseAction validates an action string from an operator request.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !supportedActions[a] {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Command is a single operator-issued instruction waiting for a device.
// Delivery is at most once: the batch is handed out on the next heartbeat
// and never re-sent.
type Command struct {
	ID         uuid.UUID      `json:"id"`
	Action     Action         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// New builds a command with a fresh id and enqueue timestamp.
func New(action Action, payload map[string]any) Command {
	return Command{
		ID:         uuid.New(),
		Action:     action,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}
