// Package assist implements the selection tool menu: rewrite, expand or
// summarize the selected text through a writing assistant.
package assist

import (
	"context"
	"fmt"
)

// Action is a writing-assistant operation on the selection.
type Action string

const (
	Rewrite   Action = "rewrite"
	Expand    Action = "expand"
	Summarize Action = "summarize"
)

// Actions lists the menu entries in display order.
var Actions = []Action{Rewrite, Expand, Summarize}

var instructions = map[Action]string{
	Rewrite:   "Rewrite the text below to improve clarity and flow. Keep the meaning, tone and language of the original. Return only the rewritten text.",
	Expand:    "Expand the text below with more detail, sensory description and depth while keeping its voice and language. Return only the expanded text.",
	Summarize: "Summarize the text below in a few sentences, in the same language. Return only the summary.",
}

var labels = map[Action]string{
	Rewrite:   "Rewrite",
	Expand:    "Expand",
	Summarize: "Summarize",
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := instructions[a]; !ok {
		return "", fmt.Errorf("assist: unknown action %q", s)
	}
	return a, nil
}

// Instruction returns the prompt sent with the action.
func (a Action) Instruction() string { return instructions[a] }

// Label returns the menu label.
func (a Action) Label() string { return labels[a] }

// ActionRequest is sent to the writing assistant.
type ActionRequest struct {
	Text        string   `json:"text"`
	Action      Action   `json:"action"`
	Instruction string   `json:"instruction"`
	FocusAreas  []string `json:"focusAreas,omitempty"`
}

// Service runs writing-assistant actions.
type Service interface {
	RunAction(ctx context.Context, req ActionRequest) (string, error)
}
