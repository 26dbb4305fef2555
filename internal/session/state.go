// Package session holds the per-session backtest instance state machine.
package session

import (
	"copin/types"
	"errors"
	"fmt"
)

type Status string

const (
	StatusSetting Status = "setting"
	StatusTesting Status = "testing"
	StatusTested  Status = "tested"
)

func (s Status) Valid() bool {
	return s == StatusSetting || s == StatusTesting || s == StatusTested
}

// Instance is one backtest tab. Values reachable from an Instance are never mutated
// after it is stored in a State.
type Instance struct {
	Order    int                        `json:"order"`
	Status   Status                     `json:"status"`
	Settings *types.RequestBackTestData `json:"settings"`
	Result   *types.BackTestResultData  `json:"result"`
}

type State struct {
	IsFocusBacktest   bool                 `json:"isFocusBacktest"`
	CurrentInstanceID string               `json:"currentInstanceId"`
	InstanceIDs       []string             `json:"instanceIds"`
	Instances         map[string]*Instance `json:"instancesMapping"`
}

var ErrBrokenInvariant = errors.New("session state invariant broken")

// NewState returns a state with a single tab. A non-nil inbound request means a
// submission for it is already in flight.
func NewState(inbound *types.RequestBackTestData) State {
	id := newID()
	inst := &Instance{Order: 1, Status: StatusSetting}
	if inbound != nil {
		settings := inbound.Clone()
		inst.Status = StatusTesting
		inst.Settings = &settings
	}
	return State{
		CurrentInstanceID: id,
		InstanceIDs:       []string{id},
		Instances:         map[string]*Instance{id: inst},
	}
}

func (s State) Current() *Instance {
	return s.Instances[s.CurrentInstanceID]
}

func (s State) Instance(id string) (*Instance, bool) {
	inst, ok := s.Instances[id]
	return inst, ok
}

// Invariant checks that ids and mapping agree and that the current id is live.
func Invariant(s State) error {
	if len(s.InstanceIDs) == 0 {
		return fmt.Errorf("no instances: %w", ErrBrokenInvariant)
	}
	if len(s.InstanceIDs) != len(s.Instances) {
		return fmt.Errorf("%d ids for %d instances: %w", len(s.InstanceIDs), len(s.Instances), ErrBrokenInvariant)
	}
	seen := make(map[string]bool, len(s.InstanceIDs))
	for _, id := range s.InstanceIDs {
		if seen[id] {
			return fmt.Errorf("duplicate id %s: %w", id, ErrBrokenInvariant)
		}
		seen[id] = true
		inst, ok := s.Instances[id]
		if !ok || inst == nil {
			return fmt.Errorf("id %s has no instance: %w", id, ErrBrokenInvariant)
		}
	}
	if !seen[s.CurrentInstanceID] {
		return fmt.Errorf("current id %s not in ids: %w", s.CurrentInstanceID, ErrBrokenInvariant)
	}
	return nil
}
