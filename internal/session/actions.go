package session

import (
	"copin/types"

	"github.com/google/uuid"
)

// Action is one of the transitions Reduce understands.
type Action interface {
	action()
}

// SetSetting stores settings on InstanceID, or on the current instance when empty.
type SetSetting struct {
	InstanceID string
	Settings   *types.RequestBackTestData
}

type SetResult struct {
	InstanceID string
	Result     *types.BackTestResultData
}

type SetStatus struct {
	InstanceID string
	Status     Status
}

type SetCurrentInstance struct {
	ID string
}

// AddNewInstance appends a tab and focuses it. ID is generated when empty.
type AddNewInstance struct {
	ID string
}

type RemoveInstance struct {
	ID string
}

// ToggleFocusBacktest sets the focus flag to Value, or negates it when Value is nil.
type ToggleFocusBacktest struct {
	Value *bool
}

func (SetSetting) action()          {}
func (SetResult) action()           {}
func (SetStatus) action()           {}
func (SetCurrentInstance) action()  {}
func (AddNewInstance) action()      {}
func (RemoveInstance) action()      {}
func (ToggleFocusBacktest) action() {}

func newID() string {
	return uuid.New().String()
}
