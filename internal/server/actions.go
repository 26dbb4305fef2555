package server

import (
	"copin/internal/session"
	"copin/types"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errUnknownAction = errors.New("unknown action")

// actionRequest is the JSON form of a session.Action.
type actionRequest struct {
	Type       string                     `json:"type" binding:"required"`
	InstanceID string                     `json:"instanceId"`
	Status     session.Status             `json:"status"`
	Settings   *types.RequestBackTestData `json:"settings"`
	Result     *types.BackTestResultData  `json:"result"`
	Value      *bool                      `json:"value"`
}

func (a actionRequest) toAction() (session.Action, error) {
	switch a.Type {
	case "setSetting":
		return session.SetSetting{InstanceID: a.InstanceID, Settings: a.Settings}, nil
	case "setResult":
		return session.SetResult{InstanceID: a.InstanceID, Result: a.Result}, nil
	case "setStatus":
		if !a.Status.Valid() {
			return nil, fmt.Errorf("status %q: %w", a.Status, errUnknownAction)
		}
		return session.SetStatus{InstanceID: a.InstanceID, Status: a.Status}, nil
	case "setCurrentInstance":
		return session.SetCurrentInstance{ID: a.InstanceID}, nil
	case "addNewInstance":
		return session.AddNewInstance{ID: a.InstanceID}, nil
	case "removeInstance":
		return session.RemoveInstance{ID: a.InstanceID}, nil
	case "toggleFocusBacktest":
		return session.ToggleFocusBacktest{Value: a.Value}, nil
	}
	return nil, fmt.Errorf("%s: %w", a.Type, errUnknownAction)
}

func parseRawQuery(raw string) (url.Values, error) {
	return url.ParseQuery(strings.TrimPrefix(raw, "?"))
}
