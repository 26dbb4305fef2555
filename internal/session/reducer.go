package session

// Reduce applies a to s and returns the next state. s is never modified: changed
// instances are replaced by fresh values and every other instance keeps its pointer.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetSetting:
		return updateInstance(s, a.InstanceID, func(inst *Instance) {
			if a.Settings == nil {
				inst.Settings = nil
				return
			}
			settings := a.Settings.Clone()
			inst.Settings = &settings
		})

	case SetResult:
		return updateInstance(s, a.InstanceID, func(inst *Instance) {
			inst.Result = a.Result
		})

	case SetStatus:
		return updateInstance(s, a.InstanceID, func(inst *Instance) {
			inst.Status = a.Status
			if a.Status != StatusTested {
				inst.Result = nil
			}
		})

	case SetCurrentInstance:
		if _, ok := s.Instances[a.ID]; !ok {
			return s
		}
		next := s
		next.CurrentInstanceID = a.ID
		return next

	case AddNewInstance:
		id := a.ID
		if id == "" {
			id = newID()
		}
		if _, exists := s.Instances[id]; exists {
			return s
		}
		lastOrder := 0
		if n := len(s.InstanceIDs); n > 0 {
			if last := s.Instances[s.InstanceIDs[n-1]]; last != nil {
				lastOrder = last.Order
			}
		}
		next := s
		next.InstanceIDs = append(append(make([]string, 0, len(s.InstanceIDs)+1), s.InstanceIDs...), id)
		next.Instances = copyInstances(s.Instances)
		next.Instances[id] = &Instance{Order: lastOrder + 1, Status: StatusSetting}
		next.CurrentInstanceID = id
		return next

	case RemoveInstance:
		if _, ok := s.Instances[a.ID]; !ok {
			return s
		}
		next := s
		// The last tab is reset instead of removed so there is always one to show.
		if len(s.InstanceIDs) == 1 {
			next.Instances = copyInstances(s.Instances)
			next.Instances[a.ID] = &Instance{Order: 1, Status: StatusSetting}
			next.CurrentInstanceID = a.ID
			next.IsFocusBacktest = false
			return next
		}
		ids := make([]string, 0, len(s.InstanceIDs)-1)
		for _, id := range s.InstanceIDs {
			if id != a.ID {
				ids = append(ids, id)
			}
		}
		next.InstanceIDs = ids
		next.Instances = copyInstances(s.Instances)
		delete(next.Instances, a.ID)
		next.CurrentInstanceID = ids[0]
		return next

	case ToggleFocusBacktest:
		next := s
		if a.Value != nil {
			next.IsFocusBacktest = *a.Value
		} else {
			next.IsFocusBacktest = !s.IsFocusBacktest
		}
		return next
	}
	return s
}

func updateInstance(s State, id string, fn func(inst *Instance)) State {
	if id == "" {
		id = s.CurrentInstanceID
	}
	cur, ok := s.Instances[id]
	if !ok || cur == nil {
		return s
	}
	updated := *cur
	fn(&updated)
	next := s
	next.Instances = copyInstances(s.Instances)
	next.Instances[id] = &updated
	return next
}

func copyInstances(in map[string]*Instance) map[string]*Instance {
	out := make(map[string]*Instance, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
