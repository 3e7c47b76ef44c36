package install

import "github.com/The-Noona-Project/noona-warden/pkg/types"

// stepServices is the fixed mapping from wizard steps to the services
// they cover. Verification is synthetic and maps to no services.
var stepServices = map[types.StepKey][]string{
	types.StepFoundation: {"noona-cache", "noona-database", "noona-store", "noona-ui", "noona-api"},
	types.StepPortal:     {"noona-portal"},
	types.StepRaven:      {"noona-raven"},
}

// StepForService returns the wizard step a service belongs to
func StepForService(name string) (types.StepKey, bool) {
	for _, key := range types.StepOrder {
		for _, svc := range stepServices[key] {
			if svc == name {
				return key, true
			}
		}
	}
	return "", false
}

// participatingSteps returns the wizard steps with at least one service
// in the given closure
func participatingSteps(closure []string) map[types.StepKey]bool {
	out := make(map[types.StepKey]bool)
	for _, name := range closure {
		if key, ok := StepForService(name); ok {
			out[key] = true
		}
	}
	return out
}

// aggregateStep folds the install states of a step's closure members
// into one step status: any error wins, then all-installed, then
// any-installing, then pending
func aggregateStep(key types.StepKey, closure []string, states map[string]types.InstallState) (types.StepStatus, bool) {
	var members []string
	for _, svc := range stepServices[key] {
		for _, name := range closure {
			if name == svc {
				members = append(members, name)
			}
		}
	}
	if len(members) == 0 {
		return "", false
	}

	allInstalled := true
	anyInstalling := false
	for _, name := range members {
		switch states[name] {
		case types.InstallErrored:
			return types.StepError, true
		case types.InstallInstalled:
		case types.InstallInstalling:
			anyInstalling = true
			allInstalled = false
		default:
			allInstalled = false
		}
	}
	switch {
	case allInstalled:
		return types.StepComplete, true
	case anyInstalling:
		return types.StepInProgress, true
	}
	return types.StepPending, true
}
