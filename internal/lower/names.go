package lower

// Generated unit names are pure functions of the cycle and unit names.

// HydrateName is the unit that restores the previous iteration's state.
func HydrateName(cycle string) string { return cycle + "_hydrate" }

// BodyName is the lowered copy of body unit inside cycle.
func BodyName(cycle, unit string) string { return cycle + "_body_" + unit }

// DecideName is the unit that evaluates termination.
func DecideName(cycle string) string { return cycle + "_decide" }

// DispatchName is the unit that starts the next iteration.
func DispatchName(cycle string) string { return cycle + "_dispatch" }

// PhaseNames lists every name lowering cycle would generate, in output
// order.
func PhaseNames(cycle string, body []string) []string {
	names := make([]string, 0, len(body)+3)
	names = append(names, HydrateName(cycle))
	for _, b := range body {
		names = append(names, BodyName(cycle, b))
	}
	return append(names, DecideName(cycle), DispatchName(cycle))
}

// DefaultKey is the concurrency key substituted when a cycle declares none.
func DefaultKey(fileStem, cycle string) string {
	return fileStem + "-" + cycle
}

// StateDir is where the phases of cycle keep the state file on the runner.
func StateDir(cycle string) string {
	return ".workpipe/" + cycle
}

// CaptureOutput is the job output every body member adds.
const CaptureOutput = "wp_capture"
