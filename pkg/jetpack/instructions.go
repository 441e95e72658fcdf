package jetpack

// Instruction step names rendered by the manual install screen.
const (
	StepInstallJetpack              = "installJetpack"
	StepActivateJetpackAfterInstall = "activateJetpackAfterInstall"
	StepConnectJetpackAfterInstall  = "connectJetpackAfterInstall"
	StepActivateJetpack             = "activateJetpack"
	StepConnectJetpack              = "connectJetpack"
)

// Instructions describes the manual steps shown for an install or activation status.
type Instructions struct {
	Steps []string `json:"steps"`
	// Action is the redirect the primary button triggers.
	Action RedirectKind `json:"action"`
}

// InstructionsFor returns the manual steps for notJetpack and notActiveJetpack.
// Other statuses have no instructions and report false.
func InstructionsFor(status Status) (Instructions, bool) {
	switch status {
	case StatusNotJetpack:
		return Instructions{
			Steps: []string{
				StepInstallJetpack,
				StepActivateJetpackAfterInstall,
				StepConnectJetpackAfterInstall,
			},
			Action: RedirectPluginInstall,
		}, true
	case StatusNotActiveJetpack:
		return Instructions{
			Steps:  []string{StepActivateJetpack, StepConnectJetpack},
			Action: RedirectPluginActivation,
		}, true
	default:
		return Instructions{}, false
	}
}

// Follow triggers the redirect behind the instructions' primary button.
func (f *Flow) Follow(instructions Instructions, siteURL string) bool {
	switch instructions.Action {
	case RedirectPluginInstall:
		return f.GoToPluginInstall(siteURL)
	case RedirectPluginActivation:
		return f.GoToPluginActivation(siteURL)
	default:
		return false
	}
}
