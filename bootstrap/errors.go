package bootstrap

import (
	"fmt"
)

// State is where a run ended.
type State string

const (
	HandedOff               State = "HANDED_OFF"
	AbortedReadiness        State = "ABORTED_READINESS"
	AbortedConnectivity     State = "ABORTED_CONNECTIVITY"
	AbortedSchemaCreate     State = "ABORTED_SCHEMA_CREATE"
	AbortedOrganizationSeed State = "ABORTED_ORGANIZATION_SEED"
)

// ExitCode is the process status the entrypoint reports for s. Code 1 is
// left to configuration and usage errors.
func (s State) ExitCode() int {
	switch s {
	case HandedOff:
		return 0
	case AbortedReadiness:
		return 2
	case AbortedConnectivity:
		return 3
	case AbortedSchemaCreate:
		return 4
	case AbortedOrganizationSeed:
		return 5
	default:
		return 1
	}
}

// Step names one stage of the sequence. They double as metric labels.
type Step string

const (
	StepReadiness        Step = "readiness_wait"
	StepConnectivity     Step = "connectivity_probe"
	StepSchemaReset      Step = "schema_reset"
	StepSchemaCreate     Step = "schema_create"
	StepOrganizationSeed Step = "organization_seed"
	StepRoleSeed         Step = "role_seed"
	StepAccountSeed      Step = "account_seed"
	StepCommit           Step = "seed_commit"
)

// AbortError is returned by Run when a fatal step fails.
type AbortError struct {
	State State
	Step  Step
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.State, e.Step, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// StepWarning records a failure the sequence rolled back and moved past.
type StepWarning struct {
	Step Step
	Err  error
}

func (w StepWarning) String() string {
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}
