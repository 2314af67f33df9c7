package workflow

import "fmt"

// Policy is the configured response applied when alternate-account
// candidates are found. It is a closed set: the engine's transition switch
// is exhaustive over these values.
type Policy int

const (
	// PolicyReject revokes the account on the host platform immediately.
	PolicyReject Policy = iota
	// PolicyChallenge issues an out-of-band verification challenge.
	PolicyChallenge
	// PolicyEscalate notifies staff and waits for an explicit resolution.
	PolicyEscalate
	// PolicyApprove grants access despite the detection result.
	PolicyApprove
)

func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyChallenge:
		return "challenge"
	case PolicyEscalate:
		return "escalate"
	case PolicyApprove:
		return "approve"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "reject", "ban":
		return PolicyReject, nil
	case "challenge", "captcha":
		return PolicyChallenge, nil
	case "escalate", "manual":
		return PolicyEscalate, nil
	case "approve", "verify", "approve-anyway":
		return PolicyApprove, nil
	default:
		return 0, fmt.Errorf("unknown detection policy: %q", s)
	}
}
