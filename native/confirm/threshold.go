package confirm

// Met reports whether the confirmation threshold has been reached.
//
// A Custom requirement is compared uncapped: Custom(k) with k greater than the
// party count can never be met. Required clamps the same requirement to the
// party count, so Met and Remaining can disagree for oversized Custom
// policies. Both behaviours are kept deliberately; reconciling them silently
// would change consensus semantics for existing policies.
func Met(t Threshold, confirmations, totalParties uint32) bool {
	switch t.Mode {
	case ThresholdAll:
		return confirmations >= totalParties
	case ThresholdMajority:
		return confirmations >= majority(totalParties)
	case ThresholdCustom:
		return confirmations >= t.Required
	default:
		return false
	}
}

// Required returns the number of confirmations the policy demands for the
// given party count. Custom requirements are clamped to the party count and a
// majority is never less than one.
func Required(t Threshold, totalParties uint32) uint32 {
	switch t.Mode {
	case ThresholdAll:
		return totalParties
	case ThresholdMajority:
		required := majority(totalParties)
		if required < 1 {
			return 1
		}
		return required
	case ThresholdCustom:
		if t.Required > totalParties {
			return totalParties
		}
		return t.Required
	default:
		return 0
	}
}

// Remaining returns how many further confirmations are needed before the
// clamped requirement is satisfied, never going below zero.
func Remaining(t Threshold, confirmations, totalParties uint32) uint32 {
	required := Required(t, totalParties)
	if confirmations >= required {
		return 0
	}
	return required - confirmations
}

// majority is ceil(n/2) in integer arithmetic.
func majority(totalParties uint32) uint32 {
	return (totalParties + 1) / 2
}
