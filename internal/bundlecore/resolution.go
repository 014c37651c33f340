package bundlecore

// RawResolution is the numeric verdict reported by an inclusion watcher.
type RawResolution int

const (
	RawBundleIncluded              RawResolution = 0
	RawBlockPassedWithoutInclusion RawResolution = 1
	RawAccountNonceTooHigh         RawResolution = 2
)

// ResolutionOutcome is the terminal state of one submission attempt.
type ResolutionOutcome int

const (
	Unknown ResolutionOutcome = iota
	Included
	NotIncludedThisBlock
	AccountNonceTooHigh
)

func (o ResolutionOutcome) String() string {
	switch o {
	case Included:
		return "Included"
	case NotIncludedThisBlock:
		return "NotIncludedThisBlock"
	case AccountNonceTooHigh:
		return "AccountNonceTooHigh"
	default:
		return "Unknown"
	}
}

// Classify maps a watcher code to an outcome; unrecognised codes are Unknown.
func Classify(raw RawResolution) ResolutionOutcome {
	switch raw {
	case RawBundleIncluded:
		return Included
	case RawBlockPassedWithoutInclusion:
		return NotIncludedThisBlock
	case RawAccountNonceTooHigh:
		return AccountNonceTooHigh
	default:
		return Unknown
	}
}

// IsRetryable is true only for a plain miss. AccountNonceTooHigh means the
// nonce is already spent, so resubmitting can only hurt.
func IsRetryable(o ResolutionOutcome) bool {
	return o == NotIncludedThisBlock
}

// ShouldRetry applies IsRetryable together with the attempt bound.
func ShouldRetry(o ResolutionOutcome, attemptsMade, maxAttempts int) bool {
	return IsRetryable(o) && attemptsMade < maxAttempts
}

// wantsStats reports whether a final outcome deserves a diagnostics fetch.
func wantsStats(o ResolutionOutcome) bool {
	return o != Included && o != AccountNonceTooHigh
}
