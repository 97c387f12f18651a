package spawn

// KilledExitCode is reported when the channel closed without an exit status.
const KilledExitCode = -1

// Result is the normalized outcome of a spawn.
type Result struct {
	// ExitCode is the remote exit status, or KilledExitCode when Killed.
	ExitCode int

	// Killed is true when no exit status arrived before the channel closed.
	Killed bool
}

// Exited returns a result carrying an exit status.
func Exited(code int) Result {
	return Result{ExitCode: code}
}

// KilledResult returns the result for a channel that closed without an exit status.
func KilledResult() Result {
	return Result{ExitCode: KilledExitCode, Killed: true}
}

// resolve turns the post-loop state into a result. First match wins:
// read timeout, then execution timeout, then the captured status, then killed.
func resolve(command string, status *int, timeout, readTimeout *Policy) (Result, error) {
	switch {
	case readTimeout.Happened():
		return Result{}, &ReadTimeoutError{Command: command, Duration: readTimeout.Value()}
	case timeout.Happened():
		return Result{}, &TimeoutError{Command: command, Duration: timeout.Value()}
	case status != nil:
		return Exited(*status), nil
	default:
		return KilledResult(), nil
	}
}
