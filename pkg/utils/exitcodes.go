package utils

const (
	// standard exit codes
	ExitCodeSuccess = iota
	ExitCodeError   = 1
)
