package main

// Exit codes per the CLI's external contract: scripts and operators
// driving this binary distinguish these causes without parsing stderr.
const (
	exitSuccess        = 0
	exitUsageError     = 1
	exitConfigError    = 2
	exitJoinFailure    = 3
	exitDataCorruption = 4
)
