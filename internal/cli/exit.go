package cli

import (
	"context"
	stderrors "errors"

	"github.com/matzehuels/gemmirror/pkg/errors"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitLocked      = 75 // EX_TEMPFAIL: another cycle holds the lock, retry later
	ExitInterrupted = 130
)

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, context.Canceled):
		return ExitInterrupted
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidConfig, errors.ErrCodeInvalidInput:
		return ExitConfig
	case errors.ErrCodeLocked:
		return ExitLocked
	}
	return ExitFailure
}
