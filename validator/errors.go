package validator

import (
	"errors"
	"fmt"
)

// ContractError reports a call that violates the validator's calling
// contract. It means the protocol engine is broken, not that the
// incoming request is bad: these must never be translated into a normal
// OAuth error response.
type ContractError struct {
	// Op is the validator operation that was called, e.g. "ValidateGrantType".
	Op string

	// Reason describes the contract violation.
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func newContractError(op, format string, args ...any) *ContractError {
	return &ContractError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsContractError reports whether err is (or wraps) a ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
