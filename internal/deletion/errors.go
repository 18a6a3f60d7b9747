package deletion

import "fmt"

// Code identifies a policy outcome. Policy outcomes are expected and never
// retried; the caller fixes the request and tries again.
type Code string

const (
	CodeLimitExceeded        Code = "limit_exceeded"
	CodeConfirmationRequired Code = "confirmation_required"
	CodeInvalidTicket        Code = "invalid_ticket"
	CodeExpiredTicket        Code = "expired_ticket"
	CodeReadOnly             Code = "read_only"
	CodeInvalidArgument      Code = "invalid_argument"
)

// PolicyError is a structured rejection. errors.Is matches on Code, so
// errors.Is(err, ErrExpiredTicket) holds for any expired-ticket rejection.
type PolicyError struct {
	Code    Code
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PolicyError) Is(target error) bool {
	t, ok := target.(*PolicyError)
	return ok && t.Code == e.Code
}

var (
	ErrLimitExceeded        = &PolicyError{Code: CodeLimitExceeded, Message: "deletion limit exceeded"}
	ErrConfirmationRequired = &PolicyError{Code: CodeConfirmationRequired, Message: "confirmation required"}
	ErrInvalidTicket        = &PolicyError{Code: CodeInvalidTicket, Message: "invalid confirmation token"}
	ErrExpiredTicket        = &PolicyError{Code: CodeExpiredTicket, Message: "confirmation token expired"}
	ErrReadOnly             = &PolicyError{Code: CodeReadOnly, Message: "server is read-only"}
	ErrInvalidArgument      = &PolicyError{Code: CodeInvalidArgument, Message: "invalid argument"}
)

func policyf(code Code, format string, args ...any) *PolicyError {
	return &PolicyError{Code: code, Message: fmt.Sprintf(format, args...)}
}
