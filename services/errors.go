package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error kinds group the specific codes for callers that only care about class.
const (
	KindInvalidInput           = "InvalidInput"
	KindNotFound               = "NotFound"
	KindConflict               = "Conflict"
	KindCapacityExceeded       = "CapacityExceeded"
	KindStateViolation         = "StateViolation"
	KindAccessDenied           = "AccessDenied"
	KindUpstreamFailure        = "UpstreamFailure"
	KindCompensationFailure    = "CompensationFailure"
	KindConcurrentModification = "ConcurrentModification"
)

// Specific error codes surfaced to callers in the result envelope.
const (
	CodeInvalidTag                 = "InvalidTag"
	CodeTagTaken                   = "TagTaken"
	CodeUserAlreadyInClan          = "UserAlreadyInClan"
	CodeAlreadyMember              = "AlreadyMember"
	CodeClanFull                   = "ClanFull"
	CodeBanned                     = "Banned"
	CodeNotMember                  = "NotMember"
	CodeCannotRemoveLastLeader     = "CannotRemoveLastLeader"
	CodeAlreadyCaptain             = "AlreadyCaptain"
	CodeNotCaptain                 = "NotCaptain"
	CodeCannotRevokeLeader         = "CannotRevokeLeader"
	CodeMaxMembersTooLow           = "MaxMembersTooLow"
	CodeInvalidMaxMembers          = "InvalidMaxMembers"
	CodeUserUpdateFailed           = "UserUpdateFailed"
	CodeInvalidMaxParticipants     = "InvalidMaxParticipants"
	CodeMaxParticipantsTooLow      = "MaxParticipantsTooLow"
	CodeInvalidStartDate           = "InvalidStartDate"
	CodeInvalidDeadline            = "InvalidRegistrationDeadline"
	CodeRegistrationClosed         = "RegistrationClosed"
	CodeAlreadyParticipating       = "AlreadyParticipating"
	CodeTournamentFull             = "TournamentFull"
	CodeRegistrationDeadlinePassed = "RegistrationDeadlinePassed"
	CodeNotParticipating           = "NotParticipating"
	CodeTournamentStarted          = "TournamentStarted"
	CodeTournamentActive           = "TournamentActive"
	CodeInvalidStatusTransition    = "InvalidStatusTransition"
	CodeNotEnoughParticipants      = "NotEnoughParticipants"
	CodeAlreadyBanned              = "AlreadyBanned"
	CodeNotBanned                  = "NotBanned"
	CodeInvalidRole                = "InvalidRole"
	CodeInvalidWinner              = "InvalidWinner"
	CodeUserNotFound               = "UserNotFound"
	CodeClanNotFound               = "ClanNotFound"
	CodeTournamentNotFound         = "TournamentNotFound"
	CodeMatchNotFound              = "MatchNotFound"
	CodeMissingField               = "MissingField"
	CodeAccessDenied               = "AccessDenied"
	CodeStoreError                 = "StoreError"
	CodeConcurrentModification     = "ConcurrentModification"
	CodeCompensationFailed         = "CompensationFailed"
)

// ServiceError is the structured error returned across the service boundary.
// Handlers translate it into the uniform {success,error,code} envelope; no
// operation panics or leaks a raw store error to the caller.
type ServiceError struct {
	Kind    string
	Code    string
	Message string
	Status  int // HTTP status
}

func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}

func errInvalidInput(code, msg string) *ServiceError {
	return &ServiceError{Kind: KindInvalidInput, Code: code, Message: msg, Status: fiber.StatusBadRequest}
}

func errNotFound(code, msg string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Code: code, Message: msg, Status: fiber.StatusNotFound}
}

func errConflict(code, msg string) *ServiceError {
	return &ServiceError{Kind: KindConflict, Code: code, Message: msg, Status: fiber.StatusConflict}
}

func errCapacity(code, msg string) *ServiceError {
	return &ServiceError{Kind: KindCapacityExceeded, Code: code, Message: msg, Status: fiber.StatusConflict}
}

func errState(code, msg string) *ServiceError {
	return &ServiceError{Kind: KindStateViolation, Code: code, Message: msg, Status: fiber.StatusConflict}
}

func errAccessDenied(msg string) *ServiceError {
	return &ServiceError{Kind: KindAccessDenied, Code: CodeAccessDenied, Message: msg, Status: fiber.StatusForbidden}
}

func errUpstream(code, msg string) *ServiceError {
	return &ServiceError{Kind: KindUpstreamFailure, Code: code, Message: msg, Status: fiber.StatusBadGateway}
}

// errCompensation marks a rollback that itself failed. It carries the ids
// involved so the inconsistency can be reconciled manually; it must never be
// reported as a plain success or a generic upstream failure.
func errCompensation(msg string) *ServiceError {
	return &ServiceError{Kind: KindCompensationFailure, Code: CodeCompensationFailed, Message: msg, Status: fiber.StatusInternalServerError}
}

func errConcurrent(msg string) *ServiceError {
	return &ServiceError{Kind: KindConcurrentModification, Code: CodeConcurrentModification, Message: msg, Status: fiber.StatusConflict}
}

// AsServiceError normalizes any error to a ServiceError, wrapping unknown
// errors as an upstream store failure.
func AsServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return errUpstream(CodeStoreError, "store operation failed")
}
