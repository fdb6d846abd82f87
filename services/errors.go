package services

import "errors"

// Shared sentinel errors surfaced by the service layer and mapped to HTTP
// status codes by the handlers.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules
	ErrValidationFailed    = errors.New("validation failed")
	ErrPasswordTooShort    = errors.New("password is too short")
	ErrNicknameRequired    = errors.New("nickname is required")
	ErrNotEnoughEntrants   = errors.New("not enough entrants to build a bracket")
	ErrBracketAlreadyBuilt = errors.New("bracket already built for this format")

	// Reconciliation protocol
	ErrAlreadyCompleted    = errors.New("match is already completed")
	ErrMatchNotReady       = errors.New("match does not have both players assigned yet")
	ErrReportConflict      = errors.New("match was updated concurrently, please retry")
	ErrAdvancementConflict = errors.New("bracket advancement hit a concurrent update, manual check required")
	ErrNotBracketMatch     = errors.New("match does not belong to a bracket")
	ErrMatchNotCompleted   = errors.New("match is not completed")
	ErrMatchNotDisputed    = errors.New("match is not disputed")

	// Authentication and authorization
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")

	// Entity-specific not-found wrappers
	ErrMatchNotFound         = errors.New("match not found")
	ErrPlayerNotFound        = errors.New("player not found")
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrQualificationNotFound = errors.New("qualification not found")
	ErrTimeTrialNotFound     = errors.New("time trial entry not found")

	// Enrollment
	ErrAlreadyEnrolled = errors.New("player is already enrolled in this qualification")

	// Time attack
	ErrTimeTrialEliminated = errors.New("time trial entry is eliminated")
	ErrUnknownCourse       = errors.New("course is not part of this tournament")
	ErrInvalidTimeFormat   = errors.New("time must be formatted as M:SS.mmm")
)
