package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for a PIN.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUnknownQuestionKind indicates an unregistered question type. It is a
	// programming error when raised from the registry lookup path.
	ErrUnknownQuestionKind = errors.New("unknown question kind")
	// ErrWrongPhase is returned when an operation is not legal in the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
	// ErrAlreadyAnswered rejects duplicate submissions for one question.
	ErrAlreadyAnswered = errors.New("player already answered this question")
	// ErrAnswerTooLate rejects submissions past the question deadline.
	ErrAnswerTooLate = errors.New("answer received after deadline")
	// ErrInvalidAnswer rejects submissions whose shape does not fit the kind.
	ErrInvalidAnswer = errors.New("answer has wrong shape for question kind")
	// ErrPowerUpUnavailable rejects power-up use that is disabled, consumed,
	// or invalid for the current question.
	ErrPowerUpUnavailable = errors.New("power-up not available")
	// ErrInvalidPlayerName rejects names that are empty, too long, or carry
	// disallowed characters.
	ErrInvalidPlayerName = errors.New("invalid player name")
	// ErrFolderNotFound indicates a missing folder node.
	ErrFolderNotFound = errors.New("folder not found")
	// ErrFolderNotEmpty refuses deletion of folders with children.
	ErrFolderNotEmpty = errors.New("folder is not empty")
	// ErrFolderCycle refuses moving a folder into itself or a descendant.
	ErrFolderCycle = errors.New("cannot move folder into its own subtree")
	// ErrUnauthorized indicates a missing/expired unlock token or wrong password.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates too many unlock attempts from one source.
	ErrRateLimited = errors.New("too many attempts, retry later")
)
