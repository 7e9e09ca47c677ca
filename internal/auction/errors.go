package auction

import "errors"

// Kind classifies engine failures. Every failure aborts the whole call; the
// kind tells the caller whether waiting, fixing input, or giving up is right.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPhaseViolation: attempted outside its phase. Retry later.
	KindPhaseViolation
	// KindAuthorization: caller lacks the required role.
	KindAuthorization
	// KindValidation: malformed or mismatching input. Never retried.
	KindValidation
	// KindStateConflict: already revealed/settled/slashed. A lost race.
	KindStateConflict
	// KindInsufficientFunds: deposit or attached value mismatch.
	KindInsufficientFunds
	// KindNotFound: unknown batch or commitment.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPhaseViolation:
		return "phase_violation"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified engine error. Instances are sentinels compared with
// errors.Is; wrap them with fmt.Errorf to add context.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrPhaseViolation     = newError(KindPhaseViolation, "auction: operation not allowed in current phase")
	ErrWrongBatch         = newError(KindPhaseViolation, "auction: commitment belongs to a different batch")
	ErrRevealWindowClosed = newError(KindPhaseViolation, "auction: reveal window is closed")
	ErrRevealWindowOpen   = newError(KindPhaseViolation, "auction: reveal window still open")

	ErrUnauthorized   = newError(KindAuthorization, "auction: caller not authorized")
	ErrNotCommitOwner = newError(KindAuthorization, "auction: caller does not own commitment")

	ErrInvalidCommitment   = newError(KindValidation, "auction: invalid commitment hash")
	ErrDuplicateCommitment = newError(KindValidation, "auction: commitment already registered in batch")
	ErrInvalidReveal       = newError(KindValidation, "auction: reveal does not match commitment")
	ErrInvalidOrder        = newError(KindValidation, "auction: invalid order parameters")
	ErrInvalidParams       = newError(KindValidation, "auction: invalid parameters")

	ErrAlreadyRevealed   = newError(KindStateConflict, "auction: commitment already revealed")
	ErrCommitmentSlashed = newError(KindStateConflict, "auction: commitment was slashed")
	ErrAlreadySettled    = newError(KindStateConflict, "auction: batch already settled")
	ErrNotSlashable      = newError(KindStateConflict, "auction: commitment not slashable")
	ErrNotRefundable     = newError(KindStateConflict, "auction: deposit not refundable")
	ErrBatchFull         = newError(KindStateConflict, "auction: batch capacity reached")

	ErrInsufficientDeposit = newError(KindInsufficientFunds, "auction: deposit below minimum")
	ErrPriorityBidMismatch = newError(KindInsufficientFunds, "auction: attached value does not match priority bid")

	ErrBatchNotFound      = newError(KindNotFound, "auction: batch not found")
	ErrCommitmentNotFound = newError(KindNotFound, "auction: commitment not found")
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
