package rating

import apierrors "github.com/aimerfeng/SkillExchange/internal/errors"

var (
	ErrInvalidInput       = apierrors.NewDomainError(apierrors.KindInvalidArgument, "invalid input")
	ErrInvalidStars       = apierrors.NewDomainError(apierrors.KindInvalidArgument, "stars must be between 1 and 5")
	ErrWrongRatee         = apierrors.NewDomainError(apierrors.KindInvalidArgument, "ratee must be the other participant of the request")
	ErrRequestNotFound    = apierrors.NewDomainError(apierrors.KindNotFound, "exchange request not found")
	ErrUserNotFound       = apierrors.NewDomainError(apierrors.KindNotFound, "user not found")
	ErrRequestNotComplete = apierrors.NewDomainError(apierrors.KindInvalidState, "ratings are only allowed on completed requests")
	ErrNotParticipant     = apierrors.NewDomainError(apierrors.KindForbidden, "not a participant of this exchange request")
	ErrAlreadyRated       = apierrors.NewDomainError(apierrors.KindConflict, "you have already rated this request")
)
