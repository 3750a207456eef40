package exchange

import apierrors "github.com/aimerfeng/SkillExchange/internal/errors"

var (
	ErrInvalidInput        = apierrors.NewDomainError(apierrors.KindInvalidArgument, "invalid input")
	ErrSelfRequest         = apierrors.NewDomainError(apierrors.KindInvalidArgument, "cannot send an exchange request to yourself")
	ErrInvalidTargetStatus = apierrors.NewDomainError(apierrors.KindInvalidArgument, "status must be one of accepted, rejected, completed")
	ErrReceiverNotFound    = apierrors.NewDomainError(apierrors.KindNotFound, "receiver not found")
	ErrRequestNotFound     = apierrors.NewDomainError(apierrors.KindNotFound, "exchange request not found")
	ErrDuplicateRequest    = apierrors.NewDomainError(apierrors.KindConflict, "an active exchange request for these skills already exists")
	ErrNotParticipant      = apierrors.NewDomainError(apierrors.KindForbidden, "not a participant of this exchange request")
	ErrReceiverOnly        = apierrors.NewDomainError(apierrors.KindForbidden, "only the receiver can accept or reject a request")
	ErrInvalidTransition   = apierrors.NewDomainError(apierrors.KindInvalidState, "status change not allowed from the current status")
)
