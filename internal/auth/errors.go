package auth

import apierrors "github.com/aimerfeng/SkillExchange/internal/errors"

// Auth-specific errors
var (
	ErrInvalidInput       = apierrors.NewDomainError(apierrors.KindInvalidArgument, "invalid input")
	ErrEmailAlreadyExists = apierrors.NewDomainError(apierrors.KindConflict, "email already exists")
	ErrInvalidCredentials = apierrors.NewDomainError(apierrors.KindUnauthorized, "invalid email or password")
	ErrInvalidToken       = apierrors.NewDomainError(apierrors.KindUnauthorized, "invalid token")
	ErrTokenExpired       = apierrors.NewDomainError(apierrors.KindUnauthorized, "token has expired")
	ErrTokenRevoked       = apierrors.NewDomainError(apierrors.KindUnauthorized, "token has been revoked")
	ErrUserNotFound       = apierrors.NewDomainError(apierrors.KindNotFound, "user not found")
)
