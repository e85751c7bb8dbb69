package service

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRefreshTokenExpired          = errors.New("refresh token expired")
	ErrRefreshTokenReused           = errors.New("refresh token reuse detected")
	ErrInvalidRefreshToken          = errors.New("invalid refresh token")
	ErrSessionNotFound              = errors.New("session not found")
	ErrSessionRevoked               = errors.New("session revoked")
	ErrAccessTokenExpired           = errors.New("access token expired")
	ErrInvalidAccessToken           = errors.New("invalid access token")
	ErrInvitationNotFound           = errors.New("invitation not found")
	ErrInvitationNotPending         = errors.New("invitation is not pending")
	ErrInviterMismatch              = errors.New("invitation belongs to a different inviter")
	ErrSubscriptionNotFound         = errors.New("subscription not found")
	ErrUserNotFound                 = errors.New("user not found")
	ErrUserLocked                   = errors.New("too many failed attempts")
	ErrInvalidCredentials           = errors.New("invalid email or password")
	ErrMFARequired                  = errors.New("second factor required")
	ErrRegistrationDisabled         = errors.New("user registration is currently not allowed")
	ErrUserAlreadyExists            = errors.New("this email is already registered")
	ErrSettingNotFound              = errors.New("setting not found")
	ErrUnsupportedEncryptionVersion = errors.New("unsupported server encryption version")
)

// opTimeout bounds every datastore round trip made on behalf of one operation.
type opTimeout time.Duration

func (t opTimeout) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if t <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(t))
}
