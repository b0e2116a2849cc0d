package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user-not-found")
	ErrDuplicateOutcome     = errors.New("duplicate-outcome")
	UnexpectedDatabaseError = errors.New("unexpected-database-error")
	UnexpectedPublishError  = errors.New("unexpected-publish-error")
)

var (
	ErrInvalidSigningAlg             = errors.New("invalid-signing-alg")
	ErrExpiredToken                  = errors.New("expired-token")
	ErrInvalidTokenSignature         = errors.New("invalid-token-signature")
	ErrCorruptedToken                = errors.New("corrupted-token")
	UnexpectedTokenGenerationError   = errors.New("unexpected-token-generation-error")
	UnexpectedTokenVerificationError = errors.New("unexpected-token-verification-error")
)
