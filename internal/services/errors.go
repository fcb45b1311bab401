package services

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoImages           = errors.New("no images uploaded")
	ErrInvalidStatus      = errors.New("invalid status")

	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenNotActive = errors.New("token not active yet")
)
