package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidScaling  = errors.New("invalid scaling config")
	ErrInvalidAddress  = errors.New("invalid wallet address")
	ErrNoTrackedWallet = errors.New("no tracked wallet configured")
	ErrCorruptPosition = errors.New("position state corrupt")
	ErrRateLimited     = errors.New("rate limited")
	ErrWSDisconnect    = errors.New("websocket disconnected")
)
