package core

import "errors"

var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrChannelForbidden = errors.New("channel requires staff privileges")
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchFull        = errors.New("match is full")
	ErrWrongPassword    = errors.New("wrong match password")
	ErrNotHost          = errors.New("only the host may do that")
	ErrNotInMatch       = errors.New("not in a match")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSlotUnavailable  = errors.New("slot unavailable")
)
