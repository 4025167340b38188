package stream

import "errors"

var (
	ErrEncoding   = errors.New("frame encoding failed")
	ErrConnection = errors.New("connection failed")
	ErrProtocol   = errors.New("protocol error")
)
