package knet

import "errors"

// Error enumeration exposed to callers, matching the specification's §6
// error list one for one.
var (
	ErrRefNonzero      = errors.New("knet: destroy attempted with live shares outstanding")
	ErrConnectFail     = errors.New("knet: connect failed")
	ErrBindFail        = errors.New("knet: bind failed")
	ErrListenFail      = errors.New("knet: listen failed")
	ErrAcceptFail      = errors.New("knet: accept failed")
	ErrSendPartial     = errors.New("knet: send partial")
	ErrSendFail        = errors.New("knet: send failed")
	ErrRecvFail        = errors.New("knet: recv failed")
	ErrRecvBufferFull  = errors.New("knet: recv buffer full")
	ErrThreadStartFail = errors.New("knet: loop goroutine failed to start")
	ErrGetPeerNameFail = errors.New("knet: getpeername failed")
)
