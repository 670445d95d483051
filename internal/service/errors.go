package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
// token 解码相关的错误（过期、类型不符等）定义在 auth 包中。
var (
	ErrUsernameTaken         = errors.New("username taken")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrRevokedToken = errors.New("invalid or revoked refresh token")
	ErrUserNotFound          = errors.New("user not found")
	ErrReceiverNotFound      = errors.New("receiver not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrNotMessageOwner       = errors.New("not the message owner")
)
