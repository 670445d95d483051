package server

import (
	"errors"
	"net/http"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError 把业务错误映射为 HTTP 状态码，未知错误记录日志并返回 500。
func respondError(c *gin.Context, err error, op string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg(op)
		c.JSON(status, gin.H{"error": op + " failed"})
		return
	}
	c.JSON(status, gin.H{"error": publicMessage(err)})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidOrRevokedToken),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, auth.ErrWrongTokenKind),
		errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrMessageNotFound), errors.Is(err, service.ErrReceiverNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotMessageOwner):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidMessage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// token 解析的细节不对外暴露。
func publicMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrWrongTokenKind):
		return "invalid token"
	}
	return err.Error()
}
