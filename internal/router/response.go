package router

import (
	"net/http"

	"ngo_donation/internal/apperrors"
	"ngo_donation/internal/logger"

	"github.com/gin-gonic/gin"
)

// envelope 统一响应结构：成功 {success:true, message?, data?}，失败 {success:false, message}。
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondFail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// respondError AppError -> HTTP 状态码 + 失败信封；5xx 只在 debug 下带细节。
func respondError(c *gin.Context, err error, debug bool) {
	appErr := apperrors.Resolve(err)
	if appErr.HTTPCode >= http.StatusInternalServerError {
		logger.CtxWithError(c.Request.Context(), "request failed", err, "path", c.Request.URL.Path, "code", appErr.Code)
	}
	respondFail(c, appErr.HTTPCode, apperrors.PublicMessage(appErr, debug))
}
