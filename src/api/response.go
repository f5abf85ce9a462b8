package api

import (
	"errors"
	"net/http"

	"TripDashboard/src/processor"

	"github.com/gin-gonic/gin"
)

// Response 统一的响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功时 code 为 0
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error code 与 HTTP 状态码一致
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// statusOf 哨兵错误到状态码的映射
func statusOf(err error) int {
	switch {
	case errors.Is(err, processor.ErrInsufficientData), errors.Is(err, processor.ErrForecastInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrInvalidParams), errors.Is(err, processor.ErrUnknownModel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Fail 按错误类型返回对应状态码，并记录到请求上下文
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	Error(c, statusOf(err), err.Error())
}
