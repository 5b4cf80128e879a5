package util

import (
	"net/http"

	"puzzle_arena_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构，失败时 ErrorKind 非空
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// kindStatus 错误种类到 HTTP 状态码的映射
var kindStatus = map[ErrorKind]int{
	KindInvalidStateTransition: http.StatusConflict,
	KindAlreadyCompleted:       http.StatusConflict,
	KindAlreadyInProgress:      http.StatusConflict,
	KindAlreadyActive:          http.StatusConflict,
	KindNotInProgress:          http.StatusConflict,
	KindCannotSkipCompleted:    http.StatusConflict,
	KindSkipLimitExceeded:      http.StatusUnprocessableEntity,
	KindSequenceViolation:      http.StatusUnprocessableEntity,
	KindNotFound:               http.StatusNotFound,
	KindConfigurationMissing:   http.StatusInternalServerError,
	KindPersistenceConflict:    http.StatusConflict,
}

// AppErrorResponse 将引擎的类型化错误映射为 {error_kind, message}，
// 并附带权威的计时快照，客户端凭此重新同步而不是猜测
func AppErrorResponse(c *gin.Context, err error, snapshot interface{}) {
	kind, ok := KindOf(err)
	if !ok {
		LogInternalError(c, err)
		return
	}
	status, found := kindStatus[kind]
	if !found {
		status = http.StatusBadRequest
	}
	c.JSON(status, Response{
		Code:      status,
		Message:   err.Error(),
		ErrorKind: string(kind),
		Data:      snapshot,
	})
}
