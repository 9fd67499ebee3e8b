package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.im.chatroom/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    appErrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// InvalidParams 参数校验失败，附带校验细节
func InvalidParams(c *gin.Context, detail string) {
	message := appErrors.ErrInvalidParams.Message
	if detail != "" {
		message += ": " + detail
	}
	ErrorWithMsg(c, appErrors.CodeInvalidParams, message)
}

// ErrorFromAppError 从 AppError 生成错误响应
// 业务错误统一返回 200，由 code 区分
func ErrorFromAppError(c *gin.Context, err error) {
	ErrorWithMsg(c, appErrors.GetCode(err), appErrors.GetMessage(err))
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context, err *appErrors.AppError) {
	if err == nil {
		err = appErrors.ErrTokenInvalid
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Code:    err.Code,
		Message: err.Message,
		Data:    nil,
	})
}

// TooManyRequests 请求过多
func TooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
		Code:    appErrors.CodeTooManyReqest,
		Message: appErrors.ErrTooManyRequest.Message,
		Data:    nil,
	})
}
