package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind 错误分类
// 决定调用方如何处理：用户提示、冲突提示或可重试
type Kind int

const (
	KindInternal     Kind = iota // 未分类的内部错误
	KindNotFound                 // 查找未命中（用户、好友、群组、消息）
	KindInvalidInput             // 必填字段为空或参数不合法
	KindConflict                 // 唯一性冲突（用户名、待处理请求）
	KindForbidden                // 无权限
	KindTransient                // 网络或后端暂时不可用
)

// String 返回分类名称
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidInput:
		return "InvalidInput"
	case KindConflict:
		return "Conflict"
	case KindForbidden:
		return "Forbidden"
	case KindTransient:
		return "Transient"
	default:
		return "Internal"
	}
}

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码、分类和错误消息
type AppError struct {
	Code    int    // 错误码
	Kind    Kind   // 错误分类
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Kind:    e.Kind,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if KindOf(err) == KindTransient {
		return CodeUnavailable
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if KindOf(err) == KindTransient {
		return ErrUnavailable.Message
	}
	return ErrServerError.Message
}

// KindOf 获取错误分类
// 超时、取消和网络错误视为 Transient
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindInternal
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeUsernameExists     = 10001
	CodeInvalidCredentials = 10002
	CodeTokenInvalid       = 10003
	CodeTokenExpired       = 10004
	CodeEmailExists        = 10005

	// 用户相关 11000-11999
	CodeUserNotFound  = 11001
	CodeInvalidParams = 11002

	// 好友相关 12000-12999
	CodeFriendRequestNotFound = 12001
	CodeAlreadyFriends        = 12002
	CodeCannotAddSelf         = 12003
	CodeRequestPending        = 12004
	CodeNotRequestRecipient   = 12005

	// 群组相关 13000-13999
	CodeGroupNotFound       = 13001
	CodeRoleNotFound        = 13002
	CodeNotGroupMember      = 13003
	CodePermissionDenied    = 13004
	CodeCannotRemoveCreator = 13005
	CodeInvalidGroup        = 13006

	// 消息相关 14000-14999
	CodeEmptyMessage    = 14001
	CodeMessageNotFound = 14002
	CodeInvalidPayload  = 14003

	// 媒体相关 15000-15999
	CodeUploadFailed = 15001
	CodeInvalidMedia = 15002

	// 系统错误 50000-50999
	CodeServerError   = 50001
	CodeDBError       = 50002
	CodeTooManyReqest = 50003
	CodeUnavailable   = 50004
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrUsernameExists     = NewError(CodeUsernameExists, KindConflict, "用户名已存在")
	ErrInvalidCredentials = NewError(CodeInvalidCredentials, KindInvalidInput, "邮箱或密码错误")
	ErrTokenInvalid       = NewError(CodeTokenInvalid, KindForbidden, "Token 无效")
	ErrTokenExpired       = NewError(CodeTokenExpired, KindForbidden, "Token 已过期")
	ErrEmailExists        = NewError(CodeEmailExists, KindConflict, "邮箱已被注册")
)

// 用户相关
var (
	ErrUserNotFound  = NewError(CodeUserNotFound, KindNotFound, "用户不存在")
	ErrInvalidParams = NewError(CodeInvalidParams, KindInvalidInput, "参数校验失败")
)

// 好友相关
var (
	ErrFriendRequestNotFound = NewError(CodeFriendRequestNotFound, KindNotFound, "好友请求不存在")
	ErrAlreadyFriends        = NewError(CodeAlreadyFriends, KindConflict, "已经是好友关系")
	ErrCannotAddSelf         = NewError(CodeCannotAddSelf, KindInvalidInput, "不能添加自己为好友")
	ErrRequestPending        = NewError(CodeRequestPending, KindConflict, "好友请求待处理中")
	ErrNotRequestRecipient   = NewError(CodeNotRequestRecipient, KindForbidden, "只有接收者可以处理该请求")
)

// 群组相关
var (
	ErrGroupNotFound       = NewError(CodeGroupNotFound, KindNotFound, "群组不存在")
	ErrRoleNotFound        = NewError(CodeRoleNotFound, KindNotFound, "角色不存在")
	ErrNotGroupMember      = NewError(CodeNotGroupMember, KindInvalidInput, "用户不是群成员")
	ErrPermissionDenied    = NewError(CodePermissionDenied, KindForbidden, "没有权限执行该操作")
	ErrCannotRemoveCreator = NewError(CodeCannotRemoveCreator, KindInvalidInput, "不能移除群主")
	ErrInvalidGroup        = NewError(CodeInvalidGroup, KindInvalidInput, "群名称和成员不能为空")
)

// 消息相关
var (
	ErrEmptyMessage    = NewError(CodeEmptyMessage, KindInvalidInput, "消息内容不能为空")
	ErrMessageNotFound = NewError(CodeMessageNotFound, KindNotFound, "消息不存在")
	ErrInvalidPayload  = NewError(CodeInvalidPayload, KindInvalidInput, "消息只能包含一种内容")
)

// 媒体相关
var (
	ErrUploadFailed = NewError(CodeUploadFailed, KindTransient, "文件上传失败")
	ErrInvalidMedia = NewError(CodeInvalidMedia, KindInvalidInput, "不支持的媒体类型")
)

// 系统相关
var (
	ErrServerError    = NewError(CodeServerError, KindInternal, "服务器内部错误")
	ErrDBError        = NewError(CodeDBError, KindTransient, "数据库错误")
	ErrTooManyRequest = NewError(CodeTooManyReqest, KindTransient, "请求过于频繁，请稍后再试")
	ErrUnavailable    = NewError(CodeUnavailable, KindTransient, "服务暂时不可用，请稍后重试")
)
