package model

import "errors"

// 模型层不变式错误，由 service 层转换为 AppError
var (
	ErrRoleMissing = errors.New("role does not exist")
	ErrNotMember   = errors.New("user is not a group member")
)
