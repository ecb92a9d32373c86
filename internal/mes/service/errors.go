package service

import (
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// ValidationError 输入不合法
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError 引用的记录不存在
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError 唯一性冲突或非法状态迁移
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ConfigurationError 缺少必要的配置
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsValidation 是否输入错误
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsNotFound 是否记录不存在
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict 是否冲突
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsConfiguration 是否配置错误
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// lookupErr 把仓库的 ErrNotFound 转成 NotFoundError，其他错误加上下文
func lookupErr(err error, entity, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("find %s: %w", entity, err)
}

// writeErr 把唯一约束冲突转成 ConflictError，存储错误不外泄
func writeErr(err error, op, conflictMsg string) error {
	if err == nil {
		return nil
	}
	if repository.IsUniqueViolation(err) {
		return &ConflictError{Message: conflictMsg}
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return err
	}
	if IsValidation(err) || IsNotFound(err) || IsConfiguration(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
