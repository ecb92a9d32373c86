package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Repositories MES仓库集合
type Repositories struct {
	db           *gorm.DB
	Part         *PartRepository
	FormatConfig *FormatConfigRepository
	Trigger      *TriggerRepository
	Identity     *IdentityRepository
	Placeholder  *PlaceholderRepository
	VendorSerial *VendorSerialRepository
	Propagation  *PropagationRepository
	AuditEvent   *AuditEventRepository
}

// NewRepositories 创建MES仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Part:         NewPartRepository(db),
		FormatConfig: NewFormatConfigRepository(db),
		Trigger:      NewTriggerRepository(db),
		Identity:     NewIdentityRepository(db),
		Placeholder:  NewPlaceholderRepository(db),
		VendorSerial: NewVendorSerialRepository(db),
		Propagation:  NewPropagationRepository(db),
		AuditEvent:   NewAuditEventRepository(db),
	}
}

// Transaction 在同一事务中执行fn，fn返回错误时整体回滚
// fn 内只能使用传入的 tx 仓库集合
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// IsUniqueViolation 判断是否唯一约束冲突（postgres / sqlite）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate 把存储层错误转换为仓库错误
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
