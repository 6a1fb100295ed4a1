package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vastraworks/vastra/internal/sync/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// SyncRepository 同步台账仓库
type SyncRepository struct {
	db *gorm.DB
}

func NewSyncRepository(db *gorm.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

func (r *SyncRepository) FindByID(ctx context.Context, id string) (*entity.SyncLedgerEntry, error) {
	var e entity.SyncLedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListPending 客户组织待审批队列
func (r *SyncRepository) ListPending(ctx context.Context, customerOrgID string) ([]entity.SyncLedgerEntry, error) {
	var items []entity.SyncLedgerEntry
	err := r.db.WithContext(ctx).
		Where("customer_org_id = ? AND status = ?", customerOrgID, entity.StatusPending).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// ListBySupplier 供应商组织台账（按时间范围过滤）
func (r *SyncRepository) ListBySupplier(ctx context.Context, supplierOrgID string, since *time.Time) ([]entity.SyncLedgerEntry, error) {
	query := r.db.WithContext(ctx).Where("supplier_org_id = ?", supplierOrgID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	var items []entity.SyncLedgerEntry
	err := query.Order("created_at DESC").Find(&items).Error
	return items, err
}

// ListReceivings 客户侧收货记录
func (r *SyncRepository) ListReceivings(ctx context.Context, customerOrgID string) ([]entity.FactoryReceiving, error) {
	var items []entity.FactoryReceiving
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND source_type = ?", customerOrgID, entity.SourceTypeSupplierSync).
		Order("received_at DESC").
		Find(&items).Error
	return items, err
}

// DB 返回底层db用于事务
func (r *SyncRepository) DB() *gorm.DB {
	return r.db
}

// ============================================================
// 事务内台账操作，同步引擎专用
// ============================================================

// CreateEntry 追加台账条目
func CreateEntry(tx *gorm.DB, e *entity.SyncLedgerEntry) error {
	return tx.Create(e).Error
}

// LockEntry 行锁获取台账条目
func LockEntry(tx *gorm.DB, id string) (*entity.SyncLedgerEntry, error) {
	var e entity.SyncLedgerEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindLatestApplied 最近一条已实际应用的条目（synced/accepted的create/edit）
// 冲销计算的唯一依据
func FindLatestApplied(tx *gorm.DB, orderID string) (*entity.SyncLedgerEntry, error) {
	var e entity.SyncLedgerEntry
	err := tx.Where("order_id = ? AND sync_type IN ? AND status IN ?",
		orderID,
		[]string{entity.SyncTypeCreate, entity.SyncTypeEdit},
		[]string{entity.StatusSynced, entity.StatusAccepted},
	).Order("created_at DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntry 更新台账条目
func UpdateEntry(tx *gorm.DB, e *entity.SyncLedgerEntry) error {
	e.UpdatedAt = time.Now()
	return tx.Save(e).Error
}

// CancelRejected 将订单的rejected条目标记为cancelled（重发前调用，历史留存不删除）
func CancelRejected(tx *gorm.DB, orderID string) error {
	return tx.Model(&entity.SyncLedgerEntry{}).
		Where("order_id = ? AND status = ?", orderID, entity.StatusRejected).
		Updates(map[string]interface{}{
			"status":     entity.StatusCancelled,
			"updated_at": time.Now(),
		}).Error
}

// MarkSuperseded 将活动条目标记为cancelled（编辑重放/删除冲销后旧条目退役）
func MarkSuperseded(tx *gorm.DB, entryID string) error {
	return tx.Model(&entity.SyncLedgerEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"status":     entity.StatusCancelled,
			"updated_at": time.Now(),
		}).Error
}

// CreateReceiving 写入收货记录
func CreateReceiving(tx *gorm.DB, rec *entity.FactoryReceiving) error {
	return tx.Create(rec).Error
}

// DeleteReceivings 按id删除收货记录（冲销用）
func DeleteReceivings(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("id IN ?", ids).Delete(&entity.FactoryReceiving{}).Error
}
