package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vastraworks/vastra/internal/order/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// OrderRepository 批发订单仓库
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *entity.WholesaleOrder) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepository) FindByID(ctx context.Context, orgID, id string) (*entity.WholesaleOrder, error) {
	var o entity.WholesaleOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("SyncRequests", func(db *gorm.DB) *gorm.DB {
			return db.Order("sent_at DESC")
		}).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type OrderListParams struct {
	OrgID        string
	BuyerContact string
	SyncStatus   string
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
}

func (r *OrderRepository) List(ctx context.Context, params OrderListParams) ([]entity.WholesaleOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.WholesaleOrder{}).Where("org_id = ?", params.OrgID)
	if params.BuyerContact != "" {
		query = query.Where("buyer_contact = ?", params.BuyerContact)
	}
	if params.SyncStatus != "" {
		query = query.Where("sync_status = ?", params.SyncStatus)
	}
	if params.DateFrom != nil {
		query = query.Where("created_at >= ?", *params.DateFrom)
	}
	if params.DateTo != nil {
		query = query.Where("created_at < ?", *params.DateTo)
	}

	var total int64
	query.Count(&total)

	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}

	var items []entity.WholesaleOrder
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&items).Error
	return items, total, err
}

func (r *OrderRepository) Update(ctx context.Context, o *entity.WholesaleOrder) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *OrderRepository) Delete(ctx context.Context, orgID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND org_id = ?", id, orgID).Delete(&entity.WholesaleOrder{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("order_id = ?", id).Delete(&entity.OrderItem{}).Error
	})
}

// DB 返回底层db用于事务
func (r *OrderRepository) DB() *gorm.DB {
	return r.db
}

// ============================================================
// 事务内订单写操作，在同步引擎的事务里执行
// 订单上的同步字段是台账的投影，必须和台账写入同一事务；
// 订单编辑同理，换行和冲销重放一起提交
// ============================================================

// LockOrder 行锁获取订单（FOR UPDATE）
func LockOrder(tx *gorm.DB, orderID string) (*entity.WholesaleOrder, error) {
	var o entity.WholesaleOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Where("order_id = ?", orderID).Find(&o.Items).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ReplaceOrderItems 事务内整单替换订单行
func ReplaceOrderItems(tx *gorm.DB, orderID string, items []entity.OrderItem) error {
	if err := tx.Where("order_id = ?", orderID).Delete(&entity.OrderItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

// UpdateOrderFields 事务内更新订单基础字段
func UpdateOrderFields(tx *gorm.DB, orderID string, fields map[string]interface{}) error {
	return tx.Model(&entity.WholesaleOrder{}).Where("id = ?", orderID).Updates(fields).Error
}

// UpdateSyncProjection 更新订单同步投影字段
func UpdateSyncProjection(tx *gorm.DB, orderID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return tx.Model(&entity.WholesaleOrder{}).Where("id = ?", orderID).Updates(fields).Error
}

// CreateSyncRequest 写入同步请求记录
func CreateSyncRequest(tx *gorm.DB, req *entity.OrderSyncRequest) error {
	return tx.Create(req).Error
}

// UpdateSyncRequestStatus 更新同步请求状态（按台账条目关联）
func UpdateSyncRequestStatus(tx *gorm.DB, ledgerEntryID, status, respondedBy string) error {
	now := time.Now()
	return tx.Model(&entity.OrderSyncRequest{}).
		Where("ledger_entry_id = ?", ledgerEntryID).
		Updates(map[string]interface{}{
			"status":       status,
			"responded_by": respondedBy,
			"responded_at": &now,
		}).Error
}
