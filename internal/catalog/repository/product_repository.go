package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vastraworks/vastra/internal/catalog/entity"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// ProductRepository 款号仓库
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, p *entity.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepository) Update(ctx context.Context, p *entity.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ProductRepository) Delete(ctx context.Context, orgID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).Delete(&entity.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, orgID, id string) (*entity.Product, error) {
	var p entity.Product
	err := r.db.WithContext(ctx).
		Preload("Colors.Sizes").Preload("Colors").
		Where("id = ? AND org_id = ?", id, orgID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &p, err
}

// FindByOrgAndDesign 按组织+款号查找，预加载颜色和尺码
func (r *ProductRepository) FindByOrgAndDesign(ctx context.Context, orgID, design string) (*entity.Product, error) {
	return FindByOrgAndDesign(r.db.WithContext(ctx), orgID, design)
}

type ProductListParams struct {
	OrgID    string
	Keyword  string
	Category string
	LowStock bool
	Page     int
	PageSize int
}

func (r *ProductRepository) List(ctx context.Context, params ProductListParams) ([]entity.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Product{}).Where("org_id = ?", params.OrgID)
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("design ILIKE ? OR description ILIKE ?", kw, kw)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.LowStock {
		query = query.Where(`id IN (
			SELECT cv.product_id FROM color_variants cv
			JOIN size_stocks ss ON ss.variant_id = cv.id
			WHERE ss.current_stock - ss.locked_stock < ss.reorder_point AND ss.reorder_point > 0
		)`)
	}

	var total int64
	query.Count(&total)

	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}

	var items []entity.Product
	err := query.Preload("Colors.Sizes").Preload("Colors").
		Order("updated_at DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&items).Error
	return items, total, err
}

// GetAlerts 获取低库存预警（可售量低于补货点）
func (r *ProductRepository) GetAlerts(ctx context.Context, orgID string) ([]entity.SizeStock, error) {
	var alerts []entity.SizeStock
	err := r.db.WithContext(ctx).
		Joins("JOIN color_variants cv ON cv.id = size_stocks.variant_id").
		Joins("JOIN products p ON p.id = cv.product_id").
		Where("p.org_id = ? AND size_stocks.current_stock - size_stocks.locked_stock < size_stocks.reorder_point AND size_stocks.reorder_point > 0", orgID).
		Find(&alerts).Error
	return alerts, err
}

func (r *ProductRepository) CreateMovement(ctx context.Context, m *entity.StockMovement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *ProductRepository) ListMovements(ctx context.Context, orgID, design string, page, size int) ([]entity.StockMovement, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.StockMovement{}).Where("org_id = ?", orgID)
	if design != "" {
		query = query.Where("design = ?", design)
	}
	var total int64
	query.Count(&total)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	var items []entity.StockMovement
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// DB 返回底层db用于事务
func (r *ProductRepository) DB() *gorm.DB {
	return r.db
}

// ============================================================
// 事务内库存操作，同步引擎和库存服务共用
// 库存变更一律用增量更新，不做读-改-写，避免覆盖并发修改
// ============================================================

// FindByOrgAndDesign 按组织+款号查找（可传入事务句柄）
func FindByOrgAndDesign(tx *gorm.DB, orgID, design string) (*entity.Product, error) {
	var p entity.Product
	err := tx.Preload("Colors.Sizes").Preload("Colors").
		Where("org_id = ? AND design = ?", orgID, design).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddStock 增量入库
func AddStock(tx *gorm.DB, sizeStockID string, qty int) error {
	return tx.Model(&entity.SizeStock{}).
		Where("id = ?", sizeStockID).
		Updates(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock + ?", qty),
			"updated_at":    time.Now(),
		}).Error
}

// RemoveStockClamped 增量出库，下限截断为0
// 反向冲销时客户侧可能已自行消耗库存，不允许扣成负数
func RemoveStockClamped(tx *gorm.DB, sizeStockID string, qty int) error {
	return tx.Model(&entity.SizeStock{}).
		Where("id = ?", sizeStockID).
		Updates(map[string]interface{}{
			"current_stock": gorm.Expr("GREATEST(current_stock - ?, 0)", qty),
			"updated_at":    time.Now(),
		}).Error
}
