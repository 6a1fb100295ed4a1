package repository

import (
	"context"
	"errors"

	"github.com/vastraworks/vastra/internal/order/entity"
	"gorm.io/gorm"
)

// BuyerRepository 买家目录仓库
type BuyerRepository struct {
	db *gorm.DB
}

func NewBuyerRepository(db *gorm.DB) *BuyerRepository {
	return &BuyerRepository{db: db}
}

func (r *BuyerRepository) Create(ctx context.Context, b *entity.BuyerLink) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BuyerRepository) Update(ctx context.Context, b *entity.BuyerLink) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *BuyerRepository) FindByContact(ctx context.Context, orgID, contact string) (*entity.BuyerLink, error) {
	var b entity.BuyerLink
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND contact = ?", orgID, contact).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BuyerRepository) List(ctx context.Context, orgID, keyword string, page, size int) ([]entity.BuyerLink, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.BuyerLink{}).Where("org_id = ?", orgID)
	if keyword != "" {
		kw := "%" + keyword + "%"
		query = query.Where("name ILIKE ? OR contact ILIKE ?", kw, kw)
	}
	var total int64
	query.Count(&total)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	var items []entity.BuyerLink
	err := query.Order("updated_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// LinkCustomerOrg 绑定买家对应的客户组织
func (r *BuyerRepository) LinkCustomerOrg(ctx context.Context, orgID, contact, customerOrgID string) error {
	res := r.db.WithContext(ctx).Model(&entity.BuyerLink{}).
		Where("org_id = ? AND contact = ?", orgID, contact).
		Update("customer_org_id", customerOrgID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
