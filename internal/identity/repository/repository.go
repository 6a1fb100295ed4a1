package repository

import (
	"context"
	"errors"

	"github.com/vastraworks/vastra/internal/identity/entity"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Preload("Organization").Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &user, err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Preload("Organization").Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &user, err
}

// FindActiveByOrg 获取组织下的活跃用户（通知收件人解析用）
func (r *UserRepository) FindActiveByOrg(ctx context.Context, orgID string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, "active").
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

// FindAdminByOrg 获取组织的管理员用户，不存在时回退到最早创建的活跃用户
func (r *UserRepository) FindAdminByOrg(ctx context.Context, orgID string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND role = ? AND status = ?", orgID, entity.RoleAdmin, "active").
		Order("created_at ASC").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.WithContext(ctx).
			Where("org_id = ? AND status = ?", orgID, "active").
			Order("created_at ASC").
			First(&user).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &user, err
}

// OrganizationRepository 组织仓库
type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *entity.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *OrganizationRepository) FindByID(ctx context.Context, id string) (*entity.Organization, error) {
	var org entity.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &org, err
}

// FindActiveByID 只返回活跃组织；同步引擎用它判断客户组织是否可用
func (r *OrganizationRepository) FindActiveByID(ctx context.Context, id string) (*entity.Organization, error) {
	var org entity.Organization
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, entity.OrgStatusActive).
		First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &org, err
}

// FindByUserPhone 按用户手机号定位组织（买家关联客户组织时使用）
func (r *OrganizationRepository) FindByUserPhone(ctx context.Context, phone string) (*entity.Organization, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Preload("Organization").
		Where("phone = ? AND status = ?", phone, "active").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.Organization == nil {
		return nil, ErrNotFound
	}
	return user.Organization, nil
}
