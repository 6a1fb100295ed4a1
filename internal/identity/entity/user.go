package entity

import "time"

// 组织状态
const (
	OrgStatusActive   = "active"
	OrgStatusInactive = "inactive"
)

// 用户角色
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Organization 组织（租户）
// 供应商和客户各自是一个独立组织，互相只通过id弱引用
type Organization struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	GSTIN     string    `json:"gstin" gorm:"size:20"`
	Phone     string    `json:"phone" gorm:"size:20;index"`
	Address   string    `json:"address" gorm:"size:256"`
	Status    string    `json:"status" gorm:"size:16;not null;default:'active'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// User 用户
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	OrgID        string    `json:"org_id" gorm:"size:32;not null;index"`
	Name         string    `json:"name" gorm:"size:64;not null"`
	Email        string    `json:"email" gorm:"size:128;uniqueIndex"`
	Phone        string    `json:"phone" gorm:"size:20;index"`
	PasswordHash string    `json:"-" gorm:"size:128"`
	Role         string    `json:"role" gorm:"size:16;not null;default:'staff'"`
	Status       string    `json:"status" gorm:"size:16;not null;default:'active'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Organization *Organization `json:"organization,omitempty" gorm:"foreignKey:OrgID;references:ID"`
}

func (User) TableName() string {
	return "users"
}
