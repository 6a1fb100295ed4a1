package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONB 任意JSON对象列
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Product 款号（按组织隔离，design在组织内唯一）
type Product struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrgID       string    `json:"org_id" gorm:"size:32;not null;uniqueIndex:idx_products_org_design"`
	Design      string    `json:"design" gorm:"size:64;not null;uniqueIndex:idx_products_org_design"`
	Description string    `json:"description" gorm:"type:text"`
	Category    string    `json:"category" gorm:"size:64"`
	ImageURL    string    `json:"image_url" gorm:"size:512"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Colors []ColorVariant `json:"colors" gorm:"foreignKey:ProductID;references:ID"`
}

func (Product) TableName() string {
	return "products"
}

// ColorVariant 颜色变体
type ColorVariant struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	ProductID      string    `json:"product_id" gorm:"size:32;not null;index"`
	Color          string    `json:"color" gorm:"size:48;not null"`
	WholesalePrice float64   `json:"wholesale_price" gorm:"not null;default:0"`
	RetailPrice    float64   `json:"retail_price" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Sizes []SizeStock `json:"sizes" gorm:"foreignKey:VariantID;references:ID"`
}

func (ColorVariant) TableName() string {
	return "color_variants"
}

// SizeStock 尺码库存
// current_stock和locked_stock均不允许为负；可售量 = current - locked
type SizeStock struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	VariantID    string    `json:"variant_id" gorm:"size:32;not null;index"`
	Size         string    `json:"size" gorm:"size:16;not null"`
	CurrentStock int       `json:"current_stock" gorm:"not null;default:0"`
	LockedStock  int       `json:"locked_stock" gorm:"not null;default:0"`
	ReorderPoint int       `json:"reorder_point" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (SizeStock) TableName() string {
	return "size_stocks"
}

// Available 可售数量
func (s SizeStock) Available() int {
	return s.CurrentStock - s.LockedStock
}

// StockMovement 库存流水（追加式，负数表示出库）
type StockMovement struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	OrgID         string    `json:"org_id" gorm:"size:32;not null;index"`
	SizeStockID   string    `json:"size_stock_id" gorm:"size:32;not null;index"`
	Design        string    `json:"design" gorm:"size:64"`
	Color         string    `json:"color" gorm:"size:48"`
	Size          string    `json:"size" gorm:"size:16"`
	QtyDelta      int       `json:"qty_delta" gorm:"not null"`
	ReferenceType string    `json:"reference_type" gorm:"size:32;not null"` // supplier-sync, manual, sale
	ReferenceID   string    `json:"reference_id" gorm:"size:32;index"`
	Notes         string    `json:"notes" gorm:"size:256"`
	CreatedBy     string    `json:"created_by" gorm:"size:32"`
	CreatedAt     time.Time `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}
