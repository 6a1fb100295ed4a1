package entity

import "time"

// 订单同步状态（订单侧投影，台账才是权威）
const (
	SyncStatusNone     = "none"
	SyncStatusPending  = "pending"
	SyncStatusSynced   = "synced"
	SyncStatusAccepted = "accepted"
	SyncStatusRejected = "rejected"
)

// 买家同步偏好
const (
	SyncPreferenceDirect = "direct"
	SyncPreferenceManual = "manual"
)

// WholesaleOrder 批发订单（供应商侧）
type WholesaleOrder struct {
	ID            string  `json:"id" gorm:"primaryKey;size:32"`
	OrgID         string  `json:"org_id" gorm:"size:32;not null;index"`
	BuyerContact  string  `json:"buyer_contact" gorm:"size:20;not null;index"`
	BuyerName     string  `json:"buyer_name" gorm:"size:64"`
	ChallanNumber string  `json:"challan_number" gorm:"size:32"`
	ChallanFile   string  `json:"challan_file" gorm:"size:512"`
	TotalAmount   float64 `json:"total_amount" gorm:"not null;default:0"`
	TotalQuantity int     `json:"total_quantity" gorm:"not null;default:0"`
	Notes         string  `json:"notes" gorm:"size:512"`

	// 同步投影字段，与台账写入同事务更新
	SyncStatus         string     `json:"sync_status" gorm:"size:16;not null;default:'none';index"`
	CustomerOrgID      string     `json:"customer_org_id" gorm:"size:32;index"`
	SyncedToCustomer   bool       `json:"synced_to_customer" gorm:"not null;default:false"`
	SyncedAt           *time.Time `json:"synced_at"`
	CurrentSyncEntryID string     `json:"current_sync_entry_id" gorm:"size:32"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Items        []OrderItem        `json:"items" gorm:"foreignKey:OrderID;references:ID"`
	SyncRequests []OrderSyncRequest `json:"sync_requests" gorm:"foreignKey:OrderID;references:ID"`
}

func (WholesaleOrder) TableName() string {
	return "wholesale_orders"
}

// OrderItem 订单行（款号/颜色/尺码/数量/单价）
type OrderItem struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID   string    `json:"order_id" gorm:"size:32;not null;index"`
	Design    string    `json:"design" gorm:"size:64;not null"`
	Color     string    `json:"color" gorm:"size:48;not null"`
	Size      string    `json:"size" gorm:"size:16;not null"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	UnitPrice float64   `json:"unit_price" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "wholesale_order_items"
}

// OrderSyncRequest 订单同步请求记录（一次订单可能多次重发，逐条留痕）
type OrderSyncRequest struct {
	ID            string     `json:"id" gorm:"primaryKey;size:32"`
	OrderID       string     `json:"order_id" gorm:"size:32;not null;index"`
	LedgerEntryID string     `json:"ledger_entry_id" gorm:"size:32;index"`
	SentAt        time.Time  `json:"sent_at"`
	Status        string     `json:"status" gorm:"size:16;not null;default:'pending'"`
	RespondedBy   string     `json:"responded_by" gorm:"size:32"`
	RespondedAt   *time.Time `json:"responded_at"`
}

func (OrderSyncRequest) TableName() string {
	return "order_sync_requests"
}

// BuyerLink 买家目录（供应商组织内按联系方式唯一）
// customer_org_id 在买家注册并完成关联前为空
type BuyerLink struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	OrgID          string    `json:"org_id" gorm:"size:32;not null;uniqueIndex:idx_buyer_links_org_contact"`
	Contact        string    `json:"contact" gorm:"size:20;not null;uniqueIndex:idx_buyer_links_org_contact"`
	Name           string    `json:"name" gorm:"size:64"`
	CustomerOrgID  string    `json:"customer_org_id" gorm:"size:32;index"`
	SyncPreference string    `json:"sync_preference" gorm:"size:16;not null;default:'direct'"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (BuyerLink) TableName() string {
	return "buyer_links"
}
