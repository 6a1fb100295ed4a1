package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// 台账条目状态
// pending/synced为活动态，accepted/rejected/cancelled/failed为终态；终态条目不可再改
const (
	StatusPending   = "pending"
	StatusSynced    = "synced"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// 同步类型
const (
	SyncTypeCreate = "create"
	SyncTypeEdit   = "edit"
	SyncTypeDelete = "delete"
)

// SyncItem 同步条目中的一个(款号,颜色)分组
// 数量按尺码聚合，反向冲销时按此逐尺码扣回
type SyncItem struct {
	Design     string         `json:"design"`
	Color      string         `json:"color"`
	UnitPrice  float64        `json:"unit_price"`
	Quantities map[string]int `json:"quantities"`
}

// SyncItems JSONB列
type SyncItems []SyncItem

func (s SyncItems) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *SyncItems) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// TotalQuantity 条目合计件数
func (s SyncItems) TotalQuantity() int {
	total := 0
	for _, item := range s {
		for _, qty := range item.Quantities {
			total += qty
		}
	}
	return total
}

// StringList JSONB字符串数组列
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

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

// SyncLedgerEntry 供应商同步台账（追加式，跨租户引用只存id不建外键）
// itemsSynced保存实际应用的载荷原文，冲销计算只信台账不回读订单
type SyncLedgerEntry struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	SupplierOrgID  string     `json:"supplier_org_id" gorm:"size:32;not null;index"`
	CustomerOrgID  string     `json:"customer_org_id" gorm:"size:32;not null;index"`
	OrderID        string     `json:"order_id" gorm:"size:32;not null;index"`
	SyncType       string     `json:"sync_type" gorm:"size:16;not null"`
	Status         string     `json:"status" gorm:"size:16;not null;index"`
	ItemsSynced    SyncItems  `json:"items_synced" gorm:"type:jsonb"`
	ReceivingIDs   StringList `json:"receiving_ids" gorm:"type:jsonb"`
	Metadata       JSONB      `json:"metadata" gorm:"type:jsonb"`
	ChangesMade    JSONB      `json:"changes_made" gorm:"type:jsonb"`
	EditedWithin24 bool       `json:"edited_within_24_hours" gorm:"column:edited_within_24_hours;not null;default:false"`
	ErrorMessage   string     `json:"error_message" gorm:"size:512"`

	RespondedBy   string     `json:"responded_by" gorm:"size:32"`
	ResponderName string     `json:"responder_name" gorm:"size:64"`
	RespondedAt   *time.Time `json:"responded_at"`
	RejectReason  string     `json:"reject_reason" gorm:"size:256"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SyncLedgerEntry) TableName() string {
	return "sync_ledger_entries"
}

// IsTerminal 是否终态
func (e *SyncLedgerEntry) IsTerminal() bool {
	switch e.Status {
	case StatusAccepted, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// FactoryReceiving 客户侧收货记录（supplier-sync来源的只读镜像）
// 每条对应订单的一个(款号,颜色)分组，冲销时按id删除
type FactoryReceiving struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	OrgID         string    `json:"org_id" gorm:"size:32;not null;index"`
	SourceType    string    `json:"source_type" gorm:"size:24;not null;default:'supplier-sync'"`
	SourceOrderID string    `json:"source_order_id" gorm:"size:32;index"`
	LedgerEntryID string    `json:"ledger_entry_id" gorm:"size:32;index"`
	SupplierOrgID string    `json:"supplier_org_id" gorm:"size:32;index"`
	SupplierName  string    `json:"supplier_name" gorm:"size:64"`
	ChallanNumber string    `json:"challan_number" gorm:"size:32"`
	Design        string    `json:"design" gorm:"size:64;not null"`
	Color         string    `json:"color" gorm:"size:48;not null"`
	Quantities    JSONB     `json:"quantities" gorm:"type:jsonb"`
	UnitPrice     float64   `json:"unit_price" gorm:"not null;default:0"`
	IsReadOnly    bool      `json:"is_read_only" gorm:"not null;default:true"`
	ReceivedAt    time.Time `json:"received_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (FactoryReceiving) TableName() string {
	return "factory_receivings"
}

// SourceTypeSupplierSync 收货来源
const SourceTypeSupplierSync = "supplier-sync"
