package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// 通知严重级别
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
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

// Notification 站内通知
type Notification struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	UserID       string    `json:"user_id" gorm:"size:32;not null;index"`
	OrgID        string    `json:"org_id" gorm:"size:32;index"`
	Type         string    `json:"type" gorm:"size:32;not null"`
	Title        string    `json:"title" gorm:"size:128;not null"`
	Message      string    `json:"message" gorm:"size:512"`
	Severity     string    `json:"severity" gorm:"size:16;not null;default:'info'"`
	RelatedID    string    `json:"related_id" gorm:"size:32;index"`
	RelatedModel string    `json:"related_model" gorm:"size:32"`
	Metadata     JSONB     `json:"metadata" gorm:"type:jsonb"`
	IsRead       bool      `json:"is_read" gorm:"not null;default:false;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

func (Notification) TableName() string {
	return "notifications"
}
