package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vastraworks/vastra/internal/notification/entity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound 通知不存在
var ErrNotFound = errors.New("notification not found")

// NotificationService 通知服务
// Notify为尽力而为：入库或推送失败只记日志，不向调用方传播
type NotificationService struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewNotificationService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *NotificationService {
	return &NotificationService{db: db, rdb: rdb, logger: logger}
}

// Notify 发送站内通知
func (s *NotificationService) Notify(ctx context.Context, n *entity.Notification) {
	if n.UserID == "" {
		return
	}
	n.ID = uuid.New().String()[:32]
	if n.Severity == "" {
		n.Severity = entity.SeverityInfo
	}
	n.CreatedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.logger.Warn("notification insert failed",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return
	}

	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	channel := "vastra:notify:" + n.UserID
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.logger.Warn("notification publish failed",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// List 查询用户通知
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]entity.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&entity.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var total int64
	query.Count(&total)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	var items []entity.Notification
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// UnreadCount 未读数
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead 标记已读
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead 全部标记已读
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}
