package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vastraworks/vastra/internal/notification/entity"
	"github.com/vastraworks/vastra/internal/testutil"
	"go.uber.org/zap"
)

func TestNotifyAndRead(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewNotificationService(db, nil, zap.NewNop())
	ctx := context.Background()

	svc.Notify(ctx, &entity.Notification{
		UserID:  "u1",
		OrgID:   "org1",
		Type:    "sync-request",
		Title:   "新同步请求",
		Message: "订单 ord1 等待审批",
	})
	svc.Notify(ctx, &entity.Notification{
		UserID:  "u1",
		OrgID:   "org1",
		Type:    "sync-accepted",
		Title:   "同步已接受",
		Message: "订单 ord2 已入库",
	})

	count, err := svc.UnreadCount(ctx, "u1")
	if err != nil || count != 2 {
		t.Fatalf("unread count = %d, err = %v, want 2", count, err)
	}

	items, total, err := svc.List(ctx, "u1", true, 1, 10)
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("list: items = %d, total = %d, err = %v", len(items), total, err)
	}
	if items[0].Severity != entity.SeverityInfo {
		t.Errorf("default severity = %s, want info", items[0].Severity)
	}

	if err := svc.MarkRead(ctx, "u1", items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, _ = svc.UnreadCount(ctx, "u1")
	if count != 1 {
		t.Errorf("unread count after mark = %d, want 1", count)
	}

	if err := svc.MarkAllRead(ctx, "u1"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	count, _ = svc.UnreadCount(ctx, "u1")
	if count != 0 {
		t.Errorf("unread count after mark all = %d, want 0", count)
	}
}

func TestMarkReadOtherUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewNotificationService(db, nil, zap.NewNop())
	ctx := context.Background()

	svc.Notify(ctx, &entity.Notification{
		UserID: "u1", OrgID: "org1", Type: "sync-request", Title: "t", Message: "m",
	})
	items, _, _ := svc.List(ctx, "u1", false, 1, 10)
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(items))
	}

	// 不能读别人的通知
	if err := svc.MarkRead(ctx, "u2", items[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNotifyWithoutUserIsNoop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewNotificationService(db, nil, zap.NewNop())
	ctx := context.Background()

	svc.Notify(ctx, &entity.Notification{OrgID: "org1", Type: "sync-request"})

	var count int64
	db.Model(&entity.Notification{}).Count(&count)
	if count != 0 {
		t.Errorf("notification persisted without user: %d", count)
	}
}
