package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	notifentity "github.com/vastraworks/vastra/internal/notification/entity"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	"github.com/vastraworks/vastra/internal/sync/entity"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PropagateEdit 订单编辑后的反向冲销+重放
// mutate在同一事务内先落订单修改（换行、改字段），再按修改后的订单行重放，
// 传播失败整体回滚，订单不会留下半套修改
// 窗口在行锁下复核，超出编辑窗口为硬性边界，直接拒绝不做任何变更
func (e *SyncEngine) PropagateEdit(ctx context.Context, supplierOrgID, orderID string, changes map[string]interface{}, mutate func(tx *gorm.DB) error) error {
	order, err := e.orderRepo.FindByID(ctx, supplierOrgID, orderID)
	if err != nil {
		return err
	}
	if time.Since(order.CreatedAt) > e.editWindow {
		return ErrEditWindowExpired
	}

	release, err := e.lock.Acquire(ctx, orderID)
	if err != nil {
		return err
	}
	defer release()

	now := time.Now()
	var newEntryID string

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := orderrepo.LockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if time.Since(locked.CreatedAt) > e.editWindow {
			return ErrEditWindowExpired
		}

		if mutate != nil {
			if err := mutate(tx); err != nil {
				return err
			}
			if err := tx.First(locked, "id = ?", orderID).Error; err != nil {
				return err
			}
			locked.Items = nil
			if err := tx.Where("order_id = ?", orderID).Find(&locked.Items).Error; err != nil {
				return err
			}
		}

		prev, err := syncrepo.FindLatestApplied(tx, orderID)
		if errors.Is(err, syncrepo.ErrNotFound) {
			// 从未实际应用过（只有pending/rejected），无可冲销
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.reverseApplied(tx, prev); err != nil {
			return err
		}
		if err := syncrepo.MarkSuperseded(tx, prev.ID); err != nil {
			return fmt.Errorf("retire previous entry: %w", err)
		}

		supplierName, _ := prev.Metadata["supplier_name"].(string)
		newEntryID = uuid.New().String()[:32]
		applied, receivingIDs, err := e.applyGroups(tx, prev.CustomerOrgID, groupOrderItems(locked.Items), receivingRef{
			OrderID:       orderID,
			LedgerEntryID: newEntryID,
			SupplierOrgID: supplierOrgID,
			SupplierName:  supplierName,
			ChallanNumber: locked.ChallanNumber,
		})
		if err != nil {
			return err
		}

		entry := &entity.SyncLedgerEntry{
			ID:             newEntryID,
			SupplierOrgID:  supplierOrgID,
			CustomerOrgID:  prev.CustomerOrgID,
			OrderID:        orderID,
			SyncType:       entity.SyncTypeEdit,
			Status:         entity.StatusSynced,
			ItemsSynced:    applied,
			ReceivingIDs:   receivingIDs,
			Metadata:       prev.Metadata,
			ChangesMade:    changes,
			EditedWithin24: true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := syncrepo.CreateEntry(tx, entry); err != nil {
			return fmt.Errorf("create edit entry: %w", err)
		}

		return orderrepo.UpdateSyncProjection(tx, orderID, map[string]interface{}{
			"sync_status":           orderentity.SyncStatusSynced,
			"synced_at":             now,
			"current_sync_entry_id": newEntryID,
		})
	})
	if err != nil {
		return err
	}
	if newEntryID == "" {
		return nil
	}

	e.logger.Info("edit propagated",
		zap.String("order_id", orderID),
		zap.String("entry_id", newEntryID))

	e.notifyOrgAdmin(order.CustomerOrgID, &notifentity.Notification{
		OrgID:        order.CustomerOrgID,
		Type:         "sync-edited",
		Title:        "供应商修改了已同步订单",
		Message:      fmt.Sprintf("送货单号 %s 的库存已按修改后的订单重新同步", order.ChallanNumber),
		Severity:     notifentity.SeverityWarning,
		RelatedID:    newEntryID,
		RelatedModel: "SyncLedgerEntry",
		Metadata:     notifentity.JSONB{"order_id": orderID},
	})
	return nil
}

// PropagateDelete 订单删除前的反向冲销，无时间窗口限制
// 冲销最近一次应用的载荷并追加delete台账条目留痕
func (e *SyncEngine) PropagateDelete(ctx context.Context, supplierOrgID, orderID string) error {
	order, err := e.orderRepo.FindByID(ctx, supplierOrgID, orderID)
	if err != nil {
		return err
	}

	release, err := e.lock.Acquire(ctx, orderID)
	if err != nil {
		return err
	}
	defer release()

	now := time.Now()
	var reversedEntryID string

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := syncrepo.FindLatestApplied(tx, orderID)
		if errors.Is(err, syncrepo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.reverseApplied(tx, prev); err != nil {
			return err
		}
		if err := syncrepo.MarkSuperseded(tx, prev.ID); err != nil {
			return fmt.Errorf("retire previous entry: %w", err)
		}

		reversedEntryID = uuid.New().String()[:32]
		entry := &entity.SyncLedgerEntry{
			ID:            reversedEntryID,
			SupplierOrgID: supplierOrgID,
			CustomerOrgID: prev.CustomerOrgID,
			OrderID:       orderID,
			SyncType:      entity.SyncTypeDelete,
			Status:        entity.StatusSynced,
			ItemsSynced:   prev.ItemsSynced,
			Metadata:      prev.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return syncrepo.CreateEntry(tx, entry)
	})
	if err != nil {
		return err
	}
	if reversedEntryID == "" {
		return nil
	}

	e.logger.Info("delete propagated",
		zap.String("order_id", orderID),
		zap.String("entry_id", reversedEntryID))

	e.notifyOrgAdmin(order.CustomerOrgID, &notifentity.Notification{
		OrgID:        order.CustomerOrgID,
		Type:         "sync-deleted",
		Title:        "供应商删除了已同步订单",
		Message:      fmt.Sprintf("送货单号 %s 对应的同步库存已撤回", order.ChallanNumber),
		Severity:     notifentity.SeverityWarning,
		RelatedID:    reversedEntryID,
		RelatedModel: "SyncLedgerEntry",
		Metadata:     notifentity.JSONB{"order_id": orderID},
	})
	return nil
}
