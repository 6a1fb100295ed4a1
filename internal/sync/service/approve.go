package service

import (
	"context"
	"fmt"
	"time"

	notifentity "github.com/vastraworks/vastra/internal/notification/entity"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	"github.com/vastraworks/vastra/internal/sync/entity"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	"gorm.io/gorm"
)

// Approver 审批人身份
type Approver struct {
	UserID string
	Name   string
	OrgID  string
}

// AcceptResult 审批通过结果
type AcceptResult struct {
	SyncID     string    `json:"sync_id"`
	ItemsCount int       `json:"items_count"`
	AcceptedBy string    `json:"accepted_by"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Accept 审批通过待处理的同步请求
// 应用时只认台账里存的载荷，不回读订单，订单后续编辑不影响已审批内容
// 全部分组被跳过时条目记failed，订单状态退回none，返回ErrNothingApplied
func (e *SyncEngine) Accept(ctx context.Context, syncID string, actor Approver) (*AcceptResult, error) {
	entry, err := e.syncRepo.FindByID(ctx, syncID)
	if err != nil {
		return nil, err
	}
	if entry.CustomerOrgID != actor.OrgID {
		return nil, ErrOrgMismatch
	}

	release, err := e.lock.Acquire(ctx, entry.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now()
	var itemsCount int
	var nothingApplied bool

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := syncrepo.LockEntry(tx, syncID)
		if err != nil {
			return err
		}
		if locked.Status != entity.StatusPending {
			return ErrAlreadyProcessed
		}

		supplierName, _ := locked.Metadata["supplier_name"].(string)
		challan, _ := locked.Metadata["challan_number"].(string)
		applied, receivingIDs, err := e.applyGroups(tx, locked.CustomerOrgID, locked.ItemsSynced, receivingRef{
			OrderID:       locked.OrderID,
			LedgerEntryID: locked.ID,
			SupplierOrgID: locked.SupplierOrgID,
			SupplierName:  supplierName,
			ChallanNumber: challan,
		})
		if err != nil {
			return err
		}
		itemsCount = len(applied)

		if len(applied) == 0 {
			nothingApplied = true
			locked.Status = entity.StatusFailed
			locked.ErrorMessage = "no matching designs on supplier side"
			locked.RespondedBy = actor.UserID
			locked.ResponderName = actor.Name
			locked.RespondedAt = &now
			if err := syncrepo.UpdateEntry(tx, locked); err != nil {
				return fmt.Errorf("update ledger entry: %w", err)
			}
			if err := orderrepo.UpdateSyncRequestStatus(tx, locked.ID, entity.StatusFailed, actor.UserID); err != nil {
				return fmt.Errorf("update sync request: %w", err)
			}
			return orderrepo.UpdateSyncProjection(tx, locked.OrderID, map[string]interface{}{
				"sync_status": orderentity.SyncStatusNone,
			})
		}

		locked.Status = entity.StatusAccepted
		locked.ItemsSynced = applied
		locked.ReceivingIDs = receivingIDs
		locked.RespondedBy = actor.UserID
		locked.ResponderName = actor.Name
		locked.RespondedAt = &now
		if err := syncrepo.UpdateEntry(tx, locked); err != nil {
			return fmt.Errorf("update ledger entry: %w", err)
		}

		if err := orderrepo.UpdateSyncRequestStatus(tx, locked.ID, entity.StatusAccepted, actor.UserID); err != nil {
			return fmt.Errorf("update sync request: %w", err)
		}
		return orderrepo.UpdateSyncProjection(tx, locked.OrderID, map[string]interface{}{
			"sync_status":        orderentity.SyncStatusAccepted,
			"synced_to_customer": true,
			"synced_at":          now,
		})
	})
	if err != nil {
		return nil, err
	}
	if nothingApplied {
		return nil, ErrNothingApplied
	}

	e.notifyOrgAdmin(entry.SupplierOrgID, &notifentity.Notification{
		OrgID:        entry.SupplierOrgID,
		Type:         "sync-accepted",
		Title:        "同步请求已通过",
		Message:      fmt.Sprintf("%s 接受了订单同步", actor.Name),
		Severity:     notifentity.SeverityInfo,
		RelatedID:    entry.ID,
		RelatedModel: "SyncLedgerEntry",
		Metadata:     notifentity.JSONB{"order_id": entry.OrderID},
	})

	return &AcceptResult{
		SyncID:     syncID,
		ItemsCount: itemsCount,
		AcceptedBy: actor.Name,
		AcceptedAt: now,
	}, nil
}

// RejectResult 审批拒绝结果
type RejectResult struct {
	SyncID     string    `json:"sync_id"`
	RejectedBy string    `json:"rejected_by"`
	RejectedAt time.Time `json:"rejected_at"`
	Reason     string    `json:"reason"`
}

// Reject 拒绝待处理的同步请求，不动任何库存
func (e *SyncEngine) Reject(ctx context.Context, syncID, reason string, actor Approver) (*RejectResult, error) {
	entry, err := e.syncRepo.FindByID(ctx, syncID)
	if err != nil {
		return nil, err
	}
	if entry.CustomerOrgID != actor.OrgID {
		return nil, ErrOrgMismatch
	}

	release, err := e.lock.Acquire(ctx, entry.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := syncrepo.LockEntry(tx, syncID)
		if err != nil {
			return err
		}
		if locked.Status != entity.StatusPending {
			return ErrAlreadyProcessed
		}

		locked.Status = entity.StatusRejected
		locked.RespondedBy = actor.UserID
		locked.ResponderName = actor.Name
		locked.RespondedAt = &now
		locked.RejectReason = reason
		if err := syncrepo.UpdateEntry(tx, locked); err != nil {
			return fmt.Errorf("update ledger entry: %w", err)
		}

		if err := orderrepo.UpdateSyncRequestStatus(tx, locked.ID, entity.StatusRejected, actor.UserID); err != nil {
			return fmt.Errorf("update sync request: %w", err)
		}
		return orderrepo.UpdateSyncProjection(tx, locked.OrderID, map[string]interface{}{
			"sync_status": orderentity.SyncStatusRejected,
		})
	})
	if err != nil {
		return nil, err
	}

	e.notifyOrgAdmin(entry.SupplierOrgID, &notifentity.Notification{
		OrgID:        entry.SupplierOrgID,
		Type:         "sync-rejected",
		Title:        "同步请求被拒绝",
		Message:      fmt.Sprintf("%s 拒绝了订单同步：%s", actor.Name, reason),
		Severity:     notifentity.SeverityWarning,
		RelatedID:    entry.ID,
		RelatedModel: "SyncLedgerEntry",
		Metadata:     notifentity.JSONB{"order_id": entry.OrderID, "reason": reason},
	})

	return &RejectResult{
		SyncID:     syncID,
		RejectedBy: actor.Name,
		RejectedAt: now,
		Reason:     reason,
	}, nil
}

// Resend 重发同步
// 只有rejected/none可重发；状态复核和rejected条目的cancelled留痕
// 在派发事务内行锁下进行，并发重发只会有一次生效
func (e *SyncEngine) Resend(ctx context.Context, supplierOrgID, orderID string) (*DispatchResult, error) {
	order, err := e.orderRepo.FindByID(ctx, supplierOrgID, orderID)
	if err != nil {
		return nil, err
	}

	switch order.SyncStatus {
	case orderentity.SyncStatusSynced, orderentity.SyncStatusAccepted:
		return nil, ErrAlreadySynced
	case orderentity.SyncStatusPending:
		return nil, ErrAlreadyPending
	}

	return e.Dispatch(ctx, supplierOrgID, orderID)
}
