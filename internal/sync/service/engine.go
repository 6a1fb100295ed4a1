package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	identityrepo "github.com/vastraworks/vastra/internal/identity/repository"
	notifentity "github.com/vastraworks/vastra/internal/notification/entity"
	notifservice "github.com/vastraworks/vastra/internal/notification/service"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	"github.com/vastraworks/vastra/internal/sync/entity"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 状态冲突错误，对应400类响应，调用方不应盲目重试
var (
	ErrAlreadyProcessed  = errors.New("sync request already processed")
	ErrAlreadySynced     = errors.New("order already synced")
	ErrAlreadyPending    = errors.New("sync request already pending")
	ErrEditWindowExpired = errors.New("edit window expired")
	ErrOrgMismatch       = errors.New("organization mismatch")
	ErrNothingApplied    = errors.New("no synced items could be applied")
)

// errNoItems 订单没有可同步的行，派发静默跳过
var errNoItems = errors.New("order has no items")

// guardDispatchable 行锁下复核订单同步状态
// 锁外的快照检查可能过期，写台账前必须用锁定行重新判定
func guardDispatchable(o *orderentity.WholesaleOrder) error {
	switch o.SyncStatus {
	case orderentity.SyncStatusPending:
		return ErrAlreadyPending
	case orderentity.SyncStatusSynced, orderentity.SyncStatusAccepted:
		return ErrAlreadySynced
	}
	return nil
}

// SyncEngine 供应商到客户的库存同步引擎
// 台账为权威，订单上的同步状态只是投影，和台账写入同一事务更新
// 单订单操作通过redis锁+订单行锁串行化，跨订单可并发
type SyncEngine struct {
	db         *gorm.DB
	lock       *OrderLock
	syncRepo   *syncrepo.SyncRepository
	orderRepo  *orderrepo.OrderRepository
	buyerRepo  *orderrepo.BuyerRepository
	userRepo   *identityrepo.UserRepository
	orgRepo    *identityrepo.OrganizationRepository
	notifier   *notifservice.NotificationService
	logger     *zap.Logger
	editWindow time.Duration
}

// NewSyncEngine 创建同步引擎
func NewSyncEngine(
	db *gorm.DB,
	lock *OrderLock,
	syncRepo *syncrepo.SyncRepository,
	orderRepo *orderrepo.OrderRepository,
	buyerRepo *orderrepo.BuyerRepository,
	userRepo *identityrepo.UserRepository,
	orgRepo *identityrepo.OrganizationRepository,
	notifier *notifservice.NotificationService,
	logger *zap.Logger,
	editWindow time.Duration,
) *SyncEngine {
	if editWindow <= 0 {
		editWindow = 24 * time.Hour
	}
	return &SyncEngine{
		db:         db,
		lock:       lock,
		syncRepo:   syncRepo,
		orderRepo:  orderRepo,
		buyerRepo:  buyerRepo,
		userRepo:   userRepo,
		orgRepo:    orgRepo,
		notifier:   notifier,
		logger:     logger,
		editWindow: editWindow,
	}
}

// DispatchResult 派发结果
type DispatchResult struct {
	Status        string `json:"status"`
	Mode          string `json:"mode,omitempty"`
	SyncID        string `json:"sync_id,omitempty"`
	CustomerOrgID string `json:"customer_org_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Dispatch 订单创建后触发同步
// 无买家/买家未关联客户组织时静默置为none，不算错误
// 客户组织停用时不改状态只记日志
func (e *SyncEngine) Dispatch(ctx context.Context, supplierOrgID, orderID string) (*DispatchResult, error) {
	order, err := e.orderRepo.FindByID(ctx, supplierOrgID, orderID)
	if err != nil {
		return nil, err
	}

	switch order.SyncStatus {
	case orderentity.SyncStatusPending:
		return nil, ErrAlreadyPending
	case orderentity.SyncStatusSynced, orderentity.SyncStatusAccepted:
		return nil, ErrAlreadySynced
	}

	buyer, err := e.buyerRepo.FindByContact(ctx, supplierOrgID, order.BuyerContact)
	if errors.Is(err, orderrepo.ErrNotFound) || (err == nil && buyer.CustomerOrgID == "") {
		if perr := orderrepo.UpdateSyncProjection(e.db.WithContext(ctx), order.ID, map[string]interface{}{
			"sync_status": orderentity.SyncStatusNone,
		}); perr != nil {
			return nil, fmt.Errorf("update sync status: %w", perr)
		}
		return &DispatchResult{Status: orderentity.SyncStatusNone, Reason: "no linked customer organization"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve buyer: %w", err)
	}

	customerOrg, err := e.orgRepo.FindActiveByID(ctx, buyer.CustomerOrgID)
	if err != nil {
		e.logger.Info("sync skipped, customer organization unavailable",
			zap.String("order_id", order.ID),
			zap.String("customer_org_id", buyer.CustomerOrgID),
			zap.Error(err))
		return &DispatchResult{Status: order.SyncStatus, Reason: "customer organization inactive"}, nil
	}

	release, err := e.lock.Acquire(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := e.dispatchLocked(ctx, order, buyer, customerOrg.ID)
	if errors.Is(err, errNoItems) {
		return &DispatchResult{Status: order.SyncStatus, Reason: "order has no items"}, nil
	}
	return result, err
}

func (e *SyncEngine) dispatchLocked(ctx context.Context, order *orderentity.WholesaleOrder, buyer *orderentity.BuyerLink, customerOrgID string) (*DispatchResult, error) {
	supplierName := ""
	if org, err := e.orgRepo.FindByID(ctx, order.OrgID); err == nil {
		supplierName = org.Name
	}

	if buyer.SyncPreference == orderentity.SyncPreferenceManual {
		return e.createPending(ctx, order, buyer, customerOrgID, supplierName)
	}
	return e.directApply(ctx, order, customerOrgID, supplierName)
}

// createPending 手动偏好：只建待审批台账条目，不动任何库存
// 行锁下复核状态并以锁定行的订单行为准，重发场景在同一事务里先退役rejected条目
func (e *SyncEngine) createPending(ctx context.Context, order *orderentity.WholesaleOrder, buyer *orderentity.BuyerLink, customerOrgID, supplierName string) (*DispatchResult, error) {
	now := time.Now()
	entryID := uuid.New().String()[:32]

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := orderrepo.LockOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if err := guardDispatchable(locked); err != nil {
			return err
		}
		groups := groupOrderItems(locked.Items)
		if len(groups) == 0 {
			return errNoItems
		}
		if locked.SyncStatus == orderentity.SyncStatusRejected {
			if err := syncrepo.CancelRejected(tx, order.ID); err != nil {
				return fmt.Errorf("cancel rejected entries: %w", err)
			}
		}

		entry := &entity.SyncLedgerEntry{
			ID:            entryID,
			SupplierOrgID: order.OrgID,
			CustomerOrgID: customerOrgID,
			OrderID:       order.ID,
			SyncType:      entity.SyncTypeCreate,
			Status:        entity.StatusPending,
			ItemsSynced:   groups,
			Metadata:      e.entryMetadata(locked, buyer, supplierName),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := syncrepo.CreateEntry(tx, entry); err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}
		if err := orderrepo.CreateSyncRequest(tx, &orderentity.OrderSyncRequest{
			ID:            uuid.New().String()[:32],
			OrderID:       order.ID,
			LedgerEntryID: entryID,
			SentAt:        now,
			Status:        entity.StatusPending,
		}); err != nil {
			return fmt.Errorf("create sync request: %w", err)
		}
		return orderrepo.UpdateSyncProjection(tx, order.ID, map[string]interface{}{
			"sync_status":           orderentity.SyncStatusPending,
			"customer_org_id":       customerOrgID,
			"current_sync_entry_id": entryID,
		})
	})
	if err != nil {
		return nil, err
	}

	e.notifyOrgAdmin(customerOrgID, &notifentity.Notification{
		OrgID:        customerOrgID,
		Type:         "sync-request",
		Title:        "新的同步请求",
		Message:      fmt.Sprintf("%s 发来订单同步请求，送货单号 %s", supplierName, order.ChallanNumber),
		Severity:     notifentity.SeverityInfo,
		RelatedID:    entryID,
		RelatedModel: "SyncLedgerEntry",
		Metadata:     notifentity.JSONB{"order_id": order.ID, "challan_number": order.ChallanNumber},
	})

	return &DispatchResult{
		Status:        entity.StatusPending,
		Mode:          "manual",
		SyncID:        entryID,
		CustomerOrgID: customerOrgID,
	}, nil
}

// directApply 直接同步：应用库存并写synced台账条目，单事务
// 行锁下复核状态，全部分组被跳过时记failed留痕，订单状态退回none可重发
func (e *SyncEngine) directApply(ctx context.Context, order *orderentity.WholesaleOrder, customerOrgID, supplierName string) (*DispatchResult, error) {
	now := time.Now()
	entryID := uuid.New().String()[:32]
	var nothingApplied bool

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := orderrepo.LockOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if err := guardDispatchable(locked); err != nil {
			return err
		}
		groups := groupOrderItems(locked.Items)
		if len(groups) == 0 {
			return errNoItems
		}
		if locked.SyncStatus == orderentity.SyncStatusRejected {
			if err := syncrepo.CancelRejected(tx, order.ID); err != nil {
				return fmt.Errorf("cancel rejected entries: %w", err)
			}
		}

		applied, receivingIDs, err := e.applyGroups(tx, customerOrgID, groups, receivingRef{
			OrderID:       order.ID,
			LedgerEntryID: entryID,
			SupplierOrgID: order.OrgID,
			SupplierName:  supplierName,
			ChallanNumber: locked.ChallanNumber,
		})
		if err != nil {
			return err
		}

		entry := &entity.SyncLedgerEntry{
			ID:            entryID,
			SupplierOrgID: order.OrgID,
			CustomerOrgID: customerOrgID,
			OrderID:       order.ID,
			SyncType:      entity.SyncTypeCreate,
			Status:        entity.StatusSynced,
			ItemsSynced:   applied,
			ReceivingIDs:  receivingIDs,
			Metadata:      e.entryMetadata(locked, nil, supplierName),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if len(applied) == 0 {
			nothingApplied = true
			entry.Status = entity.StatusFailed
			entry.ItemsSynced = groups
			entry.ErrorMessage = "no matching designs on supplier side"
			if err := syncrepo.CreateEntry(tx, entry); err != nil {
				return fmt.Errorf("create ledger entry: %w", err)
			}
			return orderrepo.UpdateSyncProjection(tx, order.ID, map[string]interface{}{
				"sync_status":           orderentity.SyncStatusNone,
				"customer_org_id":       customerOrgID,
				"current_sync_entry_id": entryID,
			})
		}
		if err := syncrepo.CreateEntry(tx, entry); err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}

		return orderrepo.UpdateSyncProjection(tx, order.ID, map[string]interface{}{
			"sync_status":           orderentity.SyncStatusSynced,
			"synced_to_customer":    true,
			"synced_at":             now,
			"customer_org_id":       customerOrgID,
			"current_sync_entry_id": entryID,
		})
	})
	if err != nil {
		return nil, err
	}

	if nothingApplied {
		e.logger.Warn("direct sync applied nothing",
			zap.String("order_id", order.ID),
			zap.String("entry_id", entryID))
		return &DispatchResult{
			Status:        entity.StatusFailed,
			Mode:          "direct",
			SyncID:        entryID,
			CustomerOrgID: customerOrgID,
			Reason:        "no matching designs on supplier side",
		}, nil
	}

	e.notifyOrgAdmin(customerOrgID, &notifentity.Notification{
		OrgID:        customerOrgID,
		Type:         "inventory-received",
		Title:        "收到供应商发货",
		Message:      fmt.Sprintf("%s 已同步订单库存，送货单号 %s", supplierName, order.ChallanNumber),
		Severity:     notifentity.SeverityInfo,
		RelatedID:    entryID,
		RelatedModel: "SyncLedgerEntry",
		Metadata:     notifentity.JSONB{"order_id": order.ID, "challan_number": order.ChallanNumber},
	})

	return &DispatchResult{
		Status:        entity.StatusSynced,
		Mode:          "direct",
		SyncID:        entryID,
		CustomerOrgID: customerOrgID,
	}, nil
}

func (e *SyncEngine) entryMetadata(order *orderentity.WholesaleOrder, buyer *orderentity.BuyerLink, supplierName string) entity.JSONB {
	meta := entity.JSONB{
		"challan_number": order.ChallanNumber,
		"total_amount":   order.TotalAmount,
		"total_quantity": order.TotalQuantity,
		"supplier_name":  supplierName,
	}
	if buyer != nil {
		meta["buyer_name"] = buyer.Name
	} else if order.BuyerName != "" {
		meta["buyer_name"] = order.BuyerName
	}
	return meta
}

// notifyOrgAdmin 通知组织管理员，异步尽力而为
func (e *SyncEngine) notifyOrgAdmin(orgID string, n *notifentity.Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		admin, err := e.userRepo.FindAdminByOrg(ctx, orgID)
		if err != nil {
			e.logger.Warn("notify skipped, no admin found",
				zap.String("org_id", orgID),
				zap.Error(err))
			return
		}
		n.UserID = admin.ID
		e.notifier.Notify(ctx, n)
	}()
}
