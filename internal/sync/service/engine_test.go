package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	catalogrepo "github.com/vastraworks/vastra/internal/catalog/repository"
	identityrepo "github.com/vastraworks/vastra/internal/identity/repository"
	notifservice "github.com/vastraworks/vastra/internal/notification/service"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	"github.com/vastraworks/vastra/internal/sync/entity"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	"github.com/vastraworks/vastra/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) (*SyncEngine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	engine := NewSyncEngine(
		db,
		NewOrderLock(nil, 0),
		syncrepo.NewSyncRepository(db),
		orderrepo.NewOrderRepository(db),
		orderrepo.NewBuyerRepository(db),
		identityrepo.NewUserRepository(db),
		identityrepo.NewOrganizationRepository(db),
		notifservice.NewNotificationService(db, nil, zap.NewNop()),
		zap.NewNop(),
		24*time.Hour,
	)
	return engine, db
}

func seedOrder(t *testing.T, db *gorm.DB, id, orgID, contact string, items []orderentity.OrderItem) *orderentity.WholesaleOrder {
	t.Helper()
	now := time.Now()
	order := &orderentity.WholesaleOrder{
		ID:            id,
		OrgID:         orgID,
		BuyerContact:  contact,
		ChallanNumber: "CH-" + id,
		SyncStatus:    orderentity.SyncStatusNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range items {
		items[i].ID = fmt.Sprintf("%s-item-%d", id, i)
		items[i].OrderID = id
		items[i].CreatedAt = now
		order.TotalQuantity += items[i].Quantity
		order.TotalAmount += float64(items[i].Quantity) * items[i].UnitPrice
	}
	order.Items = items
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func customerStock(t *testing.T, db *gorm.DB, orgID, design, color, size string) int {
	t.Helper()
	p, err := catalogrepo.FindByOrgAndDesign(db, orgID, design)
	if errors.Is(err, catalogrepo.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("load customer product: %v", err)
	}
	for _, v := range p.Colors {
		if v.Color != color {
			continue
		}
		for _, s := range v.Sizes {
			if s.Size == size {
				return s.CurrentStock
			}
		}
	}
	return 0
}

func countReceivings(t *testing.T, db *gorm.DB, orderID string) int64 {
	t.Helper()
	var n int64
	db.Model(&entity.FactoryReceiving{}).Where("source_order_id = ?", orderID).Count(&n)
	return n
}

func ledgerEntries(t *testing.T, db *gorm.DB, orderID string) []entity.SyncLedgerEntry {
	t.Helper()
	var entries []entity.SyncLedgerEntry
	if err := db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&entries).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	return entries
}

func TestDispatchDirectSync(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50, "L": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
		{Design: "D100", Color: "Red", Size: "L", Quantity: 3, UnitPrice: 100},
	})

	result, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != entity.StatusSynced {
		t.Fatalf("expected synced, got %s", result.Status)
	}

	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("customer stock M = %d, want 5", got)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "L"); got != 3 {
		t.Errorf("customer stock L = %d, want 3", got)
	}
	if n := countReceivings(t, db, "ord1"); n != 1 {
		t.Errorf("receivings = %d, want 1", n)
	}

	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 1 || entries[0].Status != entity.StatusSynced || entries[0].SyncType != entity.SyncTypeCreate {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}

	var order orderentity.WholesaleOrder
	db.First(&order, "id = ?", "ord1")
	if order.SyncStatus != orderentity.SyncStatusSynced || !order.SyncedToCustomer {
		t.Errorf("order projection not updated: %+v", order)
	}
	if order.CurrentSyncEntryID != entries[0].ID {
		t.Errorf("current sync entry id mismatch")
	}
}

func TestDispatchNoBuyerIsSilentNoop(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	seedOrder(t, db, "ord1", "supplier", "9999999999", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})

	result, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != orderentity.SyncStatusNone {
		t.Fatalf("expected none, got %s", result.Status)
	}
	if entries := ledgerEntries(t, db, "ord1"); len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}

	var order orderentity.WholesaleOrder
	db.First(&order, "id = ?", "ord1")
	if order.SyncStatus != orderentity.SyncStatusNone {
		t.Errorf("order sync status = %s, want none", order.SyncStatus)
	}
}

func TestGrouping(t *testing.T) {
	items := []orderentity.OrderItem{
		{Design: "D", Color: "C", Size: "M", Quantity: 3},
		{Design: "D", Color: "C", Size: "L", Quantity: 2},
	}
	groups := groupOrderItems(items)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].Quantities["M"] != 3 || groups[0].Quantities["L"] != 2 {
		t.Errorf("quantities = %v, want M:3 L:2", groups[0].Quantities)
	}
}

func TestManualPreferenceNeverAutoApplies(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 80},
	})

	result, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != entity.StatusPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}

	// 审批前客户库存不得有任何变化
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 0 {
		t.Fatalf("customer stock touched before accept: %d", got)
	}
	if n := countReceivings(t, db, "ord1"); n != 0 {
		t.Fatalf("receivings created before accept: %d", n)
	}

	_, err = engine.Accept(ctx, result.SyncID, Approver{UserID: "cust-admin", Name: "CustAdmin", OrgID: "customer"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("customer stock after accept = %d, want 5", got)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})

	result, _ := engine.Dispatch(ctx, "supplier", "ord1")
	actor := Approver{UserID: "cust-admin", Name: "CustAdmin", OrgID: "customer"}

	if _, err := engine.Accept(ctx, result.SyncID, actor); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := engine.Accept(ctx, result.SyncID, actor); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("second accept: expected ErrAlreadyProcessed, got %v", err)
	}

	// 库存只应用一次
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("customer stock = %d, want 5", got)
	}
}

func TestAcceptRejectsForeignOrg(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	result, _ := engine.Dispatch(ctx, "supplier", "ord1")

	_, err := engine.Accept(ctx, result.SyncID, Approver{UserID: "intruder", Name: "X", OrgID: "other-org"})
	if !errors.Is(err, ErrOrgMismatch) {
		t.Fatalf("expected ErrOrgMismatch, got %v", err)
	}
}

func TestRejectThenResend(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})

	first, _ := engine.Dispatch(ctx, "supplier", "ord1")
	actor := Approver{UserID: "cust-admin", Name: "CustAdmin", OrgID: "customer"}

	if _, err := engine.Reject(ctx, first.SyncID, "wrong quantities", actor); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// 已拒绝后重复处理被挡住
	if _, err := engine.Reject(ctx, first.SyncID, "again", actor); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	second, err := engine.Resend(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if second.Status != entity.StatusPending {
		t.Fatalf("resend status = %s, want pending", second.Status)
	}

	// 历史条目留痕：一条cancelled（原rejected）一条新pending，无删除
	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	byStatus := map[string]int{}
	for _, e := range entries {
		byStatus[e.Status]++
	}
	if byStatus[entity.StatusCancelled] != 1 || byStatus[entity.StatusPending] != 1 {
		t.Errorf("statuses = %v, want 1 cancelled + 1 pending", byStatus)
	}

	// 再次重发被挡住（已有pending）
	if _, err := engine.Resend(ctx, "supplier", "ord1"); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}
}

func TestResendRefusedWhenSynced(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if _, err := engine.Resend(ctx, "supplier", "ord1"); !errors.Is(err, ErrAlreadySynced) {
		t.Fatalf("expected ErrAlreadySynced, got %v", err)
	}
}

func TestEditReplayConservation(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	order := seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// 改量 5 → 8
	if err := db.Model(&orderentity.OrderItem{}).
		Where("order_id = ?", order.ID).
		Update("quantity", 8).Error; err != nil {
		t.Fatalf("edit items: %v", err)
	}

	if err := engine.PropagateEdit(ctx, "supplier", "ord1", map[string]interface{}{"quantity": "5->8"}, nil); err != nil {
		t.Fatalf("propagate edit: %v", err)
	}

	// 冲销+重放后镜像库存等于新量，而不是累加
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 8 {
		t.Errorf("customer stock = %d, want 8", got)
	}
	if n := countReceivings(t, db, "ord1"); n != 1 {
		t.Errorf("receivings = %d, want 1 (old deleted, new created)", n)
	}

	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	if entries[0].Status != entity.StatusCancelled {
		t.Errorf("original entry status = %s, want cancelled", entries[0].Status)
	}
	edit := entries[1]
	if edit.SyncType != entity.SyncTypeEdit || edit.Status != entity.StatusSynced || !edit.EditedWithin24 {
		t.Errorf("unexpected edit entry: %+v", edit)
	}
}

func TestEditWindowBoundary(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// 23h59m：窗口内，允许
	db.Model(&orderentity.WholesaleOrder{}).Where("id = ?", "ord1").
		Update("created_at", time.Now().Add(-23*time.Hour-59*time.Minute))
	if err := engine.PropagateEdit(ctx, "supplier", "ord1", nil, nil); err != nil {
		t.Fatalf("edit at 23h59m should succeed: %v", err)
	}

	stockBefore := customerStock(t, db, "customer", "D100", "Red", "M")
	entriesBefore := len(ledgerEntries(t, db, "ord1"))

	// 24h01m：窗口外，拒绝且无任何变更
	db.Model(&orderentity.WholesaleOrder{}).Where("id = ?", "ord1").
		Update("created_at", time.Now().Add(-24*time.Hour-time.Minute))
	if err := engine.PropagateEdit(ctx, "supplier", "ord1", nil, nil); !errors.Is(err, ErrEditWindowExpired) {
		t.Fatalf("expected ErrEditWindowExpired, got %v", err)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != stockBefore {
		t.Errorf("stock changed after refused edit: %d -> %d", stockBefore, got)
	}
	if got := len(ledgerEntries(t, db, "ord1")); got != entriesBefore {
		t.Errorf("ledger changed after refused edit: %d -> %d", entriesBefore, got)
	}
}

func TestDeleteReversal(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50, "L": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
		{Design: "D100", Color: "Red", Size: "L", Quantity: 3},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := engine.PropagateDelete(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("propagate delete: %v", err)
	}

	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 0 {
		t.Errorf("customer stock M = %d, want 0", got)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "L"); got != 0 {
		t.Errorf("customer stock L = %d, want 0", got)
	}
	if n := countReceivings(t, db, "ord1"); n != 0 {
		t.Errorf("receivings = %d, want 0", n)
	}

	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	del := entries[1]
	if del.SyncType != entity.SyncTypeDelete || del.Status != entity.StatusSynced {
		t.Errorf("unexpected delete entry: %+v", del)
	}
	if len(del.ItemsSynced) != 1 || del.ItemsSynced[0].Quantities["M"] != 5 {
		t.Errorf("delete entry should carry reversed payload: %+v", del.ItemsSynced)
	}
}

func TestReversalClampsAtZero(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// 客户侧已自行消耗到2件，冲销扣5只能到0不能为负
	p, err := catalogrepo.FindByOrgAndDesign(db, "customer", "D100")
	if err != nil {
		t.Fatalf("load customer product: %v", err)
	}
	stockID := p.Colors[0].Sizes[0].ID
	db.Exec("UPDATE size_stocks SET current_stock = 2 WHERE id = ?", stockID)

	if err := engine.PropagateDelete(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("propagate delete: %v", err)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 0 {
		t.Errorf("customer stock = %d, want 0 (clamped)", got)
	}
}

func TestDeleteWithNothingAppliedIsNoop(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// 只有pending条目，删除传播无可冲销
	if err := engine.PropagateDelete(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("propagate delete: %v", err)
	}
	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 1 || entries[0].Status != entity.StatusPending {
		t.Errorf("ledger should be untouched: %+v", entries)
	}
}

func TestSkipMissingDesignGroup(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	// D999在供应商侧不存在，该组跳过但D100正常同步
	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
		{Design: "D999", Color: "Blue", Size: "M", Quantity: 2},
	})

	result, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != entity.StatusSynced {
		t.Fatalf("expected synced, got %s", result.Status)
	}

	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("customer stock D100 = %d, want 5", got)
	}
	if got := customerStock(t, db, "customer", "D999", "Blue", "M"); got != 0 {
		t.Errorf("customer stock D999 = %d, want 0", got)
	}

	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 1 || len(entries[0].ItemsSynced) != 1 {
		t.Fatalf("ledger should carry only the applied group: %+v", entries)
	}
}

func TestCustomerCloneIsMinimal(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	// 供应商款号有两个颜色，只订购Red；客户侧克隆不得带上Blue
	sup := testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	blue := sup.Colors[0]
	blue.ID = "v-supplier-D100-Blue"
	blue.Color = "Blue"
	blue.Sizes = nil
	db.Create(&blue)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	p, err := catalogrepo.FindByOrgAndDesign(db, "customer", "D100")
	if err != nil {
		t.Fatalf("customer product missing: %v", err)
	}
	if len(p.Colors) != 1 || p.Colors[0].Color != "Red" {
		t.Errorf("clone should carry only the ordered color, got %+v", p.Colors)
	}
}

func TestConcurrentDispatchAppliesOnce(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
	})

	// 两个并发派发按订单行锁串行化，只有一个生效
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Dispatch(ctx, "supplier", "ord1")
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("successful dispatches = %d, want 1 (errs: %v)", okCount, errs)
	}

	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("customer stock = %d, want 5 (applied once)", got)
	}
	if n := countReceivings(t, db, "ord1"); n != 1 {
		t.Errorf("receivings = %d, want 1", n)
	}
	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 1 || entries[0].Status != entity.StatusSynced {
		t.Fatalf("expected exactly one synced entry, got %+v", entries)
	}
}

func TestConcurrentResendCreatesOneRequest(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	first, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	actor := Approver{UserID: "cust-admin", Name: "CustAdmin", OrgID: "customer"}
	if _, err := engine.Reject(ctx, first.SyncID, "wrong quantities", actor); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// 两个并发重发都看到rejected快照，行锁下复核后只有一个建出新请求
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Resend(ctx, "supplier", "ord1")
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("successful resends = %d, want 1 (errs: %v)", okCount, errs)
	}

	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	byStatus := map[string]int{}
	for _, e := range entries {
		byStatus[e.Status]++
	}
	if byStatus[entity.StatusCancelled] != 1 || byStatus[entity.StatusPending] != 1 {
		t.Errorf("statuses = %v, want 1 cancelled + 1 pending", byStatus)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 0 {
		t.Errorf("customer stock touched before accept: %d", got)
	}
}

func TestDispatchRefusedWhenSyncedMidFlight(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})

	// 持有订单行锁期间订单变为synced，派发方拿到过期快照也必须被挡住
	holder := db.Begin()
	if holder.Error != nil {
		t.Fatalf("begin: %v", holder.Error)
	}
	if _, err := orderrepo.LockOrder(holder, "ord1"); err != nil {
		holder.Rollback()
		t.Fatalf("lock order: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := engine.Dispatch(ctx, "supplier", "ord1")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	if err := orderrepo.UpdateSyncProjection(holder, "ord1", map[string]interface{}{
		"sync_status": orderentity.SyncStatusSynced,
	}); err != nil {
		holder.Rollback()
		t.Fatalf("update projection: %v", err)
	}
	if err := holder.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := <-done; !errors.Is(err, ErrAlreadySynced) {
		t.Fatalf("expected ErrAlreadySynced, got %v", err)
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 0 {
		t.Errorf("customer stock = %d, want 0", got)
	}
	if entries := ledgerEntries(t, db, "ord1"); len(entries) != 0 {
		t.Errorf("ledger entries = %d, want 0", len(entries))
	}
}

func TestEditMutationAtomicWithReplay(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
	})
	if _, err := engine.Dispatch(ctx, "supplier", "ord1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// 订单修改和冲销重放同一事务，传播失败时换行也一起回滚
	mutateErr := errors.New("write conflict")
	err := engine.PropagateEdit(ctx, "supplier", "ord1", nil, func(tx *gorm.DB) error {
		if err := orderrepo.ReplaceOrderItems(tx, "ord1", nil); err != nil {
			return err
		}
		return mutateErr
	})
	if !errors.Is(err, mutateErr) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	var items []orderentity.OrderItem
	if err := db.Where("order_id = ?", "ord1").Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("order items = %d, want 1 (mutation rolled back)", len(items))
	}
	if got := customerStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("customer stock = %d, want 5", got)
	}
	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 1 || entries[0].Status != entity.StatusSynced {
		t.Fatalf("ledger should be untouched, got %+v", entries)
	}
}

func TestAcceptWhenAllDesignsMissing(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedUser(t, db, "cust-admin", "customer", "CustAdmin", "9000000001", "admin")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceManual)

	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D100", Color: "Red", Size: "M", Quantity: 5},
	})
	result, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// 请求发出后供应商删除了款号，审批时无任何可应用内容
	db.Exec("DELETE FROM products WHERE org_id = ?", "supplier")

	actor := Approver{UserID: "cust-admin", Name: "CustAdmin", OrgID: "customer"}
	if _, err := engine.Accept(ctx, result.SyncID, actor); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}

	var entry entity.SyncLedgerEntry
	if err := db.First(&entry, "id = ?", result.SyncID).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Status != entity.StatusFailed || entry.ErrorMessage == "" {
		t.Errorf("entry should be failed with message, got %+v", entry)
	}

	var order orderentity.WholesaleOrder
	db.First(&order, "id = ?", "ord1")
	if order.SyncStatus != orderentity.SyncStatusNone || order.SyncedToCustomer {
		t.Errorf("order should not look synced: status=%s synced_to_customer=%v", order.SyncStatus, order.SyncedToCustomer)
	}
	if n := countReceivings(t, db, "ord1"); n != 0 {
		t.Errorf("receivings = %d, want 0", n)
	}
}

func TestDirectSyncWhenAllDesignsMissing(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", orderentity.SyncPreferenceDirect)

	// 供应商侧没有任何款号，直接同步无内容可应用
	seedOrder(t, db, "ord1", "supplier", "9000000001", []orderentity.OrderItem{
		{Design: "D999", Color: "Blue", Size: "M", Quantity: 2},
	})

	result, err := engine.Dispatch(ctx, "supplier", "ord1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}

	entries := ledgerEntries(t, db, "ord1")
	if len(entries) != 1 || entries[0].Status != entity.StatusFailed {
		t.Fatalf("expected one failed entry, got %+v", entries)
	}

	var order orderentity.WholesaleOrder
	db.First(&order, "id = ?", "ord1")
	if order.SyncStatus != orderentity.SyncStatusNone || order.SyncedToCustomer {
		t.Errorf("order should not look synced: status=%s synced_to_customer=%v", order.SyncStatus, order.SyncedToCustomer)
	}
}
