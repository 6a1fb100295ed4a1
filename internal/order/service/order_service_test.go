package service

import (
	"context"
	"errors"
	"testing"
	"time"

	catalogrepo "github.com/vastraworks/vastra/internal/catalog/repository"
	identityrepo "github.com/vastraworks/vastra/internal/identity/repository"
	notifservice "github.com/vastraworks/vastra/internal/notification/service"
	"github.com/vastraworks/vastra/internal/order/entity"
	"github.com/vastraworks/vastra/internal/order/repository"
	syncentity "github.com/vastraworks/vastra/internal/sync/entity"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	syncservice "github.com/vastraworks/vastra/internal/sync/service"
	"github.com/vastraworks/vastra/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestOrderService(t *testing.T) (*OrderService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	orderRepo := repository.NewOrderRepository(db)
	buyerRepo := repository.NewBuyerRepository(db)
	orgRepo := identityrepo.NewOrganizationRepository(db)

	engine := syncservice.NewSyncEngine(
		db,
		syncservice.NewOrderLock(nil, 0),
		syncrepo.NewSyncRepository(db),
		orderRepo,
		buyerRepo,
		identityrepo.NewUserRepository(db),
		orgRepo,
		notifservice.NewNotificationService(db, nil, zap.NewNop()),
		zap.NewNop(),
		24*time.Hour,
	)

	svc := NewOrderService(orderRepo, buyerRepo, orgRepo, engine, zap.NewNop(), 24*time.Hour)
	return svc, db
}

func mirrorStock(t *testing.T, db *gorm.DB, orgID, design, color, size string) int {
	t.Helper()
	p, err := catalogrepo.FindByOrgAndDesign(db, orgID, design)
	if errors.Is(err, catalogrepo.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("load product: %v", err)
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

func TestCreateOrderDispatchesDirectSync(t *testing.T) {
	svc, db := newTestOrderService(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", entity.SyncPreferenceDirect)

	result, err := svc.Create(ctx, "supplier", "user1", &CreateOrderRequest{
		BuyerContact:  "9000000001",
		ChallanNumber: "CH-001",
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 120},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if result.Order.TotalQuantity != 5 || result.Order.TotalAmount != 600 {
		t.Errorf("totals = %d / %.0f, want 5 / 600", result.Order.TotalQuantity, result.Order.TotalAmount)
	}
	if result.Sync == nil || result.Sync.Status != syncentity.StatusSynced {
		t.Fatalf("expected synced dispatch result, got %+v", result.Sync)
	}
	if result.Order.SyncStatus != entity.SyncStatusSynced {
		t.Errorf("order sync status = %s, want synced", result.Order.SyncStatus)
	}
	if got := mirrorStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("mirror stock = %d, want 5", got)
	}
}

func TestCreateOrderAutoCreatesBuyer(t *testing.T) {
	svc, db := newTestOrderService(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")

	result, err := svc.Create(ctx, "supplier", "user1", &CreateOrderRequest{
		BuyerContact: "9111111111",
		BuyerName:    "Walk-in Buyer",
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 2, UnitPrice: 50},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// 无关联客户组织，订单照常创建，同步静默为none
	if result.Sync == nil || result.Sync.Status != entity.SyncStatusNone {
		t.Errorf("expected none dispatch, got %+v", result.Sync)
	}

	b, err := repository.NewBuyerRepository(db).FindByContact(ctx, "supplier", "9111111111")
	if err != nil {
		t.Fatalf("buyer not auto-created: %v", err)
	}
	if b.SyncPreference != entity.SyncPreferenceDirect {
		t.Errorf("auto-created buyer preference = %s, want direct", b.SyncPreference)
	}
}

func TestUpdateOrderPropagatesEdit(t *testing.T) {
	svc, db := newTestOrderService(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", entity.SyncPreferenceDirect)

	created, err := svc.Create(ctx, "supplier", "user1", &CreateOrderRequest{
		BuyerContact: "9000000001",
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, "supplier", created.Order.ID, &UpdateOrderRequest{
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 8, UnitPrice: 100},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TotalQuantity != 8 {
		t.Errorf("total quantity = %d, want 8", updated.TotalQuantity)
	}

	// 镜像库存应等于新量而非累加
	if got := mirrorStock(t, db, "customer", "D100", "Red", "M"); got != 8 {
		t.Errorf("mirror stock = %d, want 8", got)
	}
}

func TestUpdateOrderRefusedOutsideWindow(t *testing.T) {
	svc, db := newTestOrderService(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", entity.SyncPreferenceDirect)

	created, err := svc.Create(ctx, "supplier", "user1", &CreateOrderRequest{
		BuyerContact: "9000000001",
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	db.Model(&entity.WholesaleOrder{}).Where("id = ?", created.Order.ID).
		Update("created_at", time.Now().Add(-25*time.Hour))

	_, err = svc.Update(ctx, "supplier", created.Order.ID, &UpdateOrderRequest{
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 8, UnitPrice: 100},
		},
	})
	if !errors.Is(err, ErrEditWindowExpired) {
		t.Fatalf("expected ErrEditWindowExpired, got %v", err)
	}

	// 整单拒绝：订单行和镜像库存都不变
	order, _ := repository.NewOrderRepository(db).FindByID(ctx, "supplier", created.Order.ID)
	if order.TotalQuantity != 5 {
		t.Errorf("order quantity changed after refused edit: %d", order.TotalQuantity)
	}
	if got := mirrorStock(t, db, "customer", "D100", "Red", "M"); got != 5 {
		t.Errorf("mirror stock changed after refused edit: %d", got)
	}
}

func TestDeleteOrderReversesMirror(t *testing.T) {
	svc, db := newTestOrderService(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedOrg(t, db, "customer", "Customer Retail")
	testutil.SeedProduct(t, db, "supplier", "D100", "Red", map[string]int{"M": 50})
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "customer", entity.SyncPreferenceDirect)

	created, err := svc.Create(ctx, "supplier", "user1", &CreateOrderRequest{
		BuyerContact: "9000000001",
		Items: []OrderItemInput{
			{Design: "D100", Color: "Red", Size: "M", Quantity: 5, UnitPrice: 100},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, "supplier", created.Order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := mirrorStock(t, db, "customer", "D100", "Red", "M"); got != 0 {
		t.Errorf("mirror stock = %d, want 0 after delete", got)
	}
	if _, err := repository.NewOrderRepository(db).FindByID(ctx, "supplier", created.Order.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("order should be gone, got %v", err)
	}

	// 台账保留删除传播记录
	var entries []syncentity.SyncLedgerEntry
	db.Where("order_id = ?", created.Order.ID).Find(&entries)
	if len(entries) != 2 {
		t.Errorf("ledger entries = %d, want 2 (create cancelled + delete)", len(entries))
	}
}

func TestSetBuyerPreferenceValidation(t *testing.T) {
	svc, db := newTestOrderService(t)
	ctx := context.Background()

	testutil.SeedOrg(t, db, "supplier", "Supplier Mills")
	testutil.SeedBuyer(t, db, "supplier", "9000000001", "", entity.SyncPreferenceDirect)

	if _, err := svc.SetBuyerPreference(ctx, "supplier", "9000000001", "auto"); err == nil {
		t.Fatal("expected error for invalid preference")
	}

	b, err := svc.SetBuyerPreference(ctx, "supplier", "9000000001", entity.SyncPreferenceManual)
	if err != nil {
		t.Fatalf("set preference: %v", err)
	}
	if b.SyncPreference != entity.SyncPreferenceManual {
		t.Errorf("preference = %s, want manual", b.SyncPreference)
	}
}
