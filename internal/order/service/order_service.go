package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	identityrepo "github.com/vastraworks/vastra/internal/identity/repository"
	"github.com/vastraworks/vastra/internal/order/entity"
	"github.com/vastraworks/vastra/internal/order/repository"
	syncservice "github.com/vastraworks/vastra/internal/sync/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrEditWindowExpired 订单超出编辑窗口
var ErrEditWindowExpired = syncservice.ErrEditWindowExpired

// OrderService 批发订单服务
// 创建/编辑/删除订单后由同步引擎向客户侧传播
type OrderService struct {
	orderRepo  *repository.OrderRepository
	buyerRepo  *repository.BuyerRepository
	orgRepo    *identityrepo.OrganizationRepository
	engine     *syncservice.SyncEngine
	logger     *zap.Logger
	editWindow time.Duration
}

func NewOrderService(
	orderRepo *repository.OrderRepository,
	buyerRepo *repository.BuyerRepository,
	orgRepo *identityrepo.OrganizationRepository,
	engine *syncservice.SyncEngine,
	logger *zap.Logger,
	editWindow time.Duration,
) *OrderService {
	if editWindow <= 0 {
		editWindow = 24 * time.Hour
	}
	return &OrderService{
		orderRepo:  orderRepo,
		buyerRepo:  buyerRepo,
		orgRepo:    orgRepo,
		engine:     engine,
		logger:     logger,
		editWindow: editWindow,
	}
}

// OrderItemInput 订单行输入
type OrderItemInput struct {
	Design    string  `json:"design" binding:"required"`
	Color     string  `json:"color" binding:"required"`
	Size      string  `json:"size" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" binding:"gte=0"`
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	BuyerContact  string           `json:"buyer_contact" binding:"required"`
	BuyerName     string           `json:"buyer_name"`
	ChallanNumber string           `json:"challan_number"`
	Notes         string           `json:"notes"`
	Items         []OrderItemInput `json:"items" binding:"required,min=1"`
}

// CreateOrderResult 创建订单结果
type CreateOrderResult struct {
	Order *entity.WholesaleOrder      `json:"order"`
	Sync  *syncservice.DispatchResult `json:"sync,omitempty"`
}

// Create 创建订单并触发同步
// 同步失败不影响订单创建，只记日志
func (s *OrderService) Create(ctx context.Context, orgID, userID string, req *CreateOrderRequest) (*CreateOrderResult, error) {
	now := time.Now()
	order := &entity.WholesaleOrder{
		ID:            uuid.New().String()[:32],
		OrgID:         orgID,
		BuyerContact:  req.BuyerContact,
		BuyerName:     req.BuyerName,
		ChallanNumber: req.ChallanNumber,
		Notes:         req.Notes,
		SyncStatus:    entity.SyncStatusNone,
		CreatedBy:     userID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.Items, order.TotalAmount, order.TotalQuantity = buildItems(order.ID, req.Items, now)

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.ensureBuyer(ctx, orgID, req.BuyerContact, req.BuyerName)

	result, err := s.engine.Dispatch(ctx, orgID, order.ID)
	if err != nil {
		s.logger.Warn("sync dispatch failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		result = nil
	}

	created, err := s.orderRepo.FindByID(ctx, orgID, order.ID)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: created, Sync: result}, nil
}

// ensureBuyer 买家目录缺失时自动建档（未关联客户组织，默认直接同步）
func (s *OrderService) ensureBuyer(ctx context.Context, orgID, contact, name string) {
	_, err := s.buyerRepo.FindByContact(ctx, orgID, contact)
	if err == nil {
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return
	}
	now := time.Now()
	b := &entity.BuyerLink{
		ID:             uuid.New().String()[:32],
		OrgID:          orgID,
		Contact:        contact,
		Name:           name,
		SyncPreference: entity.SyncPreferenceDirect,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cerr := s.buyerRepo.Create(ctx, b); cerr != nil {
		s.logger.Warn("buyer auto-create failed",
			zap.String("contact", contact),
			zap.Error(cerr))
	}
}

func buildItems(orderID string, inputs []OrderItemInput, now time.Time) ([]entity.OrderItem, float64, int) {
	var items []entity.OrderItem
	var amount float64
	var qty int
	for _, in := range inputs {
		items = append(items, entity.OrderItem{
			ID:        uuid.New().String()[:32],
			OrderID:   orderID,
			Design:    in.Design,
			Color:     in.Color,
			Size:      in.Size,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			CreatedAt: now,
		})
		amount += float64(in.Quantity) * in.UnitPrice
		qty += in.Quantity
	}
	return items, amount, qty
}

// Get 订单详情
func (s *OrderService) Get(ctx context.Context, orgID, id string) (*entity.WholesaleOrder, error) {
	return s.orderRepo.FindByID(ctx, orgID, id)
}

// List 订单列表
func (s *OrderService) List(ctx context.Context, params repository.OrderListParams) ([]entity.WholesaleOrder, int64, error) {
	return s.orderRepo.List(ctx, params)
}

// UpdateOrderRequest 编辑订单请求
type UpdateOrderRequest struct {
	BuyerName     string           `json:"buyer_name"`
	ChallanNumber string           `json:"challan_number"`
	Notes         string           `json:"notes"`
	Items         []OrderItemInput `json:"items" binding:"required,min=1"`
}

// Update 编辑订单并传播变更
// 窗口按订单创建时间计算，超窗整单拒绝编辑，库存和台账不变
// 换行、改字段和冲销重放在引擎事务里一起提交，传播失败订单保持原样
func (s *OrderService) Update(ctx context.Context, orgID, id string, req *UpdateOrderRequest) (*entity.WholesaleOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if time.Since(order.CreatedAt) > s.editWindow {
		return nil, ErrEditWindowExpired
	}

	now := time.Now()
	items, amount, qty := buildItems(order.ID, req.Items, now)

	changes := map[string]interface{}{
		"previous_total_quantity": order.TotalQuantity,
		"previous_total_amount":   order.TotalAmount,
		"previous_items_count":    len(order.Items),
		"new_total_quantity":      qty,
		"new_total_amount":        amount,
		"new_items_count":         len(items),
	}

	fields := map[string]interface{}{
		"notes":          req.Notes,
		"total_amount":   amount,
		"total_quantity": qty,
		"updated_at":     now,
	}
	if req.BuyerName != "" {
		fields["buyer_name"] = req.BuyerName
	}
	if req.ChallanNumber != "" {
		fields["challan_number"] = req.ChallanNumber
	}

	err = s.engine.PropagateEdit(ctx, orgID, order.ID, changes, func(tx *gorm.DB) error {
		if err := repository.ReplaceOrderItems(tx, order.ID, items); err != nil {
			return fmt.Errorf("replace items: %w", err)
		}
		return repository.UpdateOrderFields(tx, order.ID, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.orderRepo.FindByID(ctx, orgID, id)
}

// Delete 删除订单，先冲销已同步的库存
func (s *OrderService) Delete(ctx context.Context, orgID, id string) error {
	if _, err := s.orderRepo.FindByID(ctx, orgID, id); err != nil {
		return err
	}
	if err := s.engine.PropagateDelete(ctx, orgID, id); err != nil {
		return err
	}
	return s.orderRepo.Delete(ctx, orgID, id)
}

// ============================================================
// 买家目录
// ============================================================

// BuyerRequest 买家建档/更新请求
type BuyerRequest struct {
	Contact        string `json:"contact" binding:"required"`
	Name           string `json:"name"`
	SyncPreference string `json:"sync_preference" binding:"omitempty,oneof=direct manual"`
}

// CreateBuyer 买家建档，并尝试按联系方式关联客户组织
func (s *OrderService) CreateBuyer(ctx context.Context, orgID string, req *BuyerRequest) (*entity.BuyerLink, error) {
	if existing, err := s.buyerRepo.FindByContact(ctx, orgID, req.Contact); err == nil && existing != nil {
		return nil, fmt.Errorf("buyer %s already exists", req.Contact)
	}

	pref := req.SyncPreference
	if pref == "" {
		pref = entity.SyncPreferenceDirect
	}
	now := time.Now()
	b := &entity.BuyerLink{
		ID:             uuid.New().String()[:32],
		OrgID:          orgID,
		Contact:        req.Contact,
		Name:           req.Name,
		SyncPreference: pref,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if org, err := s.orgRepo.FindByUserPhone(ctx, req.Contact); err == nil && org.ID != orgID {
		b.CustomerOrgID = org.ID
	}
	if err := s.buyerRepo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create buyer: %w", err)
	}
	return b, nil
}

// ListBuyers 买家列表
func (s *OrderService) ListBuyers(ctx context.Context, orgID, keyword string, page, size int) ([]entity.BuyerLink, int64, error) {
	return s.buyerRepo.List(ctx, orgID, keyword, page, size)
}

// SetBuyerPreference 设置买家同步偏好
func (s *OrderService) SetBuyerPreference(ctx context.Context, orgID, contact, preference string) (*entity.BuyerLink, error) {
	if preference != entity.SyncPreferenceDirect && preference != entity.SyncPreferenceManual {
		return nil, fmt.Errorf("invalid sync preference %q", preference)
	}
	b, err := s.buyerRepo.FindByContact(ctx, orgID, contact)
	if err != nil {
		return nil, err
	}
	b.SyncPreference = preference
	b.UpdatedAt = time.Now()
	if err := s.buyerRepo.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update buyer: %w", err)
	}
	return b, nil
}

// LinkBuyer 手工关联买家到客户组织
func (s *OrderService) LinkBuyer(ctx context.Context, orgID, contact string) (*entity.BuyerLink, error) {
	b, err := s.buyerRepo.FindByContact(ctx, orgID, contact)
	if err != nil {
		return nil, err
	}
	org, err := s.orgRepo.FindByUserPhone(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("no registered organization for contact %s", contact)
	}
	if org.ID == orgID {
		return nil, fmt.Errorf("cannot link buyer to own organization")
	}
	if err := s.buyerRepo.LinkCustomerOrg(ctx, orgID, contact, org.ID); err != nil {
		return nil, err
	}
	b.CustomerOrgID = org.ID
	return b, nil
}
