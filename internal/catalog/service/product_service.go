package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vastraworks/vastra/internal/catalog/entity"
	"github.com/vastraworks/vastra/internal/catalog/repository"
)

// ProductService 款号/库存服务
type ProductService struct {
	repo *repository.ProductRepository
}

// NewProductService 创建款号服务
func NewProductService(repo *repository.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// SizeInput 尺码输入
type SizeInput struct {
	Size         string `json:"size" binding:"required"`
	CurrentStock int    `json:"current_stock" binding:"gte=0"`
	ReorderPoint int    `json:"reorder_point" binding:"gte=0"`
}

// ColorInput 颜色输入
type ColorInput struct {
	Color          string      `json:"color" binding:"required"`
	WholesalePrice float64     `json:"wholesale_price" binding:"gte=0"`
	RetailPrice    float64     `json:"retail_price" binding:"gte=0"`
	Sizes          []SizeInput `json:"sizes" binding:"required,min=1"`
}

// CreateProductRequest 创建款号请求
type CreateProductRequest struct {
	Design      string       `json:"design" binding:"required"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	ImageURL    string       `json:"image_url"`
	Colors      []ColorInput `json:"colors" binding:"required,min=1"`
}

// Create 创建款号
func (s *ProductService) Create(ctx context.Context, orgID string, req *CreateProductRequest) (*entity.Product, error) {
	if existing, err := s.repo.FindByOrgAndDesign(ctx, orgID, req.Design); err == nil && existing != nil {
		return nil, fmt.Errorf("design %s already exists", req.Design)
	}

	now := time.Now()
	p := &entity.Product{
		ID:          uuid.New().String()[:32],
		OrgID:       orgID,
		Design:      req.Design,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, c := range req.Colors {
		variant := entity.ColorVariant{
			ID:             uuid.New().String()[:32],
			ProductID:      p.ID,
			Color:          c.Color,
			WholesalePrice: c.WholesalePrice,
			RetailPrice:    c.RetailPrice,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for _, sz := range c.Sizes {
			variant.Sizes = append(variant.Sizes, entity.SizeStock{
				ID:           uuid.New().String()[:32],
				VariantID:    variant.ID,
				Size:         sz.Size,
				CurrentStock: sz.CurrentStock,
				ReorderPoint: sz.ReorderPoint,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
		p.Colors = append(p.Colors, variant)
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// Get 获取款号详情
func (s *ProductService) Get(ctx context.Context, orgID, id string) (*entity.Product, error) {
	return s.repo.FindByID(ctx, orgID, id)
}

// GetByDesign 按款号编码获取
func (s *ProductService) GetByDesign(ctx context.Context, orgID, design string) (*entity.Product, error) {
	return s.repo.FindByOrgAndDesign(ctx, orgID, design)
}

// List 款号列表
func (s *ProductService) List(ctx context.Context, params repository.ProductListParams) ([]entity.Product, int64, error) {
	return s.repo.List(ctx, params)
}

// GetAlerts 低库存预警
func (s *ProductService) GetAlerts(ctx context.Context, orgID string) ([]entity.SizeStock, error) {
	return s.repo.GetAlerts(ctx, orgID)
}

// Delete 删除款号
func (s *ProductService) Delete(ctx context.Context, orgID, id string) error {
	return s.repo.Delete(ctx, orgID, id)
}

// AdjustStockRequest 手工调整库存请求
type AdjustStockRequest struct {
	Design string `json:"design" binding:"required"`
	Color  string `json:"color" binding:"required"`
	Size   string `json:"size" binding:"required"`
	Delta  int    `json:"delta" binding:"required"`
	Notes  string `json:"notes"`
}

// AdjustStock 手工调整单个尺码库存并记录流水
func (s *ProductService) AdjustStock(ctx context.Context, orgID, userID string, req *AdjustStockRequest) error {
	product, err := s.repo.FindByOrgAndDesign(ctx, orgID, req.Design)
	if err != nil {
		return fmt.Errorf("design not found: %w", err)
	}

	var target *entity.SizeStock
	for i := range product.Colors {
		if product.Colors[i].Color != req.Color {
			continue
		}
		for j := range product.Colors[i].Sizes {
			if product.Colors[i].Sizes[j].Size == req.Size {
				target = &product.Colors[i].Sizes[j]
				break
			}
		}
	}
	if target == nil {
		return fmt.Errorf("size %s/%s/%s not found", req.Design, req.Color, req.Size)
	}
	if req.Delta < 0 && target.CurrentStock+req.Delta < 0 {
		return fmt.Errorf("stock cannot go negative")
	}

	db := s.repo.DB().WithContext(ctx)
	if req.Delta >= 0 {
		if err := repository.AddStock(db, target.ID, req.Delta); err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
	} else {
		if err := repository.RemoveStockClamped(db, target.ID, -req.Delta); err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
	}

	movement := &entity.StockMovement{
		ID:            uuid.New().String()[:32],
		OrgID:         orgID,
		SizeStockID:   target.ID,
		Design:        req.Design,
		Color:         req.Color,
		Size:          req.Size,
		QtyDelta:      req.Delta,
		ReferenceType: "manual",
		Notes:         req.Notes,
		CreatedBy:     userID,
		CreatedAt:     time.Now(),
	}
	return s.repo.CreateMovement(ctx, movement)
}

// ListMovements 库存流水
func (s *ProductService) ListMovements(ctx context.Context, orgID, design string, page, size int) ([]entity.StockMovement, int64, error) {
	return s.repo.ListMovements(ctx, orgID, design, page, size)
}
