package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	catalogentity "github.com/vastraworks/vastra/internal/catalog/entity"
	catalogrepo "github.com/vastraworks/vastra/internal/catalog/repository"
	orderentity "github.com/vastraworks/vastra/internal/order/entity"
	"github.com/vastraworks/vastra/internal/sync/entity"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errSkipGroup 供应商侧款号缺失，该分组跳过不算失败
var errSkipGroup = errors.New("design not found on supplier side")

// groupOrderItems 按(款号,颜色)聚合订单行为尺码数量表
// 同一(款号,颜色)的多条尺码行合并成一组，保持首次出现顺序
func groupOrderItems(items []orderentity.OrderItem) entity.SyncItems {
	var groups entity.SyncItems
	index := make(map[string]int)
	for _, it := range items {
		key := it.Design + "\x00" + it.Color
		if pos, ok := index[key]; ok {
			groups[pos].Quantities[it.Size] += it.Quantity
			continue
		}
		index[key] = len(groups)
		groups = append(groups, entity.SyncItem{
			Design:     it.Design,
			Color:      it.Color,
			UnitPrice:  it.UnitPrice,
			Quantities: map[string]int{it.Size: it.Quantity},
		})
	}
	return groups
}

// receivingRef 收货记录的回溯信息
type receivingRef struct {
	OrderID       string
	LedgerEntryID string
	SupplierOrgID string
	SupplierName  string
	ChallanNumber string
}

// applyGroups 将分组载荷应用到客户库存
// 每组：确保客户侧款号/颜色/尺码存在（缺失则零库存克隆），建收货记录，增量入库
// 返回实际应用的分组和收货记录id；供应商侧无此款号的分组跳过并记日志
func (e *SyncEngine) applyGroups(tx *gorm.DB, customerOrgID string, items entity.SyncItems, ref receivingRef) (entity.SyncItems, entity.StringList, error) {
	var applied entity.SyncItems
	var receivingIDs entity.StringList

	for _, item := range items {
		recID, err := e.applyGroup(tx, customerOrgID, item, ref)
		if errors.Is(err, errSkipGroup) {
			e.logger.Warn("sync group skipped",
				zap.String("order_id", ref.OrderID),
				zap.String("design", item.Design),
				zap.String("color", item.Color))
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		applied = append(applied, item)
		receivingIDs = append(receivingIDs, recID)
	}
	return applied, receivingIDs, nil
}

func (e *SyncEngine) applyGroup(tx *gorm.DB, customerOrgID string, item entity.SyncItem, ref receivingRef) (string, error) {
	supplierProduct, err := catalogrepo.FindByOrgAndDesign(tx, ref.SupplierOrgID, item.Design)
	if errors.Is(err, catalogrepo.ErrNotFound) {
		return "", errSkipGroup
	}
	if err != nil {
		return "", fmt.Errorf("load supplier product: %w", err)
	}

	sizeStocks, err := e.ensureCustomerStocks(tx, supplierProduct, customerOrgID, item)
	if err != nil {
		return "", err
	}

	now := time.Now()
	rec := &entity.FactoryReceiving{
		ID:            uuid.New().String()[:32],
		OrgID:         customerOrgID,
		SourceType:    entity.SourceTypeSupplierSync,
		SourceOrderID: ref.OrderID,
		LedgerEntryID: ref.LedgerEntryID,
		SupplierOrgID: ref.SupplierOrgID,
		SupplierName:  ref.SupplierName,
		ChallanNumber: ref.ChallanNumber,
		Design:        item.Design,
		Color:         item.Color,
		Quantities:    quantitiesToJSONB(item.Quantities),
		UnitPrice:     item.UnitPrice,
		IsReadOnly:    true,
		ReceivedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.Create(rec).Error; err != nil {
		return "", fmt.Errorf("create receiving: %w", err)
	}

	for size, qty := range item.Quantities {
		stockID := sizeStocks[size]
		if err := catalogrepo.AddStock(tx, stockID, qty); err != nil {
			return "", fmt.Errorf("add stock %s/%s/%s: %w", item.Design, item.Color, size, err)
		}
		movement := &catalogentity.StockMovement{
			ID:            uuid.New().String()[:32],
			OrgID:         customerOrgID,
			SizeStockID:   stockID,
			Design:        item.Design,
			Color:         item.Color,
			Size:          size,
			QtyDelta:      qty,
			ReferenceType: "supplier-sync",
			ReferenceID:   ref.LedgerEntryID,
			CreatedAt:     now,
		}
		if err := tx.Create(movement).Error; err != nil {
			return "", fmt.Errorf("record movement: %w", err)
		}
	}
	return rec.ID, nil
}

// ensureCustomerStocks 确保客户侧款号/颜色/尺码齐全，返回尺码到库存行id的映射
// 克隆只带本次订购的颜色，其余颜色不复制；克隆出的库存一律为0
func (e *SyncEngine) ensureCustomerStocks(tx *gorm.DB, supplierProduct *catalogentity.Product, customerOrgID string, item entity.SyncItem) (map[string]string, error) {
	now := time.Now()

	product, err := catalogrepo.FindByOrgAndDesign(tx, customerOrgID, item.Design)
	if errors.Is(err, catalogrepo.ErrNotFound) {
		product = &catalogentity.Product{
			ID:          uuid.New().String()[:32],
			OrgID:       customerOrgID,
			Design:      supplierProduct.Design,
			Description: supplierProduct.Description,
			Category:    supplierProduct.Category,
			ImageURL:    supplierProduct.ImageURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(product).Error; err != nil {
			return nil, fmt.Errorf("clone product: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load customer product: %w", err)
	}

	var variant *catalogentity.ColorVariant
	for i := range product.Colors {
		if product.Colors[i].Color == item.Color {
			variant = &product.Colors[i]
			break
		}
	}
	if variant == nil {
		variant = e.cloneVariant(supplierProduct, product.ID, item)
		variant.CreatedAt = now
		variant.UpdatedAt = now
		if err := tx.Create(variant).Error; err != nil {
			return nil, fmt.Errorf("clone color variant: %w", err)
		}
	}

	stocks := make(map[string]string, len(item.Quantities))
	for i := range variant.Sizes {
		stocks[variant.Sizes[i].Size] = variant.Sizes[i].ID
	}
	for size := range item.Quantities {
		if _, ok := stocks[size]; ok {
			continue
		}
		ss := &catalogentity.SizeStock{
			ID:        uuid.New().String()[:32],
			VariantID: variant.ID,
			Size:      size,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(ss).Error; err != nil {
			return nil, fmt.Errorf("create size stock: %w", err)
		}
		stocks[size] = ss.ID
	}
	return stocks, nil
}

// cloneVariant 从供应商款号克隆颜色变体（库存归零）
// 供应商侧无此颜色时按订单行最小化构造
func (e *SyncEngine) cloneVariant(supplierProduct *catalogentity.Product, customerProductID string, item entity.SyncItem) *catalogentity.ColorVariant {
	variant := &catalogentity.ColorVariant{
		ID:             uuid.New().String()[:32],
		ProductID:      customerProductID,
		Color:          item.Color,
		WholesalePrice: item.UnitPrice,
	}
	for i := range supplierProduct.Colors {
		src := &supplierProduct.Colors[i]
		if src.Color != item.Color {
			continue
		}
		variant.WholesalePrice = src.WholesalePrice
		variant.RetailPrice = src.RetailPrice
		for _, sz := range src.Sizes {
			variant.Sizes = append(variant.Sizes, catalogentity.SizeStock{
				ID:        uuid.New().String()[:32],
				VariantID: variant.ID,
				Size:      sz.Size,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			})
		}
		break
	}
	return variant
}

// reverseApplied 冲销一条已应用的台账条目
// 逐尺码扣回（下限0），删除全部关联收货记录；客户侧记录已不在时跳过并记日志
func (e *SyncEngine) reverseApplied(tx *gorm.DB, entry *entity.SyncLedgerEntry) error {
	now := time.Now()
	for _, item := range entry.ItemsSynced {
		product, err := catalogrepo.FindByOrgAndDesign(tx, entry.CustomerOrgID, item.Design)
		if errors.Is(err, catalogrepo.ErrNotFound) {
			e.logger.Warn("reversal target missing",
				zap.String("entry_id", entry.ID),
				zap.String("design", item.Design))
			continue
		}
		if err != nil {
			return fmt.Errorf("load customer product for reversal: %w", err)
		}

		var variant *catalogentity.ColorVariant
		for i := range product.Colors {
			if product.Colors[i].Color == item.Color {
				variant = &product.Colors[i]
				break
			}
		}
		if variant == nil {
			continue
		}

		stocks := make(map[string]string, len(variant.Sizes))
		for i := range variant.Sizes {
			stocks[variant.Sizes[i].Size] = variant.Sizes[i].ID
		}
		for size, qty := range item.Quantities {
			stockID, ok := stocks[size]
			if !ok {
				continue
			}
			if err := catalogrepo.RemoveStockClamped(tx, stockID, qty); err != nil {
				return fmt.Errorf("reverse stock %s/%s/%s: %w", item.Design, item.Color, size, err)
			}
			movement := &catalogentity.StockMovement{
				ID:            uuid.New().String()[:32],
				OrgID:         entry.CustomerOrgID,
				SizeStockID:   stockID,
				Design:        item.Design,
				Color:         item.Color,
				Size:          size,
				QtyDelta:      -qty,
				ReferenceType: "supplier-sync",
				ReferenceID:   entry.ID,
				Notes:         "reversal",
				CreatedAt:     now,
			}
			if err := tx.Create(movement).Error; err != nil {
				return fmt.Errorf("record reversal movement: %w", err)
			}
		}
	}

	if err := syncrepo.DeleteReceivings(tx, entry.ReceivingIDs); err != nil {
		return fmt.Errorf("delete receivings: %w", err)
	}
	return nil
}

func quantitiesToJSONB(q map[string]int) entity.JSONB {
	out := make(entity.JSONB, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
