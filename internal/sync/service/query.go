package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vastraworks/vastra/internal/sync/entity"
	"github.com/xuri/excelize/v2"
)

// ListPending 客户侧待审批队列
func (e *SyncEngine) ListPending(ctx context.Context, customerOrgID string) ([]entity.SyncLedgerEntry, error) {
	return e.syncRepo.ListPending(ctx, customerOrgID)
}

// ReceivedOrder 按来源订单聚合的收货视图
type ReceivedOrder struct {
	OrderID       string                    `json:"order_id"`
	SupplierName  string                    `json:"supplier_name"`
	ChallanNumber string                    `json:"challan_number"`
	ReceivedAt    time.Time                 `json:"received_at"`
	Items         []entity.FactoryReceiving `json:"items"`
}

// ReceivedSummary 客户侧收货汇总
type ReceivedSummary struct {
	Orders      []ReceivedOrder `json:"orders"`
	TotalOrders int             `json:"total_orders"`
	TotalItems  int             `json:"total_items"`
}

// ListReceived 客户侧从供应商收到的记录，按来源订单分组
func (e *SyncEngine) ListReceived(ctx context.Context, customerOrgID string) (*ReceivedSummary, error) {
	receivings, err := e.syncRepo.ListReceivings(ctx, customerOrgID)
	if err != nil {
		return nil, err
	}

	var orders []ReceivedOrder
	index := make(map[string]int)
	for _, rec := range receivings {
		pos, ok := index[rec.SourceOrderID]
		if !ok {
			pos = len(orders)
			index[rec.SourceOrderID] = pos
			orders = append(orders, ReceivedOrder{
				OrderID:       rec.SourceOrderID,
				SupplierName:  rec.SupplierName,
				ChallanNumber: rec.ChallanNumber,
				ReceivedAt:    rec.ReceivedAt,
			})
		}
		orders[pos].Items = append(orders[pos].Items, rec)
	}

	return &ReceivedSummary{
		Orders:      orders,
		TotalOrders: len(orders),
		TotalItems:  len(receivings),
	}, nil
}

// LogStats 台账统计
type LogStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Synced    int `json:"synced"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
}

// SupplierLogsResult 供应商台账查询结果
type SupplierLogsResult struct {
	Logs  []entity.SyncLedgerEntry `json:"logs"`
	Stats LogStats                 `json:"stats"`
}

// dateRangeSince 解析时间范围参数，空串表示不过滤
func dateRangeSince(dateRange string, now time.Time) (*time.Time, error) {
	switch dateRange {
	case "":
		return nil, nil
	case "today":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &start, nil
	case "7days":
		start := now.AddDate(0, 0, -7)
		return &start, nil
	case "30days":
		start := now.AddDate(0, 0, -30)
		return &start, nil
	}
	return nil, fmt.Errorf("invalid date range %q", dateRange)
}

// SupplierLogs 供应商侧全部台账（管理端视图）
func (e *SyncEngine) SupplierLogs(ctx context.Context, supplierOrgID, dateRange string) (*SupplierLogsResult, error) {
	since, err := dateRangeSince(dateRange, time.Now())
	if err != nil {
		return nil, err
	}

	logs, err := e.syncRepo.ListBySupplier(ctx, supplierOrgID, since)
	if err != nil {
		return nil, err
	}

	stats := LogStats{Total: len(logs)}
	for _, l := range logs {
		switch l.Status {
		case entity.StatusPending:
			stats.Pending++
		case entity.StatusSynced:
			stats.Synced++
		case entity.StatusAccepted:
			stats.Accepted++
		case entity.StatusRejected:
			stats.Rejected++
		case entity.StatusCancelled:
			stats.Cancelled++
		}
	}
	return &SupplierLogsResult{Logs: logs, Stats: stats}, nil
}

// ExportSupplierLogs 导出供应商台账为xlsx
func (e *SyncEngine) ExportSupplierLogs(ctx context.Context, supplierOrgID, dateRange string) (*excelize.File, error) {
	result, err := e.SupplierLogs(ctx, supplierOrgID, dateRange)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "SyncLogs"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Sync ID", "Order ID", "Type", "Status", "Customer Org", "Items", "Quantity", "Responded By", "Created At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, l := range result.Logs {
		values := []interface{}{
			l.ID,
			l.OrderID,
			l.SyncType,
			l.Status,
			l.CustomerOrgID,
			len(l.ItemsSynced),
			l.ItemsSynced.TotalQuantity(),
			l.ResponderName,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return f, nil
}
