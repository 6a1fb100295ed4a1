package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
)

// UploadService 送货单附件存储服务
type UploadService struct {
	minioClient *minio.Client
	bucketName  string
	orderRepo   *orderrepo.OrderRepository
}

// NewUploadService 创建上传服务
func NewUploadService(minioClient *minio.Client, bucketName string, orderRepo *orderrepo.OrderRepository) *UploadService {
	return &UploadService{
		minioClient: minioClient,
		bucketName:  bucketName,
		orderRepo:   orderRepo,
	}
}

// UploadChallan 上传订单送货单并回写订单
func (s *UploadService) UploadChallan(ctx context.Context, orgID, orderID string, reader io.Reader, fileName string, fileSize int64, contentType string) (string, error) {
	order, err := s.orderRepo.FindByID(ctx, orgID, orderID)
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("challans/%s/%s%s", time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))

	if s.minioClient == nil {
		return "", fmt.Errorf("storage not configured")
	}
	if _, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload challan: %w", err)
	}

	order.ChallanFile = objectName
	order.Items = nil
	order.UpdatedAt = time.Now()
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return "", fmt.Errorf("attach challan: %w", err)
	}
	return objectName, nil
}

// DownloadChallan 下载订单送货单
func (s *UploadService) DownloadChallan(ctx context.Context, orgID, orderID string) (io.ReadCloser, string, error) {
	order, err := s.orderRepo.FindByID(ctx, orgID, orderID)
	if err != nil {
		return nil, "", err
	}
	if order.ChallanFile == "" {
		return nil, "", fmt.Errorf("order has no challan file")
	}
	if s.minioClient == nil {
		return nil, "", fmt.Errorf("storage not configured")
	}

	object, err := s.minioClient.GetObject(ctx, s.bucketName, order.ChallanFile, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object: %w", err)
	}
	return object, filepath.Base(order.ChallanFile), nil
}
