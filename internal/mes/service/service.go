package service

import (
	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services MES服务集合
type Services struct {
	Catalog      *PartCatalog
	Audit        *AuditService
	Generation   *SerialGenerationService
	VendorSerial *VendorSerialService
	Placeholder  *PlaceholderService
	Propagation  *PropagationService
	Identity     *IdentityService
	Report       *ReportService
}

// NewServices 创建服务集合，rdb 和 MinIO 均为可选
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("MinIO unavailable, lineage archival disabled", zap.Error(err))
			minioClient = nil
		}
	}

	catalog := NewPartCatalog(repos.Part, rdb, cfg.MES.PartCacheTTL, logger.Named("catalog"))
	audit := NewAuditService(repos.AuditEvent)
	generation := NewSerialGenerationService(repos, catalog, audit, cfg.MES.MaxBatchSize, cfg.MES.DefaultSiteCode, logger.Named("generation"))
	propagation := NewPropagationService(repos, audit, cfg.MES.LineageMaxDepth, logger.Named("propagation"))

	return &Services{
		Catalog:      catalog,
		Audit:        audit,
		Generation:   generation,
		VendorSerial: NewVendorSerialService(repos, catalog, audit, propagation, logger.Named("vendor")),
		Placeholder:  NewPlaceholderService(repos, catalog, audit, cfg.MES.MaxBatchSize, logger.Named("placeholder")),
		Propagation:  propagation,
		Identity:     NewIdentityService(repos, audit, logger.Named("identity")),
		Report:       NewReportService(generation, propagation, minioClient, cfg.MinIO.Bucket, logger.Named("report")),
	}
}
