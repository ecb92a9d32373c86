package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportService 序列号报表（Excel导出、谱系报告归档）
// minioClient 为空时不支持归档
type ReportService struct {
	generation  *SerialGenerationService
	propagation *PropagationService
	minioClient *minio.Client
	bucket      string
	logger      *zap.Logger
}

func NewReportService(
	generation *SerialGenerationService,
	propagation *PropagationService,
	minioClient *minio.Client,
	bucket string,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		generation:  generation,
		propagation: propagation,
		minioClient: minioClient,
		bucket:      bucket,
		logger:      logger,
	}
}

// ExportGeneratedSerials 导出物料的系统序列号
func (s *ReportService) ExportGeneratedSerials(ctx context.Context, partID string, rng *DateRange) (*excelize.File, string, error) {
	items, err := s.generation.GetGeneratedSerials(ctx, partID, rng)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "序列号"
	f.SetSheetName("Sheet1", sheet)
	writeHeader(f, sheet, []string{"序列号", "状态", "格式配置", "工单", "批次", "创建人", "创建时间"})
	for i, item := range items {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.SerialNumber)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.Status)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), deref(item.FormatConfigID))
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), deref(item.WorkOrderID))
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), deref(item.LotNumber))
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), item.CreatedBy)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), item.CreatedAt.Format(time.RFC3339))
	}
	setWidths(f, sheet, []float64{32, 12, 34, 20, 20, 16, 26})

	filename := fmt.Sprintf("serials_%s_%s.xlsx", partID, time.Now().UTC().Format("20060102"))
	return f, filename, nil
}

// ExportLineage 导出序列号谱系（祖先、后代、流转历史三个工作表）
func (s *ReportService) ExportLineage(ctx context.Context, identityID string) (*excelize.File, string, error) {
	lineage, err := s.propagation.GetSerialLineage(ctx, identityID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	writeIdentities(f, "祖先", lineage.Ancestors)
	f.DeleteSheet("Sheet1")
	writeIdentities(f, "后代", lineage.Descendants)

	history := "流转历史"
	f.NewSheet(history)
	writeHeader(f, history, []string{"流转类型", "工序", "工序顺序", "数量", "父序列号", "子序列号", "操作人", "时间"})
	for i, edge := range lineage.PropagationHistory {
		row := i + 2
		f.SetCellValue(history, fmt.Sprintf("A%d", row), edge.PropagationType)
		f.SetCellValue(history, fmt.Sprintf("B%d", row), edge.OperationCode)
		f.SetCellValue(history, fmt.Sprintf("C%d", row), edge.RoutingSequence)
		f.SetCellValue(history, fmt.Sprintf("D%d", row), edge.Quantity)
		f.SetCellValue(history, fmt.Sprintf("E%d", row), strings.Join(edge.ParentIdentityIDs, ","))
		f.SetCellValue(history, fmt.Sprintf("F%d", row), strings.Join(edge.ChildIdentityIDs, ","))
		f.SetCellValue(history, fmt.Sprintf("G%d", row), edge.CreatedBy)
		f.SetCellValue(history, fmt.Sprintf("H%d", row), edge.CreatedAt.Format(time.RFC3339))
	}
	setWidths(f, history, []float64{18, 16, 10, 8, 40, 40, 16, 26})

	filename := fmt.Sprintf("lineage_%s_%s.xlsx", lineage.Identity.SerialNumber, time.Now().UTC().Format("20060102"))
	return f, filename, nil
}

// ArchiveLineageReport 生成谱系报告并上传到对象存储，返回对象名
func (s *ReportService) ArchiveLineageReport(ctx context.Context, identityID string) (string, error) {
	if s.minioClient == nil {
		return "", &ConfigurationError{Message: "object storage is not configured"}
	}
	f, filename, err := s.ExportLineage(ctx, identityID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("write lineage report: %w", err)
	}
	objectName := fmt.Sprintf("lineage/%s/%s", time.Now().UTC().Format("2006/01/02"), filename)
	_, err = s.minioClient.PutObject(ctx, s.bucket, objectName, buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: xlsxContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload lineage report: %w", err)
	}
	s.logger.Info("lineage report archived", zap.String("identity_id", identityID), zap.String("object", objectName))
	return objectName, nil
}

func writeIdentities(f *excelize.File, sheet string, items []entity.SerialIdentity) {
	f.NewSheet(sheet)
	writeHeader(f, sheet, []string{"序列号ID", "序列号", "物料", "来源", "状态"})
	for i, item := range items {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.ID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.SerialNumber)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), item.PartID)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.OriginMethod)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.Status)
	}
	setWidths(f, sheet, []float64{34, 32, 34, 20, 12})
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s1", col)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
}

func setWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
