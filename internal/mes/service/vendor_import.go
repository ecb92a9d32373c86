package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// MaxVendorImportBytes 供应商清单文件大小上限
const MaxVendorImportBytes = 4 << 20

// VendorImportReq 供应商序列号清单导入请求
// VendorName 为默认供应商，清单中的供应商列非空时优先
type VendorImportReq struct {
	PartID     string
	VendorName string
}

// VendorImportRowError 导入失败的行
type VendorImportRowError struct {
	Row     int    `json:"row"`
	Serial  string `json:"serial"`
	Message string `json:"message"`
}

// VendorImportResult 导入结果
type VendorImportResult struct {
	Total    int                    `json:"total"`
	Created  int                    `json:"created"`
	Failed   int                    `json:"failed"`
	Encoding string                 `json:"encoding"`
	Errors   []VendorImportRowError `json:"errors"`
}

// ImportVendorSerials 从供应商随货清单（CSV）批量登记供应商序列号
// 列顺序：序列号, 供应商(可选), 收货日期(可选, YYYY-MM-DD)；首行为表头时跳过
// 非UTF-8内容按GBK解码；逐行登记，单行失败不影响其他行
func (s *VendorSerialService) ImportVendorSerials(ctx context.Context, req VendorImportReq, r io.Reader, actor string) (*VendorImportResult, error) {
	if _, err := s.catalog.GetPart(ctx, req.PartID); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxVendorImportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read vendor manifest: %w", err)
	}
	if len(data) > MaxVendorImportBytes {
		return nil, validationf("vendor manifest exceeds %d bytes", MaxVendorImportBytes)
	}

	res := &VendorImportResult{Encoding: "utf-8", Errors: []VendorImportRowError{}}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
		if err != nil {
			return nil, validationf("vendor manifest is neither UTF-8 nor GBK: %v", err)
		}
		data = decoded
		res.Encoding = "gbk"
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, validationf("vendor manifest row %d: %v", row, err)
		}
		if row == 1 && isManifestHeader(record) {
			continue
		}
		serial := strings.TrimSpace(field(record, 0))
		if serial == "" {
			continue
		}
		res.Total++

		item := ReceiveVendorSerialReq{
			VendorSerialNumber: serial,
			VendorName:         req.VendorName,
			PartID:             req.PartID,
		}
		if v := strings.TrimSpace(field(record, 1)); v != "" {
			item.VendorName = v
		}
		if d := strings.TrimSpace(field(record, 2)); d != "" {
			received, err := time.Parse("2006-01-02", d)
			if err != nil {
				res.fail(row, serial, fmt.Sprintf("invalid received date %q", d))
				continue
			}
			item.ReceivedDate = &received
		}
		if msg := checkVendorFormat(serial); msg != "" {
			res.fail(row, serial, msg)
			continue
		}
		if _, err := s.ReceiveVendorSerial(ctx, item, actor); err != nil {
			if !IsValidation(err) && !IsConflict(err) {
				return nil, fmt.Errorf("import row %d: %w", row, err)
			}
			res.fail(row, serial, err.Error())
			continue
		}
		res.Created++
	}

	s.logger.Info("vendor manifest imported",
		zap.String("part_id", req.PartID),
		zap.String("encoding", res.Encoding),
		zap.Int("created", res.Created),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *VendorImportResult) fail(row int, serial, msg string) {
	r.Failed++
	r.Errors = append(r.Errors, VendorImportRowError{Row: row, Serial: serial, Message: msg})
}

func isManifestHeader(record []string) bool {
	switch strings.ToLower(strings.TrimSpace(field(record, 0))) {
	case "vendor_serial_number", "serial", "serial_number", "序列号", "供应商序列号":
		return true
	}
	return false
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
