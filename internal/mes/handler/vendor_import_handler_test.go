package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
)

func multipartRequest(t *testing.T, path string, fields map[string]string, file []byte, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "manifest.csv")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestVendorSerialImport(t *testing.T) {
	env, _ := setupHandlerTest(t)
	token := testutil.DefaultTestToken()
	part := testutil.SeedPart(t, env.DB, "VP-IMP", nil)

	req := multipartRequest(t, "/api/v1/mes/vendor-serials/import",
		map[string]string{"part_id": part.ID, "vendor_name": "ACME"},
		[]byte("vendor_serial_number,vendor_name,received_date\nI-1,,\nI-2,,2025-10-31\nI-1,,\n"), token)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Total   int `json:"total"`
			Created int `json:"created"`
			Failed  int `json:"failed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Total != 3 || resp.Data.Created != 2 || resp.Data.Failed != 1 {
		t.Errorf("Expected 3/2/1, got %+v", resp.Data)
	}

	// 缺少文件
	req = multipartRequest(t, "/api/v1/mes/vendor-serials/import",
		map[string]string{"part_id": part.ID}, nil, token)
	w = httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without file, got %d: %s", w.Code, w.Body.String())
	}

	req = multipartRequest(t, "/api/v1/mes/vendor-serials/import",
		map[string]string{"part_id": "missing"}, []byte("I-9\n"), token)
	w = httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown part, got %d: %s", w.Code, w.Body.String())
	}
}
