package nicepay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func buildTestConfig(baseURL string) *Config {
	return &Config{
		APIBaseURL:  baseURL,
		MerchantID:  "budogt01m",
		MerchantKey: "test-merchant-key",
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if err := ValidateConfig(&Config{APIBaseURL: "https://webapi.nicepay.co.kr"}); err == nil {
		t.Fatalf("expected error for missing merchant_id")
	}
	if err := ValidateConfig(buildTestConfig("https://webapi.nicepay.co.kr")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApproveMissingParameter(t *testing.T) {
	cfg := buildTestConfig("https://webapi.nicepay.co.kr")
	if _, err := Approve(context.Background(), cfg, ApproveInput{Moid: "BG1", Amount: "150000"}); err == nil {
		t.Fatalf("expected error for missing tid")
	}
	if _, err := Approve(context.Background(), cfg, ApproveInput{TID: "tid-1", Amount: "150000"}); err == nil {
		t.Fatalf("expected error for missing moid")
	}
	if _, err := Approve(context.Background(), cfg, ApproveInput{TID: "tid-1", Moid: "BG1"}); err == nil {
		t.Fatalf("expected error for missing amt")
	}
}

func TestApproveSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected post request, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.Form.Get("TID") != "budogt01m01012602280001" {
			t.Fatalf("unexpected tid: %s", r.Form.Get("TID"))
		}
		if r.Form.Get("Moid") != "BG202602280001" {
			t.Fatalf("unexpected moid: %s", r.Form.Get("Moid"))
		}
		if r.Form.Get("TaxFreeAmt") != "0" {
			t.Fatalf("unexpected tax free amt: %s", r.Form.Get("TaxFreeAmt"))
		}
		mid := r.Form.Get("MID")
		amt := r.Form.Get("Amt")
		ediDate := r.Form.Get("EdiDate")
		sum := sha256.Sum256([]byte(mid + amt + ediDate + "test-merchant-key"))
		if r.Form.Get("SignData") != hex.EncodeToString(sum[:]) {
			t.Fatalf("sign data mismatch")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ResultCode": "3001",
			"ResultMsg":  "카드 결제 성공",
			"TID":        r.Form.Get("TID"),
			"Moid":       r.Form.Get("Moid"),
			"Amt":        amt,
		})
	}))
	defer server.Close()

	result, err := Approve(context.Background(), buildTestConfig(server.URL), ApproveInput{
		TID:    "budogt01m01012602280001",
		Moid:   "BG202602280001",
		Amount: "150000",
	})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success result, got code %s", result.ResultCode)
	}
	if result.Moid != "BG202602280001" {
		t.Fatalf("unexpected moid: %s", result.Moid)
	}
}

func TestApproveFailureCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ResultCode": "9999",
			"ResultMsg":  "한도초과",
		})
	}))
	defer server.Close()

	result, err := Approve(context.Background(), buildTestConfig(server.URL), ApproveInput{
		TID:    "tid-1",
		Moid:   "BG1",
		Amount: "150000",
	})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure result")
	}
	if result.ResultMsg != "한도초과" {
		t.Fatalf("unexpected result msg: %s", result.ResultMsg)
	}
}

func TestApproveInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>error</html>"))
	}))
	defer server.Close()

	if _, err := Approve(context.Background(), buildTestConfig(server.URL), ApproveInput{
		TID:    "tid-1",
		Moid:   "BG1",
		Amount: "150000",
	}); err == nil {
		t.Fatalf("expected error for non-json response")
	}
}
