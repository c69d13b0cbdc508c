package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bloodlink/internal/config"
	"bloodlink/internal/infra/crypto"
	"bloodlink/internal/infra/ledger/memledger"

	"github.com/gin-gonic/gin"
)

const (
	testAdminKey   = "test-admin-key"
	testAdminAddr  = "0x00000000000000000000000000000000000000ee"
	testDonorAddr  = "0x4444444444444444444444444444444444444444"
	testDonor2Addr = "0x5555555555555555555555555555555555555555"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		AuthMode:           "none",
		AdminAPIKey:        testAdminKey,
		LedgerAdminAddress: testAdminAddr,
	}
	return NewServerWithDeps(cfg, ServerDeps{})
}

func doJSON(t *testing.T, s *Server, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = encoded
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.r.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v: %s", err, strings.TrimSpace(w.Body.String()))
	}
}

func submitFile(t *testing.T, s *Server, address string, fileBytes []byte) certificateResponse {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/v1/certificates", submitRequest{
		DonorID:        "donor-1",
		ClaimedAddress: address,
		FileName:       "cert.pdf",
		MediaType:      "application/pdf",
		BytesBase64:    base64.StdEncoding.EncodeToString(fileBytes),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var resp certificateResponse
	decodeJSON(t, w, &resp)
	return resp
}

func approve(t *testing.T, s *Server, certID string, eligible bool) decisionResponse {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/v1/certificates/"+certID+"/decision", decisionRequest{
		Eligible: &eligible,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("decision: expected 200, got %d: %s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var resp decisionResponse
	decodeJSON(t, w, &resp)
	return resp
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSubmitApproveVerifyFlow(t *testing.T) {
	s := newTestServer(t)
	fileBytes := []byte("donation certificate for donor 1")

	cert := submitFile(t, s, testDonorAddr, fileBytes)
	if cert.Status != "pending" {
		t.Fatalf("status = %s, want pending", cert.Status)
	}
	if cert.ContentHash != crypto.Digest(fileBytes) {
		t.Fatalf("content_hash = %s", cert.ContentHash)
	}

	decision := approve(t, s, cert.CertificateID, true)
	if decision.TxRef == "" || !decision.Created {
		t.Fatalf("decision = %+v", decision)
	}
	if decision.DonorAddress != testDonorAddr {
		t.Fatalf("donor_address = %s", decision.DonorAddress)
	}

	// Verify by address.
	w := doJSON(t, s, http.MethodGet, "/v1/verify/"+testDonorAddr, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify address: %d: %s", w.Code, w.Body.String())
	}
	var byAddr verifyAddressResponse
	decodeJSON(t, w, &byAddr)
	if !byAddr.Found || !byAddr.Eligible || byAddr.Hash != cert.ContentHash {
		t.Fatalf("by address = %+v", byAddr)
	}

	// Verify by original file.
	w = doJSON(t, s, http.MethodPost, "/v1/verify/file", verifyFileRequest{
		Address:     testDonorAddr,
		BytesBase64: base64.StdEncoding.EncodeToString(fileBytes),
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify file: %d: %s", w.Code, w.Body.String())
	}
	var byFile verifyFileResponse
	decodeJSON(t, w, &byFile)
	if !byFile.Matches || !byFile.Eligible {
		t.Fatalf("by file = %+v", byFile)
	}

	// Tampered bytes must not match.
	tampered := append([]byte{}, fileBytes...)
	tampered[0] ^= 0xff
	w = doJSON(t, s, http.MethodPost, "/v1/verify/file", verifyFileRequest{
		Address:     testDonorAddr,
		BytesBase64: base64.StdEncoding.EncodeToString(tampered),
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify tampered: %d: %s", w.Code, w.Body.String())
	}
	var tamperedResp verifyFileResponse
	decodeJSON(t, w, &tamperedResp)
	if tamperedResp.Matches {
		t.Fatal("tampered file must not match")
	}

	// Record is now decided.
	w = doJSON(t, s, http.MethodGet, "/v1/certificates/"+cert.CertificateID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get certificate: %d", w.Code)
	}
	var decided certificateResponse
	decodeJSON(t, w, &decided)
	if decided.Status != "eligible" || decided.LedgerTxRef != decision.TxRef {
		t.Fatalf("decided record = %+v", decided)
	}
}

func TestVerifyUnknownAddress(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/v1/verify/"+testDonor2Addr, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp verifyAddressResponse
	decodeJSON(t, w, &resp)
	if resp.Found {
		t.Fatal("unknown address must report found=false")
	}
}

func TestVerifyInvalidAddress(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/v1/verify/0x123", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, w, &resp)
	if resp.Code != "INVALID_ADDRESS" {
		t.Fatalf("code = %s", resp.Code)
	}
}

func TestSubmitPolicyRejectsMediaType(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/certificates", submitRequest{
		DonorID:        "donor-1",
		ClaimedAddress: testDonorAddr,
		FileName:       "cert.exe",
		MediaType:      "application/octet-stream",
		BytesBase64:    base64.StdEncoding.EncodeToString([]byte("binary")),
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, w, &resp)
	if resp.Code != "FILE_REJECTED" {
		t.Fatalf("code = %s", resp.Code)
	}
}

func TestSubmitMissingFile(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/certificates", submitRequest{
		DonorID:        "donor-1",
		ClaimedAddress: testDonorAddr,
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, w, &resp)
	if resp.Code != "MISSING_FILE" {
		t.Fatalf("code = %s", resp.Code)
	}
}

func TestListCertificatesByStatus(t *testing.T) {
	s := newTestServer(t)
	first := submitFile(t, s, testDonorAddr, []byte("file one"))
	submitFile(t, s, testDonor2Addr, []byte("file two"))
	approve(t, s, first.CertificateID, false)

	w := doJSON(t, s, http.MethodGet, "/v1/certificates?status=pending", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list pending: %d", w.Code)
	}
	var pending []certificateResponse
	decodeJSON(t, w, &pending)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	w = doJSON(t, s, http.MethodGet, "/v1/certificates?status=decided", nil, nil)
	var decided []certificateResponse
	decodeJSON(t, w, &decided)
	if len(decided) != 1 || decided[0].Status != "ineligible" {
		t.Fatalf("decided = %+v", decided)
	}
}

func TestDecisionOverwriteByAddress(t *testing.T) {
	s := newTestServer(t)
	cert := submitFile(t, s, testDonorAddr, []byte("certificate v1"))

	first := approve(t, s, cert.CertificateID, true)
	second := approve(t, s, cert.CertificateID, false)
	if second.Created {
		t.Fatal("second decision must overwrite")
	}
	if second.TxRef == first.TxRef {
		t.Fatal("tx refs must differ per write")
	}

	w := doJSON(t, s, http.MethodGet, "/v1/ledger/"+testDonorAddr+"/events", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("events: %d: %s", w.Code, w.Body.String())
	}
	var events []ledgerEventResponse
	decodeJSON(t, w, &events)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != "record_created" || events[1].Type != "record_updated" {
		t.Fatalf("event types = %s, %s", events[0].Type, events[1].Type)
	}
}

func TestLedgerRecordEndpoint(t *testing.T) {
	s := newTestServer(t)
	cert := submitFile(t, s, testDonorAddr, []byte("certificate"))
	approve(t, s, cert.CertificateID, true)

	w := doJSON(t, s, http.MethodGet, "/v1/ledger/"+testDonorAddr, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ledger record: %d", w.Code)
	}
	var rec ledgerRecordResponse
	decodeJSON(t, w, &rec)
	if !rec.Exists || rec.ContentHash != cert.ContentHash || !rec.Eligible {
		t.Fatalf("ledger record = %+v", rec)
	}
}

func TestLedgerExistsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodHead, "/v1/ledger/"+testDonorAddr, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("absent address: expected 404, got %d", w.Code)
	}

	cert := submitFile(t, s, testDonorAddr, []byte("certificate"))
	approve(t, s, cert.CertificateID, true)

	w = doJSON(t, s, http.MethodHead, "/v1/ledger/"+testDonorAddr, nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("existing address: expected 204, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodHead, "/v1/ledger/0x123", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid address: expected 400, got %d", w.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	s := newTestServer(t)
	cert := submitFile(t, s, testDonorAddr, []byte("certificate"))
	approve(t, s, cert.CertificateID, true)

	w := doJSON(t, s, http.MethodGet, "/v1/certificates/"+cert.CertificateID+"/reconcile", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile: %d: %s", w.Code, w.Body.String())
	}
	var report reconcileResponse
	decodeJSON(t, w, &report)
	if !report.LedgerExists || !report.LedgerMatchesFile || !report.RecordMatchesLedger {
		t.Fatalf("report = %+v", report)
	}
}

func TestAdminTransferRequiresKey(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/admin/ledger/transfer", adminTransferRequest{
		NewAdmin: testDonor2Addr,
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/v1/admin/ledger/transfer", adminTransferRequest{
		NewAdmin: testDonor2Addr,
	}, map[string]string{"X-Admin-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", w.Code)
	}
}

func TestAdminTransferMovesWriter(t *testing.T) {
	s := newTestServer(t)
	cert := submitFile(t, s, testDonorAddr, []byte("certificate"))

	w := doJSON(t, s, http.MethodPost, "/v1/admin/ledger/transfer", adminTransferRequest{
		NewAdmin: testDonor2Addr,
	}, map[string]string{"X-Admin-Key": testAdminKey})
	if w.Code != http.StatusOK {
		t.Fatalf("transfer: %d: %s", w.Code, w.Body.String())
	}

	// Decisions keep working because the orchestrator follows the new admin.
	decision := approve(t, s, cert.CertificateID, true)
	if decision.TxRef == "" {
		t.Fatal("expected committed write after transfer")
	}

	ledger, ok := s.ledger.(*memledger.Ledger)
	if !ok {
		t.Fatalf("ledger type %T", s.ledger)
	}
	if ledger.Admin() != testDonor2Addr {
		t.Fatalf("admin = %s, want %s", ledger.Admin(), testDonor2Addr)
	}
}

func TestRateLimitOnVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		AuthMode:               "none",
		LedgerAdminAddress:     testAdminAddr,
		RateLimitRequests:      2,
		RateLimitWindowSeconds: 60,
		RateLimitMaxKeys:       100,
	}
	s := NewServerWithDeps(cfg, ServerDeps{})

	for i := 0; i < 2; i++ {
		w := doJSON(t, s, http.MethodGet, "/v1/verify/"+testDonorAddr, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	w := doJSON(t, s, http.MethodGet, "/v1/verify/"+testDonorAddr, nil, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
