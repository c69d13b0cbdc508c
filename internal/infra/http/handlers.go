package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"bloodlink/internal/domain"
	"bloodlink/internal/infra/auth/rbac"
	"bloodlink/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type submitRequest struct {
	DonorID        string `json:"donor_id"`
	ClaimedAddress string `json:"claimed_address"`
	FileName       string `json:"file_name"`
	MediaType      string `json:"media_type"`
	BytesBase64    string `json:"bytes_base64"`
	ClientHash     string `json:"client_hash,omitempty"`
}

type certificateResponse struct {
	CertificateID  string `json:"certificate_id"`
	DonorID        string `json:"donor_id"`
	ClaimedAddress string `json:"claimed_address"`
	FileName       string `json:"file_name,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
	ContentHash    string `json:"content_hash,omitempty"`
	Status         string `json:"status"`
	LedgerTxRef    string `json:"ledger_tx_ref,omitempty"`
	ReviewerID     string `json:"reviewer_id,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
	DecidedAt      string `json:"decided_at,omitempty"`
}

type decisionRequest struct {
	Eligible       *bool  `json:"eligible"`
	ClaimedAddress string `json:"claimed_address,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type decisionResponse struct {
	CertificateID string `json:"certificate_id"`
	DonorAddress  string `json:"donor_address"`
	ContentHash   string `json:"content_hash"`
	Eligible      bool   `json:"eligible"`
	TxRef         string `json:"tx_ref"`
	Timestamp     string `json:"timestamp"`
	Created       bool   `json:"created"`
}

type reconcileResponse struct {
	CertificateID       string `json:"certificate_id"`
	DonorAddress        string `json:"donor_address"`
	FileHash            string `json:"file_hash"`
	LedgerExists        bool   `json:"ledger_exists"`
	LedgerHash          string `json:"ledger_hash,omitempty"`
	LedgerEligible      bool   `json:"ledger_eligible,omitempty"`
	LedgerTimestamp     string `json:"ledger_timestamp,omitempty"`
	LedgerMatchesFile   bool   `json:"ledger_matches_file"`
	RecordMatchesLedger bool   `json:"record_matches_ledger"`
}

type verifyFileRequest struct {
	Address     string `json:"address"`
	BytesBase64 string `json:"bytes_base64"`
}

type verifyFileResponse struct {
	Hash      string `json:"hash"`
	Matches   bool   `json:"matches"`
	Eligible  bool   `json:"eligible"`
	Timestamp string `json:"timestamp,omitempty"`
}

type verifyAddressResponse struct {
	Found     bool   `json:"found"`
	Hash      string `json:"hash,omitempty"`
	Eligible  bool   `json:"eligible,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ledgerRecordResponse struct {
	DonorAddress string `json:"donor_address"`
	Exists       bool   `json:"exists"`
	ContentHash  string `json:"content_hash,omitempty"`
	Eligible     bool   `json:"eligible,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

type ledgerEventResponse struct {
	Type         string `json:"type"`
	DonorAddress string `json:"donor_address,omitempty"`
	OldHash      string `json:"old_hash,omitempty"`
	NewHash      string `json:"new_hash,omitempty"`
	Eligible     bool   `json:"eligible,omitempty"`
	Timestamp    string `json:"timestamp"`
	Writer       string `json:"writer,omitempty"`
	OldAdmin     string `json:"old_admin,omitempty"`
	NewAdmin     string `json:"new_admin,omitempty"`
}

type adminTransferRequest struct {
	NewAdmin string `json:"new_admin"`
}

func (s *Server) handleSubmitCertificate(c *gin.Context) {
	principal, ok := s.requireAuth(c, rbac.PermissionSubmit, false)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	var fileBytes []byte
	if req.BytesBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.BytesBase64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_FILE_ENCODING", "invalid file encoding")
			return
		}
		fileBytes = decoded
	}
	donorID := req.DonorID
	if donorID == "" && principal.Subject != "" {
		donorID = principal.Subject
	}
	rec, err := s.submitUC.Execute(c.Request.Context(), usecase.SubmitCertificateRequest{
		DonorID:        donorID,
		ClaimedAddress: req.ClaimedAddress,
		FileName:       req.FileName,
		MediaType:      req.MediaType,
		FileBytes:      fileBytes,
		ClientHash:     req.ClientHash,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildCertificateResponse(*rec))
}

func (s *Server) handleGetCertificate(c *gin.Context) {
	if _, ok := s.requireAuth(c, rbac.PermissionReview, false); !ok {
		return
	}
	rec, err := s.certs.GetByID(c.Request.Context(), c.Param("cert_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCertificateResponse(*rec))
}

func (s *Server) handleListCertificates(c *gin.Context) {
	if _, ok := s.requireAuth(c, rbac.PermissionReview, false); !ok {
		return
	}
	var (
		records []domain.CertificateRecord
		err     error
	)
	switch c.Query("status") {
	case "", "pending":
		records, err = s.certs.ListPending(c.Request.Context())
	case "decided":
		records, err = s.certs.ListDecided(c.Request.Context())
	default:
		writeErrorCode(c, http.StatusBadRequest, "INVALID_STATUS", "status must be pending or decided")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]certificateResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, buildCertificateResponse(rec))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDecideCertificate(c *gin.Context) {
	principal, ok := s.requireAuth(c, rbac.PermissionReview, false)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.Eligible == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_DECISION", "eligible is required")
		return
	}
	decision, err := s.decideUC.Execute(c.Request.Context(), usecase.DecideRequest{
		CertificateID:  c.Param("cert_id"),
		ClaimedAddress: req.ClaimedAddress,
		Eligible:       *req.Eligible,
		Notes:          req.Notes,
		ReviewerID:     principal.Subject,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decisionResponse{
		CertificateID: c.Param("cert_id"),
		DonorAddress:  decision.DonorAddress,
		ContentHash:   decision.ContentHash,
		Eligible:      *req.Eligible,
		TxRef:         decision.TxRef,
		Timestamp:     decision.Timestamp.UTC().Format(time.RFC3339),
		Created:       decision.Created,
	})
}

func (s *Server) handleReconcileCertificate(c *gin.Context) {
	if _, ok := s.requireAuth(c, rbac.PermissionReview, false); !ok {
		return
	}
	report, err := s.decideUC.Reconcile(c.Request.Context(), c.Param("cert_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := reconcileResponse{
		CertificateID:       report.CertificateID,
		DonorAddress:        report.DonorAddress,
		FileHash:            report.FileHash,
		LedgerExists:        report.LedgerExists,
		LedgerHash:          report.LedgerHash,
		LedgerEligible:      report.LedgerEligible,
		LedgerMatchesFile:   report.LedgerMatchesFile,
		RecordMatchesLedger: report.RecordMatchesLedger,
	}
	if report.LedgerExists {
		out.LedgerTimestamp = report.LedgerTimestamp.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerifyFile(c *gin.Context) {
	if !s.enforceRateLimit(c, "verify_file") {
		return
	}
	var req verifyFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	var fileBytes []byte
	if req.BytesBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.BytesBase64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_FILE_ENCODING", "invalid file encoding")
			return
		}
		fileBytes = decoded
	}
	result, err := s.verifyUC.ByFile(c.Request.Context(), fileBytes, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	out := verifyFileResponse{
		Hash:     result.Hash,
		Matches:  result.Matches,
		Eligible: result.Eligible,
	}
	if !result.Timestamp.IsZero() {
		out.Timestamp = result.Timestamp.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerifyAddress(c *gin.Context) {
	if !s.enforceRateLimit(c, "verify_address") {
		return
	}
	result, err := s.verifyUC.ByAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := verifyAddressResponse{
		Found:    result.Found,
		Hash:     result.Hash,
		Eligible: result.Eligible,
	}
	if result.Found {
		out.Timestamp = result.Timestamp.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleLedgerRecord(c *gin.Context) {
	if !s.enforceRateLimit(c, "ledger_record") {
		return
	}
	rec, err := s.ledger.GetRecord(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := ledgerRecordResponse{
		DonorAddress: rec.DonorAddress,
		Exists:       rec.Exists,
		ContentHash:  rec.ContentHash,
		Eligible:     rec.Eligible,
	}
	if rec.Exists {
		out.Timestamp = rec.Timestamp.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

// handleLedgerExists answers HEAD existence probes without exposing record
// contents.
func (s *Server) handleLedgerExists(c *gin.Context) {
	if !s.enforceRateLimit(c, "ledger_record") {
		return
	}
	exists, err := s.ledger.HasRecord(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !exists {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLedgerEvents(c *gin.Context) {
	if _, ok := s.requireAuth(c, rbac.PermissionLedgerRead, false); !ok {
		return
	}
	events, err := s.ledger.Events(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ledgerEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, ledgerEventResponse{
			Type:         event.Type,
			DonorAddress: event.DonorAddress,
			OldHash:      event.OldHash,
			NewHash:      event.NewHash,
			Eligible:     event.Eligible,
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Writer:       event.Writer,
			OldAdmin:     event.OldAdmin,
			NewAdmin:     event.NewAdmin,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAdminTransfer(c *gin.Context) {
	if _, ok := s.requireAuth(c, rbac.PermissionAdmin, true); !ok {
		return
	}
	var req adminTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	// The orchestrator owns the current admin address; decisions racing this
	// transfer read it through its lock.
	if err := s.ledger.TransferAdmin(c.Request.Context(), s.decideUC.AdminAddress(), req.NewAdmin); err != nil {
		writeError(c, err)
		return
	}
	s.decideUC.SetAdminAddress(req.NewAdmin)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "admin": req.NewAdmin})
}

func buildCertificateResponse(rec domain.CertificateRecord) certificateResponse {
	status := "pending"
	if rec.Eligibility.Decided() {
		status = string(rec.Eligibility)
	}
	out := certificateResponse{
		CertificateID:  rec.ID,
		DonorID:        rec.DonorID,
		ClaimedAddress: rec.ClaimedAddress,
		FileName:       rec.FileName,
		MediaType:      rec.MediaType,
		ContentHash:    rec.ContentHash,
		Status:         status,
		LedgerTxRef:    rec.LedgerTxRef,
		ReviewerID:     rec.ReviewerID,
		Notes:          rec.Notes,
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.DecidedAt != nil {
		out.DecidedAt = rec.DecidedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func writeError(c *gin.Context, err error) {
	var inconsistency *domain.InconsistencyError
	if errors.As(err, &inconsistency) {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Code:    "INCONSISTENT",
			Message: inconsistency.Error(),
			Details: map[string]any{
				"certificate_id": inconsistency.CertificateID,
				"donor_address":  inconsistency.DonorAddress,
				"tx_ref":         inconsistency.TxRef,
			},
		})
		return
	}
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		status, code = http.StatusBadRequest, "INVALID_ADDRESS"
	case errors.Is(err, domain.ErrInvalidHash):
		status, code = http.StatusBadRequest, "INVALID_HASH"
	case errors.Is(err, domain.ErrMissingFile):
		status, code = http.StatusBadRequest, "MISSING_FILE"
	case errors.Is(err, domain.ErrFileRejected):
		status, code = http.StatusBadRequest, "FILE_REJECTED"
	case errors.Is(err, domain.ErrHashMismatch):
		status, code = http.StatusBadRequest, "HASH_MISMATCH"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrLedgerRejected):
		status, code = http.StatusBadGateway, "LEDGER_REJECTED"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status, code = http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, domain.ErrInconsistent):
		status, code = http.StatusInternalServerError, "INCONSISTENT"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
