package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	adminStateKey  = "ADMIN"
	donorKeyPrefix = "DONOR_"

	hashLen    = 66
	addressLen = 42
	zeroHash   = "0x0000000000000000000000000000000000000000000000000000000000000000"

	eventRecordCreated    = "RecordCreated"
	eventRecordUpdated    = "RecordUpdated"
	eventAdminTransferred = "AdminTransferred"
)

// EligibilityContract anchors blood-donor certificate digests in world state.
// One record per donor address, overwritten in place; history lives in the
// chaincode events. Writes are restricted to the single admin identity stored
// at init time.
type EligibilityContract struct {
	contractapi.Contract
}

// EligibilityRecord is the world-state document for one donor address.
type EligibilityRecord struct {
	DonorAddress string `json:"donorAddress"`
	ContentHash  string `json:"contentHash"`
	Eligible     bool   `json:"eligible"`
	Timestamp    string `json:"timestamp"`
}

// WriteResult is returned to the client after a committed write.
type WriteResult struct {
	TxID      string `json:"txId"`
	Timestamp string `json:"timestamp"`
	Created   bool   `json:"created"`
}

// ReadResult is the verification tuple for a (donor, hash) query. Matches is
// false both when no record exists and when the stored hash differs.
type ReadResult struct {
	Eligible  bool   `json:"eligible"`
	Timestamp string `json:"timestamp"`
	Matches   bool   `json:"matches"`
}

type recordEvent struct {
	DonorAddress string `json:"donorAddress"`
	OldHash      string `json:"oldHash,omitempty"`
	NewHash      string `json:"newHash"`
	Eligible     bool   `json:"eligible"`
	Timestamp    string `json:"timestamp"`
}

type adminEvent struct {
	OldAdmin  string `json:"oldAdmin"`
	NewAdmin  string `json:"newAdmin"`
	Timestamp string `json:"timestamp"`
}

// Init stores the deploying identity as the contract admin. Subsequent
// invocations are rejected so the admin cannot be silently replaced.
func (c *EligibilityContract) Init(ctx contractapi.TransactionContextInterface) error {
	existing, err := ctx.GetStub().GetState(adminStateKey)
	if err != nil {
		return fmt.Errorf("failed to read admin state: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("contract is already initialized")
	}
	adminID, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return fmt.Errorf("failed to resolve client identity: %v", err)
	}
	return ctx.GetStub().PutState(adminStateKey, []byte(adminID))
}

// WriteRecord anchors (or overwrites) the record for a donor address.
func (c *EligibilityContract) WriteRecord(ctx contractapi.TransactionContextInterface, donorAddress, contentHash string, eligible bool) (*WriteResult, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	donor, err := normalizeHex(donorAddress, addressLen)
	if err != nil {
		return nil, fmt.Errorf("invalid donor address: %v", err)
	}
	hash, err := normalizeHex(contentHash, hashLen)
	if err != nil {
		return nil, fmt.Errorf("invalid content hash: %v", err)
	}
	if hash == zeroHash {
		return nil, fmt.Errorf("content hash must not be the zero digest")
	}

	now, err := txTime(ctx)
	if err != nil {
		return nil, err
	}

	key := donorKeyPrefix + donor
	existingJSON, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %v", err)
	}

	record := EligibilityRecord{
		DonorAddress: donor,
		ContentHash:  hash,
		Eligible:     eligible,
		Timestamp:    now,
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := ctx.GetStub().PutState(key, recordJSON); err != nil {
		return nil, fmt.Errorf("failed to store record: %v", err)
	}

	event := recordEvent{
		DonorAddress: donor,
		NewHash:      hash,
		Eligible:     eligible,
		Timestamp:    now,
	}
	eventName := eventRecordCreated
	if existingJSON != nil {
		eventName = eventRecordUpdated
		var previous EligibilityRecord
		if err := json.Unmarshal(existingJSON, &previous); err == nil {
			event.OldHash = previous.ContentHash
		}
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	if err := ctx.GetStub().SetEvent(eventName, eventJSON); err != nil {
		return nil, fmt.Errorf("failed to emit event: %v", err)
	}

	return &WriteResult{
		TxID:      ctx.GetStub().GetTxID(),
		Timestamp: now,
		Created:   existingJSON == nil,
	}, nil
}

// ReadRecord verifies a candidate hash against the anchored record.
func (c *EligibilityContract) ReadRecord(ctx contractapi.TransactionContextInterface, donorAddress, contentHash string) (*ReadResult, error) {
	donor, err := normalizeHex(donorAddress, addressLen)
	if err != nil {
		return nil, fmt.Errorf("invalid donor address: %v", err)
	}
	hash, err := normalizeHex(contentHash, hashLen)
	if err != nil {
		return nil, fmt.Errorf("invalid content hash: %v", err)
	}

	record, err := c.getRecord(ctx, donor)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &ReadResult{}, nil
	}
	return &ReadResult{
		Eligible:  record.Eligible,
		Timestamp: record.Timestamp,
		Matches:   record.ContentHash == hash,
	}, nil
}

// GetRecord returns the current record for a donor address.
func (c *EligibilityContract) GetRecord(ctx contractapi.TransactionContextInterface, donorAddress string) (*EligibilityRecord, error) {
	donor, err := normalizeHex(donorAddress, addressLen)
	if err != nil {
		return nil, fmt.Errorf("invalid donor address: %v", err)
	}
	record, err := c.getRecord(ctx, donor)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("no record for %s", donor)
	}
	return record, nil
}

// HasRecord reports whether a record exists for a donor address.
func (c *EligibilityContract) HasRecord(ctx contractapi.TransactionContextInterface, donorAddress string) (bool, error) {
	donor, err := normalizeHex(donorAddress, addressLen)
	if err != nil {
		return false, fmt.Errorf("invalid donor address: %v", err)
	}
	record, err := c.getRecord(ctx, donor)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// TransferAdmin hands the contract to a new admin identity.
func (c *EligibilityContract) TransferAdmin(ctx contractapi.TransactionContextInterface, newAdminID string) error {
	if err := c.requireAdmin(ctx); err != nil {
		return err
	}
	newAdminID = strings.TrimSpace(newAdminID)
	if newAdminID == "" {
		return fmt.Errorf("new admin identity is required")
	}

	oldAdmin, err := ctx.GetStub().GetState(adminStateKey)
	if err != nil {
		return fmt.Errorf("failed to read admin state: %v", err)
	}
	if err := ctx.GetStub().PutState(adminStateKey, []byte(newAdminID)); err != nil {
		return fmt.Errorf("failed to store admin: %v", err)
	}

	now, err := txTime(ctx)
	if err != nil {
		return err
	}
	eventJSON, err := json.Marshal(adminEvent{
		OldAdmin:  string(oldAdmin),
		NewAdmin:  newAdminID,
		Timestamp: now,
	})
	if err != nil {
		return err
	}
	return ctx.GetStub().SetEvent(eventAdminTransferred, eventJSON)
}

func (c *EligibilityContract) getRecord(ctx contractapi.TransactionContextInterface, donor string) (*EligibilityRecord, error) {
	recordJSON, err := ctx.GetStub().GetState(donorKeyPrefix + donor)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %v", err)
	}
	if recordJSON == nil {
		return nil, nil
	}
	var record EligibilityRecord
	if err := json.Unmarshal(recordJSON, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %v", err)
	}
	return &record, nil
}

func (c *EligibilityContract) requireAdmin(ctx contractapi.TransactionContextInterface) error {
	adminID, err := ctx.GetStub().GetState(adminStateKey)
	if err != nil {
		return fmt.Errorf("failed to read admin state: %v", err)
	}
	if adminID == nil {
		return fmt.Errorf("contract is not initialized")
	}
	callerID, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return fmt.Errorf("failed to resolve client identity: %v", err)
	}
	if callerID != string(adminID) {
		return fmt.Errorf("caller is not the contract admin")
	}
	return nil
}

// txTime uses the transaction timestamp so every endorser computes the same
// record. time.Now would break endorsement.
func txTime(ctx contractapi.TransactionContextInterface) (string, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return "", fmt.Errorf("failed to read tx timestamp: %v", err)
	}
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC().Format(time.RFC3339), nil
}

func normalizeHex(s string, wantLen int) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != wantLen {
		return "", fmt.Errorf("expected %d characters, got %d", wantLen, len(s))
	}
	if !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("missing 0x prefix")
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("non-hex characters")
	}
	return s, nil
}
