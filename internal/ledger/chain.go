package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"propvest/pkg/domain"
)

// GenesisHash is the previous hash of a wallet's first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Seal assigns the entry its id, timestamp and chained hash.
func Seal(e *domain.LedgerEntry, previousHash string, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = now.UTC().Truncate(time.Microsecond)
	e.PreviousHash = previousHash
	e.Hash = hashOf(e)
}

func hashOf(e *domain.LedgerEntry) string {
	txID := "-"
	if e.TransactionID != nil {
		txID = fmt.Sprintf("%d", *e.TransactionID)
	}
	data := fmt.Sprintf("%s:%d:%s:%s:%s:%s:%s:%d",
		e.ID, e.WalletID, txID, e.EventType, e.Amount.StringFixed(2), e.BalanceAfter.StringFixed(2),
		e.PreviousHash, e.CreatedAt.UnixNano())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifyEntries checks one wallet's entries, oldest first.
func VerifyEntries(entries []*domain.LedgerEntry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("chain broken at index %d: expected prev_hash %s, got %s", i, prev, e.PreviousHash)
		}
		if calc := hashOf(e); calc != e.Hash {
			return fmt.Errorf("hash mismatch at index %d: expected %s, got %s", i, calc, e.Hash)
		}
		prev = e.Hash
	}
	return nil
}
