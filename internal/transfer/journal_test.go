package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/p2pcore/internal/allocation"
)

func TestMemoryJournalKeepsTerminalRecords(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	now := time.Now()
	rec := Record{
		TransactionID: "tx-1",
		TransferID:    "t-1",
		SenderID:      senderID,
		RecipientID:   recipientID,
		Amount:        500,
		Plan:          allocation.Plan{{Tag: allocation.PoolWallet, Amount: 500}},
		State:         StateSubmitting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, j.Save(ctx, rec))

	settled := rec
	settled.State, settled.UpdatedAt = StateSucceeded, now.Add(time.Second)
	require.NoError(t, j.Save(ctx, settled))

	stale := rec
	stale.State, stale.Reason, stale.UpdatedAt = StatePending, "submission_transient", now.Add(2*time.Second)
	require.NoError(t, j.Save(ctx, stale))

	got, err := j.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, got.State)
	assert.Empty(t, got.Reason)

	unsettled, err := j.Unsettled(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}
