package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotTracksApprovalsAndAvoidedTxsPerDocument(t *testing.T) {
	a := Registry()
	a.RecordApproval("doc-snap-1", "APPROVE", "PAY 100 USDC TO 0xabc", 100)
	a.RecordApproval("doc-snap-1", "APPROVE", "PAY 200 USDC TO 0xdef", 200)
	a.RecordOnChainAvoided("doc-snap-1")

	snap := a.Snapshot("doc-snap-1")
	require.Equal(t, 2, snap.TotalApprovals)
	require.Equal(t, 1, snap.OnChainTxsAvoided)
	require.Equal(t, "PAY 200 USDC TO 0xdef", snap.LastApprovalText)
}

func TestSnapshotIsEmptyForUnknownDocument(t *testing.T) {
	a := Registry()
	require.Equal(t, Snapshot{}, a.Snapshot("doc-never-seen"))
}
