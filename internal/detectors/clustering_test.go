package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/cluster"
	"github.com/ocx/sentinel/internal/signature"
)

func TestClusteringDetector_NoSignatureIsNoOp(t *testing.T) {
	d := NewClusteringDetector(cluster.NewStore(1.0, 0.1, 3.0, 0.3, 0), signature.NewWaveformTracker())
	bb := blackboard.New(blackboard.Fingerprint{})

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.Zero(t, out.HumanScore)
}

func TestClusteringDetector_BelowMinObservationsProducesNoOutcome(t *testing.T) {
	store := cluster.NewStore(1.0, 0.1, 3.0, 0.3, 0)
	d := NewClusteringDetector(store, signature.NewWaveformTracker())

	bb := blackboard.New(blackboard.Fingerprint{Path: "/a"})
	bb.SetSignature("sig-1")

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)
	assert.Zero(t, out.BotScore)
	assert.Zero(t, out.HumanScore)
}

func TestClusteringDetector_PublishesClusterIDOnceMinObservationsMet(t *testing.T) {
	store := cluster.NewStore(1.0, 0.1, 3.0, 0.3, 0)
	tracker := signature.NewWaveformTracker()
	d := NewClusteringDetector(store, tracker)

	for i, sig := range []string{"sig-a", "sig-b", "sig-c"} {
		bb := blackboard.New(blackboard.Fingerprint{Path: "/x"})
		bb.SetSignature(sig)
		out, err := d.Run(context.Background(), bb, nil)
		require.NoError(t, err)

		if i < 2 {
			// fewer than minObservationsForClustering signatures observed so far
			assert.Zero(t, out.BotScore)
			continue
		}

		clusterID, ok := bb.Get("detection.clustering.cluster_id")
		require.True(t, ok)
		assert.NotEmpty(t, clusterID.AsStr())

		size, ok := bb.Get("detection.clustering.cluster_size")
		require.True(t, ok)
		assert.GreaterOrEqual(t, size.AsInt(), int64(1))
	}
}

func TestClusteringDetector_BorrowsClusterMajorityVerdictNotJustOwnScore(t *testing.T) {
	// A huge threshold guarantees every signature below joins one cluster,
	// regardless of the rest of their feature vectors.
	store := cluster.NewStore(100.0, 0.1, 3.0, 0.3, 0)
	tracker := signature.NewWaveformTracker()
	d := NewClusteringDetector(store, tracker)

	// Two human-looking seeds with no heuristic score (botProb 0).
	for _, sig := range []string{"seed-1", "seed-2"} {
		bb := blackboard.New(blackboard.Fingerprint{Path: "/x"})
		bb.SetSignature(sig)
		_, err := d.Run(context.Background(), bb, nil)
		require.NoError(t, err)
	}

	bb := blackboard.New(blackboard.Fingerprint{Path: "/x"})
	bb.SetSignature("sig-scored")
	_ = bb.Publish("detection.heuristic.bot_score", blackboard.RealSignal(1.0))

	out, err := d.Run(context.Background(), bb, nil)
	require.NoError(t, err)

	// Averaged across all three cluster members (0, 0, 1.0), not this
	// signature's own raw 1.0, then dampened.
	wantBotProb := (0.0 + 0.0 + 1.0) / 3.0
	assert.InDelta(t, wantBotProb*clusterBotDampening, out.BotScore, 1e-9)
	assert.Less(t, out.BotScore, clusterBotDampening,
		"borrowing the cluster majority must pull the score below what dampening a full own-score of 1.0 would give")
	assert.InDelta(t, (1-wantBotProb)*clusterBotDampening, out.HumanScore, 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}
