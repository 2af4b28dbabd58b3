package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(overrides map[string]float64) map[string]float64 {
	v := make(map[string]float64, len(GlossaryFeatureNames))
	for _, name := range GlossaryFeatureNames {
		v[name] = 0.0
	}
	for k, val := range overrides {
		v[k] = val
	}
	return v
}

func TestStore_Observe_BelowMinObservationsReturnsNotOK(t *testing.T) {
	s := NewStore(0.5, 0.01, 1.0, 0.5, 100)

	_, _, ok := s.Observe("sig-1", vec(nil))
	assert.False(t, ok)

	_, _, ok = s.Observe("sig-2", vec(nil))
	assert.False(t, ok, "still below minObservationsForClustering")
}

func TestStore_Observe_SimilarVectorsJoinSameCluster(t *testing.T) {
	s := NewStore(5.0, 0.01, 1.0, 0.5, 100)

	s.Observe("sig-1", vec(map[string]float64{"timing": 0.1}))
	s.Observe("sig-2", vec(map[string]float64{"timing": 0.1}))
	id3, size3, ok := s.Observe("sig-3", vec(map[string]float64{"timing": 0.1}))

	assert.True(t, ok)
	assert.GreaterOrEqual(t, size3, 1)
	assert.NotEmpty(t, id3)
}

func TestStore_Observe_DistantVectorFormsOwnCluster(t *testing.T) {
	s := NewStore(0.0001, 0.01, 1.0, 0.5, 100)

	s.Observe("sig-1", vec(map[string]float64{"timing": 0.0}))
	s.Observe("sig-2", vec(map[string]float64{"timing": 0.0}))
	idA, _, _ := s.Observe("sig-3", vec(map[string]float64{"timing": 0.0}))
	idB, _, ok := s.Observe("sig-4", vec(map[string]float64{"timing": 100.0}))

	assert.True(t, ok)
	assert.NotEqual(t, idA, idB, "a vector far outside the threshold should not join the existing cluster")
}

func TestStore_MajorityBotProbAveragesClusterMembers(t *testing.T) {
	s := NewStore(100.0, 0.01, 1.0, 0.5, 100)

	s.Observe("sig-1", vec(map[string]float64{"botProb": 0.0}))
	s.Observe("sig-2", vec(map[string]float64{"botProb": 0.0}))
	id, _, ok := s.Observe("sig-3", vec(map[string]float64{"botProb": 1.0}))
	require.True(t, ok)

	avg, n := s.MajorityBotProb(id)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 1.0/3.0, avg, 1e-9, "averages across every member, not just the most recent observation")
}

func TestStore_MajorityBotProbUnknownClusterReturnsZero(t *testing.T) {
	s := NewStore(0.5, 0.01, 1.0, 0.5, 100)

	avg, n := s.MajorityBotProb("no-such-cluster")
	assert.Zero(t, avg)
	assert.Zero(t, n)
}

func TestStore_Observe_EvictsOldestPastCapacity(t *testing.T) {
	s := NewStore(0.5, 0.01, 1.0, 0.5, 3)

	for i := 0; i < 6; i++ {
		s.Observe(fmt.Sprintf("sig-%d", i), vec(map[string]float64{"timing": float64(i)}))
	}

	assert.LessOrEqual(t, len(s.vectors), 3)
	_, stillTracked := s.vectors["sig-0"]
	assert.False(t, stillTracked, "the earliest-touched signature should have been evicted")
}
