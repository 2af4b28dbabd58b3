package cluster

import (
	"fmt"
	"math"
	"sync"
)

// minObservationsForClustering mirrors spec §4.D: a signature only
// participates in clustering once it has accumulated enough history for its
// feature vector to be meaningful.
const minObservationsForClustering = 3

// Store holds the per-signature 18-feature vector history feeding the
// clustering sub-algorithm, plus the single-linkage cluster assignment those
// vectors produce. It is cross-request state (§5): bounded by evicting the
// least-recently-touched signature once capacity is exceeded.
type Store struct {
	mu         sync.Mutex
	weighter   *AdaptiveSimilarityWeighter
	threshold  float64
	capacity   int
	vectors    map[string]map[string]float64
	clusterOf  map[string]string
	members    map[string][]string
	touchOrder []string
	nextID     int
}

// NewStore builds a clustering store whose similarity weights adapt via an
// AdaptiveSimilarityWeighter seeded over GlossaryFeatureNames, joining two
// signatures into the same cluster when their weighted Euclidean distance
// falls below threshold.
func NewStore(threshold, minWeight, maxWeight, shiftDelta float64, capacity int) *Store {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Store{
		weighter:  NewAdaptiveSimilarityWeighterFor(GlossaryFeatureNames, minWeight, maxWeight, shiftDelta),
		threshold: threshold,
		capacity:  capacity,
		vectors:   make(map[string]map[string]float64),
		clusterOf: make(map[string]string),
		members:   make(map[string][]string),
	}
}

// Observe records signature's current 18-feature vector, feeds it to the
// adaptive weighter, and (re-)assigns signature to a cluster. It returns the
// signature's cluster ID and that cluster's current member count; ok is
// false when fewer than minObservationsForClustering signatures have been
// observed overall, per spec ("computed per signature when enough
// observations exist").
func (s *Store) Observe(signature string, features map[string]float64) (clusterID string, size int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weighter.Observe(features)
	s.vectors[signature] = features
	s.touch(signature)
	s.evictIfNeeded()

	if len(s.vectors) < minObservationsForClustering {
		return "", 0, false
	}

	// Signatures observed before the minimum was reached have no cluster
	// yet; assign them oldest first so later signatures can join them.
	for _, sig := range s.touchOrder {
		if _, assigned := s.clusterOf[sig]; !assigned {
			s.assignLocked(sig)
		}
	}
	s.assignLocked(signature)
	id := s.clusterOf[signature]
	return id, len(s.members[id]), true
}

// assignLocked implements single-linkage clustering by threshold: signature
// joins the cluster of its nearest neighbour if that neighbour lies within
// threshold distance. A signature that belonged to a different cluster is
// moved out of it; the two clusters are not merged. Otherwise it forms (or
// keeps) its own singleton cluster.
func (s *Store) assignLocked(signature string) {
	weights := s.weighter.Weights()
	own := s.vectors[signature]

	bestCluster := ""
	bestDist := math.Inf(1)
	for other, vec := range s.vectors {
		if other == signature {
			continue
		}
		d := weightedEuclidean(own, vec, weights)
		if d < bestDist {
			bestDist = d
			bestCluster = s.clusterOf[other]
		}
	}

	if bestCluster == "" || bestDist > s.threshold {
		if _, already := s.clusterOf[signature]; !already {
			s.nextID++
			id := fmt.Sprintf("c%d", s.nextID)
			s.clusterOf[signature] = id
			s.members[id] = []string{signature}
		}
		return
	}

	prev, hadCluster := s.clusterOf[signature]
	if hadCluster && prev == bestCluster {
		return
	}
	if hadCluster {
		s.removeMemberLocked(prev, signature)
	}
	s.clusterOf[signature] = bestCluster
	s.members[bestCluster] = append(s.members[bestCluster], signature)
}

// MajorityBotProb averages the "botProb" feature across every signature
// currently assigned to clusterID, letting a single ambiguous signature
// borrow the verdict its whole cluster has converged on rather than just
// restating its own heuristic score. It returns 0 members for an unknown or
// now-empty cluster.
func (s *Store) MajorityBotProb(clusterID string) (avg float64, members int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sigs := s.members[clusterID]
	if len(sigs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, sig := range sigs {
		sum += s.vectors[sig]["botProb"]
	}
	return sum / float64(len(sigs)), len(sigs)
}

func (s *Store) removeMemberLocked(clusterID, signature string) {
	members := s.members[clusterID]
	for i, m := range members {
		if m == signature {
			s.members[clusterID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(s.members[clusterID]) == 0 {
		delete(s.members, clusterID)
	}
}

func (s *Store) touch(signature string) {
	for i, sig := range s.touchOrder {
		if sig == signature {
			s.touchOrder = append(s.touchOrder[:i], s.touchOrder[i+1:]...)
			break
		}
	}
	s.touchOrder = append(s.touchOrder, signature)
}

func (s *Store) evictIfNeeded() {
	for len(s.touchOrder) > s.capacity {
		oldest := s.touchOrder[0]
		s.touchOrder = s.touchOrder[1:]
		delete(s.vectors, oldest)
		if id, ok := s.clusterOf[oldest]; ok {
			s.removeMemberLocked(id, oldest)
			delete(s.clusterOf, oldest)
		}
	}
}

func weightedEuclidean(a, b, weights map[string]float64) float64 {
	var sum float64
	for name, w := range weights {
		av := a[name]
		bv := b[name]
		d := av - bv
		sum += w * d * d
	}
	return math.Sqrt(sum)
}
