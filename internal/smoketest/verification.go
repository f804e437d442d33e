package smoketest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/okian/noderank/internal/domain/model"
)

// VerifyRanking checks one ranking response against its request.
func VerifyRanking(candidates []model.FeatureRecord, topK int, got []model.ScoredCandidate) error {
	if len(got) != topK {
		return fmt.Errorf("%w: got %d nodes, want %d", ErrVerification, len(got), topK)
	}
	seen := make(map[model.FeatureRecord]int, len(candidates))
	for _, c := range candidates {
		c.Label = nil
		seen[c]++
	}
	for i, n := range got {
		if math.IsNaN(n.Score) || n.Score < 0 || n.Score > 1 {
			return fmt.Errorf("%w: node %d score %v outside [0,1]", ErrVerification, i, n.Score)
		}
		if i > 0 && got[i-1].Score < n.Score {
			return fmt.Errorf("%w: node %d scores higher than node %d", ErrVerification, i, i-1)
		}
		key := n.FeatureRecord
		key.Label = nil
		if seen[key] == 0 {
			return fmt.Errorf("%w: node %d is not one of the candidates", ErrVerification, i)
		}
		seen[key]--
	}
	return nil
}

// VerifyArtifact checks that a downloaded artifact is a JSON document.
func VerifyArtifact(raw []byte) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty artifact", ErrVerification)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: artifact is not JSON", ErrVerification)
	}
	return nil
}
