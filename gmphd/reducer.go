package gmphd

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Reducer prunes low-weight components and merges clusters of components
// that are close in the Mahalanobis sense, optionally capping the resulting
// component count. It is stateless: Reduce is a pure function of its input.
type Reducer struct {
	// PruneThreshold removes any component with Weight below it. Default 1e-5.
	PruneThreshold float64

	// MergeThreshold gates the merge step by squared Mahalanobis distance
	// from the cluster's highest-weight component. Default 16.
	MergeThreshold float64

	// MaxComponents caps the component count after merging when > 0.
	MaxComponents int

	// SquaredMahalanobis computes the squared Mahalanobis distance of x
	// from mean under covariance cov. measures.SquaredMahalanobis is the
	// canonical choice.
	SquaredMahalanobis func(x, mean *mat.VecDense, cov *mat.SymDense) (float64, error)
}

// Reduce runs prune, merge, and the optional cap, each stage feeding the
// next, and returns the reduced component list.
func (r *Reducer) Reduce(components []*Component) ([]*Component, error) {
	pruned := r.prune(components)

	merged, err := r.merge(pruned)
	if err != nil {
		return nil, err
	}

	if r.MaxComponents > 0 && len(merged) > r.MaxComponents {
		merged = r.cap(merged)
	}

	return merged, nil
}

func (r *Reducer) prune(components []*Component) []*Component {
	out := make([]*Component, 0, len(components))
	for _, c := range components {
		if c.Weight >= r.PruneThreshold {
			out = append(out, c)
		}
	}
	return out
}

// merge repeatedly picks the highest-weight surviving component c*, finds
// every other component whose squared Mahalanobis distance from c* (using
// c*'s covariance) is below MergeThreshold, and replaces that cluster with a
// single moment-matched component tagged with c*'s tag.
func (r *Reducer) merge(components []*Component) ([]*Component, error) {
	remaining := append([]*Component{}, components...)
	merged := make([]*Component, 0, len(components))

	for len(remaining) > 0 {
		bestIdx := 0
		for i, c := range remaining {
			if c.Weight > remaining[bestIdx].Weight {
				bestIdx = i
			}
		}
		star := remaining[bestIdx]

		cluster := []*Component{star}
		var rest []*Component
		for i, c := range remaining {
			if i == bestIdx {
				continue
			}
			d2, err := r.SquaredMahalanobis(c.Mean, star.Mean, star.Covariance)
			if err != nil {
				return nil, fmt.Errorf("gmphd: merge distance: %w", err)
			}
			if d2 < r.MergeThreshold {
				cluster = append(cluster, c)
			} else {
				rest = append(rest, c)
			}
		}

		merged = append(merged, mergeCluster(cluster))
		remaining = rest
	}

	return merged, nil
}

// mergeCluster combines a cluster of components into one, preserving first
// and second moments: weight is the cluster's weight sum, mean is the
// weight-weighted mean, and covariance is the weight-weighted sum of
// (Sigma_i + (m_i - mbar)(m_i - mbar)^T). The merged component inherits the
// tag of the highest-weight contributor.
func mergeCluster(cluster []*Component) *Component {
	if len(cluster) == 1 {
		return cluster[0].Clone()
	}

	n := cluster[0].Dim()

	var weightSum float64
	star := cluster[0]
	for _, c := range cluster {
		weightSum += c.Weight
		if c.Weight > star.Weight {
			star = c
		}
	}

	mean := mat.NewVecDense(n, nil)
	for _, c := range cluster {
		var scaled mat.VecDense
		scaled.ScaleVec(c.Weight/weightSum, c.Mean)
		mean.AddVec(mean, &scaled)
	}

	cov := mat.NewSymDense(n, nil)
	for _, c := range cluster {
		diff := mat.NewVecDense(n, nil)
		diff.SubVec(c.Mean, mean)

		var outer mat.Dense
		outer.Outer(1, diff, diff)

		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				contrib := c.Weight / weightSum * (c.Covariance.At(i, j) + outer.At(i, j))
				cov.SetSym(i, j, cov.At(i, j)+contrib)
			}
		}
	}

	return &Component{
		Mean:       mean,
		Covariance: cov,
		Weight:     weightSum,
		Tag:        star.Tag,
		Timestamp:  star.Timestamp,
	}
}

// cap retains only the MaxComponents highest-weighted components.
func (r *Reducer) cap(components []*Component) []*Component {
	sorted := append([]*Component{}, components...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	return sorted[:r.MaxComponents]
}
