package ili

import (
	"math"
	"sort"

	"github.com/sujitk-cyber/pipe-align-predict/internal/monitoring"
)

// Interaction-zone clustering over matched anomalies, using density-based
// spatial clustering in 1-D (distance) or 2-D (distance, clock) feature
// space. Purely a reporting enrichment on the matched output; it never
// feeds back into matching or growth.

// Clustering defaults: 50 ft neighborhood, two anomalies make a zone.
const (
	DefaultClusterEpsFt      = 50.0
	DefaultClusterMinSamples = 2
)

// Cluster modes.
const (
	ClusterMode1D = "1d"
	ClusterMode2D = "2d"
)

// ClusterParams configures interaction-zone clustering.
type ClusterParams struct {
	EpsFt      float64
	Mode       string // ClusterMode1D or ClusterMode2D
	MinSamples int
}

// DefaultClusterParams returns production-default clustering parameters.
func DefaultClusterParams() ClusterParams {
	return ClusterParams{
		EpsFt:      DefaultClusterEpsFt,
		Mode:       ClusterMode1D,
		MinSamples: DefaultClusterMinSamples,
	}
}

// clusterPoint is one anomaly projected into clustering feature space.
type clusterPoint struct {
	X, Y float64
}

// clusterIndex accelerates neighbor queries with a regular grid whose cell
// size matches eps, so a region query only inspects the 3x3 cell
// neighborhood.
type clusterIndex struct {
	cellSize float64
	grid     map[int64][]int
}

func newClusterIndex(points []clusterPoint, cellSize float64) *clusterIndex {
	idx := &clusterIndex{
		cellSize: cellSize,
		grid:     make(map[int64][]int, len(points)),
	}
	for i, p := range points {
		id := idx.cellID(int64(math.Floor(p.X/cellSize)), int64(math.Floor(p.Y/cellSize)))
		idx.grid[id] = append(idx.grid[id], i)
	}
	return idx
}

// cellID pairs two signed cell coordinates into one key: zigzag encoding to
// non-negative, then Szudzik's pairing function.
func (ci *clusterIndex) cellID(cellX, cellY int64) int64 {
	var a, b int64
	if cellX >= 0 {
		a = 2 * cellX
	} else {
		a = -2*cellX - 1
	}
	if cellY >= 0 {
		b = 2 * cellY
	} else {
		b = -2*cellY - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// regionQuery returns indices of all points within eps of points[idx].
func (ci *clusterIndex) regionQuery(points []clusterPoint, idx int, eps float64) []int {
	p := points[idx]
	eps2 := eps * eps
	cellX := int64(math.Floor(p.X / ci.cellSize))
	cellY := int64(math.Floor(p.Y / ci.cellSize))

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, cand := range ci.grid[ci.cellID(cellX+dx, cellY+dy)] {
				ddx := points[cand].X - p.X
				ddy := points[cand].Y - p.Y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, cand)
				}
			}
		}
	}
	return neighbors
}

// clusterFeatureSpace projects growth rows into clustering space. 1-D mode
// uses Run-A distance only; 2-D mode adds the Run-A clock position
// normalized so a full turn spans eps, letting both dimensions contribute
// roughly equally. Unknown clock maps to the pipe bottom (180 deg).
func clusterFeatureSpace(rows []GrowthRow, p ClusterParams) []clusterPoint {
	points := make([]clusterPoint, len(rows))
	for i, row := range rows {
		points[i].X = row.DistanceA
		if p.Mode == ClusterMode2D {
			clock := 180.0
			if row.ClockDegA != nil {
				clock = *row.ClockDegA
			}
			points[i].Y = clock / 360.0 * p.EpsFt
		}
	}
	return points
}

// ClusterAnomalies assigns a ClusterID to every growth row in place:
// -1 for noise/unclustered, 0..k-1 for the k zones found. Returns the
// number of clusters.
func ClusterAnomalies(rows []GrowthRow, p ClusterParams) int {
	if len(rows) == 0 {
		return 0
	}
	if p.MinSamples <= 0 {
		p.MinSamples = DefaultClusterMinSamples
	}
	if p.EpsFt <= 0 {
		p.EpsFt = DefaultClusterEpsFt
	}

	points := clusterFeatureSpace(rows, p)
	index := newClusterIndex(points, p.EpsFt)

	const unvisited = -2
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	nextCluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbors := index.regionQuery(points, i, p.EpsFt)
		if len(neighbors) < p.MinSamples {
			labels[i] = -1
			continue
		}

		cluster := nextCluster
		nextCluster++
		labels[i] = cluster

		// Queue-based expansion; noise points become border points.
		for j := 0; j < len(neighbors); j++ {
			idx := neighbors[j]
			if labels[idx] == -1 {
				labels[idx] = cluster
			}
			if labels[idx] != unvisited {
				continue
			}
			labels[idx] = cluster
			more := index.regionQuery(points, idx, p.EpsFt)
			if len(more) >= p.MinSamples {
				neighbors = append(neighbors, more...)
			}
		}
	}

	noise := 0
	for i := range rows {
		rows[i].ClusterID = labels[i]
		if labels[i] == -1 {
			noise++
		}
	}
	monitoring.Logf("clustering (%s, eps=%.1f): %d clusters, %d unclustered anomalies",
		p.Mode, p.EpsFt, nextCluster, noise)
	return nextCluster
}

// ComputeClusterMetrics aggregates per-zone statistics over clustered rows.
// Noise rows (ClusterID -1) are excluded.
func ComputeClusterMetrics(rows []GrowthRow) []ClusterMetrics {
	byCluster := make(map[int][]*GrowthRow)
	for i := range rows {
		if rows[i].ClusterID >= 0 {
			byCluster[rows[i].ClusterID] = append(byCluster[rows[i].ClusterID], &rows[i])
		}
	}
	if len(byCluster) == 0 {
		return nil
	}

	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	metrics := make([]ClusterMetrics, 0, len(ids))
	for _, id := range ids {
		members := byCluster[id]
		m := ClusterMetrics{ClusterID: id, AnomalyCount: len(members)}

		minDist := math.Inf(1)
		maxDist := math.Inf(-1)
		var sumDist, sumDepth, sumArea, sumGrowth float64
		nDepth, nGrowth := 0, 0
		for _, row := range members {
			sumDist += row.DistanceA
			minDist = math.Min(minDist, row.DistanceA)
			maxDist = math.Max(maxDist, row.DistanceA)
			if row.DepthPctB != nil {
				sumDepth += *row.DepthPctB
				nDepth++
			}
			if row.LengthB != nil && row.WidthB != nil {
				sumArea += *row.LengthB * *row.WidthB
			}
			if row.DepthGrowthPctPerYr != nil {
				sumGrowth += *row.DepthGrowthPctPerYr
				nGrowth++
			}
		}
		m.CentroidDistance = sumDist / float64(len(members))
		m.SpanFt = maxDist - minDist
		if nDepth > 0 {
			m.AverageDepthPct = sumDepth / float64(nDepth)
		}
		m.TotalLossAreaIn2 = sumArea
		if nGrowth > 0 {
			m.MeanGrowthRate = sumGrowth / float64(nGrowth)
		}
		metrics = append(metrics, m)
	}
	monitoring.Logf("clustering: metrics for %d clusters", len(metrics))
	return metrics
}
