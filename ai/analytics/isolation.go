package analytics

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	forestTrees         = 100
	forestSampleSize    = 256
	forestContamination = 0.05
	forestSeed          = 42
)

// isoNode is one node of an isolation tree.
type isoNode struct {
	left, right *isoNode
	splitDim    int
	splitValue  float64
	size        int
}

// DetectAnomalies runs an isolation forest over the readings and flags the
// most isolated 5% as anomalous. The forest is seeded so the same input
// always yields the same report.
func DetectAnomalies(readings []Reading, machineID string) Result {
	if len(readings) == 0 {
		return Result{Answer: fmt.Sprintf("No data found for %s.", machineID)}
	}

	points := make([][]float64, len(readings))
	for i, r := range readings {
		points[i] = r.features()
	}

	rng := rand.New(rand.NewSource(forestSeed))
	scores := isolationScores(points, rng)

	flagged := flagByContamination(scores, forestContamination)
	numAnomalies := 0
	chartData := make([]map[string]any, len(readings))
	for i, r := range readings {
		label := 1
		if flagged[i] {
			label = -1
			numAnomalies++
		}
		chartData[i] = r.chartRow(map[string]any{"anomaly": label})
	}

	answer := fmt.Sprintf(
		"**Anomaly Detection Report for %s**\n\n"+
			"- **Model**: Isolation Forest (Unsupervised)\n"+
			"- **Data Points Analyzed**: %d\n"+
			"- **Anomalies Detected**: %d\n\n"+
			"The chart below highlights the anomalous points in red.",
		machineID, len(readings), numAnomalies)

	return Result{Answer: answer, ChartData: chartData, ChartType: "scatter_anomaly"}
}

// isolationScores returns the per-point anomaly score, higher meaning more
// isolated.
func isolationScores(points [][]float64, rng *rand.Rand) []float64 {
	n := len(points)
	sampleSize := forestSampleSize
	if sampleSize > n {
		sampleSize = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	pathSums := make([]float64, n)
	for t := 0; t < forestTrees; t++ {
		sample := make([][]float64, sampleSize)
		for i := range sample {
			sample[i] = points[rng.Intn(n)]
		}
		tree := buildIsoTree(sample, 0, maxDepth, rng)
		for i, p := range points {
			pathSums[i] += pathLength(tree, p, 0)
		}
	}

	c := averagePathLength(sampleSize)
	scores := make([]float64, n)
	for i := range scores {
		avg := pathSums[i] / forestTrees
		scores[i] = math.Pow(2, -avg/c)
	}
	return scores
}

func buildIsoTree(points [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(points) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(points)}
	}

	dim := rng.Intn(len(points[0]))
	lo, hi := points[0][dim], points[0][dim]
	for _, p := range points {
		if p[dim] < lo {
			lo = p[dim]
		}
		if p[dim] > hi {
			hi = p[dim]
		}
	}
	if lo == hi {
		return &isoNode{size: len(points)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, p := range points {
		if p[dim] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	return &isoNode{
		splitDim:   dim,
		splitValue: split,
		size:       len(points),
		left:       buildIsoTree(left, depth+1, maxDepth, rng),
		right:      buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *isoNode, point []float64, depth int) float64 {
	if node.left == nil {
		return float64(depth) + averagePathLength(node.size)
	}
	if point[node.splitDim] < node.splitValue {
		return pathLength(node.left, point, depth+1)
	}
	return pathLength(node.right, point, depth+1)
}

// averagePathLength is the expected unsuccessful BST search depth for n
// points, the standard normalizer for isolation forest scores.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

// flagByContamination marks the top fraction of scores as anomalous.
func flagByContamination(scores []float64, contamination float64) []bool {
	n := len(scores)
	numFlag := int(math.Round(float64(n) * contamination))
	if numFlag < 1 && n > 0 {
		numFlag = 1
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Highest score first.
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	flagged := make([]bool, n)
	for i := 0; i < numFlag && i < n; i++ {
		flagged[order[i]] = true
	}
	return flagged
}
