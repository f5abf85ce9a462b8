// tree.go
package processor

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// treeNode 叶子节点 left/right 为空
type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

// DecisionTree 以均方误差为准则的 CART 回归树，不限深度，叶子至少一个样本
type DecisionTree struct {
	root *treeNode
	rng  *rand.Rand // 非空时每次分裂随机打乱特征顺序
}

func (t *DecisionTree) Fit(x [][]float64, y []float64) error {
	if len(y) == 0 || len(x) != len(y) {
		return fmt.Errorf("%w: empty training set", ErrInsufficientData)
	}
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	t.root = t.build(x, y, idx)
	return nil
}

func (t *DecisionTree) Predict(x []float64) float64 {
	node := t.root
	if node == nil {
		return 0
	}
	for node.left != nil {
		if x[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

func (t *DecisionTree) build(x [][]float64, y []float64, idx []int) *treeNode {
	var sum float64
	pure := true
	for _, i := range idx {
		sum += y[i]
		if y[i] != y[idx[0]] {
			pure = false
		}
	}
	node := &treeNode{value: sum / float64(len(idx))}
	if len(idx) < 2 || pure {
		return node
	}

	feature, threshold, ok := t.bestSplit(x, y, idx)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}

	node.feature = feature
	node.threshold = threshold
	node.left = t.build(x, y, left)
	node.right = t.build(x, y, right)
	return node
}

// bestSplit 遍历各特征的相邻不同取值，取左右平方误差和最小的切分点
func (t *DecisionTree) bestSplit(x [][]float64, y []float64, idx []int) (int, float64, bool) {
	p := len(x[idx[0]])
	features := make([]int, p)
	for j := range features {
		features[j] = j
	}
	if t.rng != nil {
		t.rng.Shuffle(p, func(a, b int) { features[a], features[b] = features[b], features[a] })
	}

	n := len(idx)
	order := make([]int, n)
	bestFeature, bestThreshold := -1, 0.0
	bestErr := 0.0

	for _, f := range features {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		var totalSum, totalSq float64
		for _, i := range order {
			totalSum += y[i]
			totalSq += y[i] * y[i]
		}

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			prev := order[k-1]
			leftSum += y[prev]
			leftSq += y[prev] * y[prev]

			lo, hi := x[prev][f], x[order[k]][f]
			if lo == hi {
				continue
			}

			nl, nr := float64(k), float64(n-k)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if bestFeature == -1 || sse < bestErr {
				bestFeature, bestErr = f, sse
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature != -1
}

// RandomForest 自助采样的回归树集成，预测取各树平均
type RandomForest struct {
	Trees int
	Seed  int64
	trees []*DecisionTree
}

// Fit 种子按顺序预先生成，各树并行训练，结果与并行度无关
func (rf *RandomForest) Fit(x [][]float64, y []float64) error {
	n := len(y)
	if n == 0 || len(x) != n {
		return fmt.Errorf("%w: empty training set", ErrInsufficientData)
	}
	if rf.Trees < 1 {
		rf.Trees = ForestTrees
	}

	rng := rand.New(rand.NewSource(rf.Seed))
	samples := make([][]int, rf.Trees)
	seeds := make([]int64, rf.Trees)
	for t := range samples {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		samples[t] = sample
		seeds[t] = rng.Int63()
	}

	trees := make([]*DecisionTree, rf.Trees)
	errs := make([]error, rf.Trees)
	var wg sync.WaitGroup
	for t := range trees {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			bx := make([][]float64, n)
			by := make([]float64, n)
			for k, i := range samples[t] {
				bx[k], by[k] = x[i], y[i]
			}
			tree := &DecisionTree{rng: rand.New(rand.NewSource(seeds[t]))}
			errs[t] = tree.Fit(bx, by)
			trees[t] = tree
		}(t)
	}
	wg.Wait()

	for t, err := range errs {
		if err != nil {
			return fmt.Errorf("训练第%d棵树失败: %w", t, err)
		}
	}

	rf.trees = trees
	return nil
}

func (rf *RandomForest) Predict(x []float64) float64 {
	if len(rf.trees) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range rf.trees {
		sum += tree.Predict(x)
	}
	return sum / float64(len(rf.trees))
}
