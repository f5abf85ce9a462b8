package processor

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// modelTable 时长 = 2*里程 + 小时/2 的合成数据
func modelTable(n int) dataframe.DataFrame {
	miles := make([]float64, n)
	hours := make([]int, n)
	durations := make([]float64, n)
	for i := 0; i < n; i++ {
		miles[i] = float64(i%17) + 0.5
		hours[i] = (i * 7) % 24
		durations[i] = 2*miles[i] + float64(hours[i])/2
	}
	return dataframe.New(
		series.New(miles, series.Float, ColMiles),
		series.New(hours, series.Int, ColHour),
		series.New(durations, series.Float, ColDuration),
	)
}

func TestModelDataDropsNulls(t *testing.T) {
	df := dataframe.New(
		series.New([]interface{}{1.0, nil, 3.0, 4.0}, series.Float, ColMiles),
		series.New([]interface{}{1, 2, nil, 4}, series.Int, ColHour),
		series.New([]interface{}{10.0, 20.0, 30.0, nil}, series.Float, ColDuration),
	)
	x, y := ModelData(df)
	if len(x) != 1 || len(y) != 1 || x[0][0] != 1 || x[0][1] != 1 || y[0] != 10 {
		t.Errorf("x=%v y=%v", x, y)
	}
}

func TestTrainTestSplit(t *testing.T) {
	x := make([][]float64, 10)
	y := make([]float64, 10)
	for i := range y {
		x[i] = []float64{float64(i)}
		y[i] = float64(i)
	}
	s, err := TrainTestSplit(x, y, TestSize, SplitSeed)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.TestY) != 2 || len(s.TrainY) != 8 {
		t.Fatalf("split sizes train=%d test=%d", len(s.TrainY), len(s.TestY))
	}

	again, _ := TrainTestSplit(x, y, TestSize, SplitSeed)
	for i := range s.TestY {
		if s.TestY[i] != again.TestY[i] {
			t.Error("split must be deterministic for a fixed seed")
		}
	}

	seen := map[float64]bool{}
	for _, v := range append(append([]float64{}, s.TrainY...), s.TestY...) {
		seen[v] = true
	}
	if len(seen) != 10 {
		t.Errorf("split lost rows: %v", seen)
	}

	if _, err := TrainTestSplit(x[:1], y[:1], TestSize, SplitSeed); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("single row: err = %v", err)
	}
}

func TestCompareModelsNoData(t *testing.T) {
	df := dataframe.New(
		series.New([]interface{}{nil, 2.0}, series.Float, ColMiles),
		series.New([]interface{}{1, nil}, series.Int, ColHour),
		series.New([]interface{}{5.0, 6.0}, series.Float, ColDuration),
	)
	if _, err := CompareModels(df); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("CompareModels err = %v", err)
	}
	if _, err := PredictDuration(df, ModelLinear, 5, 9); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("PredictDuration err = %v", err)
	}
	if _, err := CompareModels(dataframe.New()); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty table err = %v", err)
	}
}

func TestCompareModels(t *testing.T) {
	df := modelTable(60)
	scores, err := CompareModels(df)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != len(ModelNames) {
		t.Fatalf("scores = %+v", scores)
	}
	for i, s := range scores {
		if s.Model != ModelNames[i] {
			t.Errorf("score[%d] model = %s", i, s.Model)
		}
		if math.IsNaN(float64(s.RMSE)) || float64(s.RMSE) < 0 {
			t.Errorf("%s rmse = %v", s.Model, s.RMSE)
		}
	}
	if float64(scores[0].RMSE) > 1e-6 || math.Abs(float64(scores[0].R2)-1) > 1e-9 {
		t.Errorf("linear fit on linear data: %+v", scores[0])
	}

	again, err := CompareModels(df)
	if err != nil {
		t.Fatal(err)
	}
	for i := range scores {
		if scores[i].RMSE != again[i].RMSE {
			t.Errorf("%s is not deterministic: %v vs %v", scores[i].Model, scores[i].RMSE, again[i].RMSE)
		}
	}
}

func TestPredictDuration(t *testing.T) {
	df := modelTable(60)
	p, err := PredictDuration(df, ModelLinear, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(p.Duration)-15) > 1e-6 || p.Model != ModelLinear || p.Hour != 10 {
		t.Errorf("prediction = %+v, want duration 15", p)
	}

	for _, name := range []string{ModelTree, ModelForest} {
		p, err := PredictDuration(df, name, 5, 10)
		if err != nil {
			t.Fatal(err)
		}
		if p.Duration <= 0 || p.Duration > 50 {
			t.Errorf("%s prediction = %v", name, p.Duration)
		}
	}
}

func TestPredictDurationBadParams(t *testing.T) {
	df := modelTable(20)
	if _, err := PredictDuration(df, "SVM", 5, 9); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("unknown model err = %v", err)
	}
	for _, h := range []int{-1, 24} {
		if _, err := PredictDuration(df, ModelTree, 5, h); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("hour %d err = %v", h, err)
		}
	}
	for _, m := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := PredictDuration(df, ModelLinear, m, 9); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("miles %v err = %v", m, err)
		}
	}
}

func TestDecisionTreeFitsTrainingData(t *testing.T) {
	x := [][]float64{{1, 0}, {2, 0}, {3, 1}, {4, 1}, {5, 2}}
	y := []float64{10, 20, 30, 40, 50}
	tree := &DecisionTree{}
	if err := tree.Fit(x, y); err != nil {
		t.Fatal(err)
	}
	for i := range x {
		if got := tree.Predict(x[i]); got != y[i] {
			t.Errorf("Predict(%v) = %v, want %v", x[i], got, y[i])
		}
	}
	if got := tree.Predict([]float64{100, 5}); got != 50 {
		t.Errorf("out of range prediction = %v", got)
	}
}

func TestDecisionTreeDuplicateFeatures(t *testing.T) {
	x := [][]float64{{1, 1}, {1, 1}, {2, 2}}
	y := []float64{4, 6, 9}
	tree := &DecisionTree{}
	if err := tree.Fit(x, y); err != nil {
		t.Fatal(err)
	}
	if got := tree.Predict([]float64{1, 1}); got != 5 {
		t.Errorf("duplicate rows leaf = %v, want mean 5", got)
	}
}

func TestRandomForestDeterministic(t *testing.T) {
	x := make([][]float64, 30)
	y := make([]float64, 30)
	for i := range y {
		x[i] = []float64{float64(i), float64(i % 5)}
		y[i] = float64(i * i % 13)
	}
	a := &RandomForest{Trees: 20, Seed: 0}
	b := &RandomForest{Trees: 20, Seed: 0}
	if err := a.Fit(x, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(x, y); err != nil {
		t.Fatal(err)
	}
	for i := range x {
		if pa, pb := a.Predict(x[i]), b.Predict(x[i]); pa != pb {
			t.Fatalf("row %d: %v vs %v", i, pa, pb)
		}
	}
}

func TestRandomForestTrainsEveryTree(t *testing.T) {
	x := [][]float64{{1, 0}, {2, 1}, {3, 2}}
	y := []float64{3, 6, 9}
	rf := &RandomForest{Trees: 8, Seed: 7}
	if err := rf.Fit(x, y); err != nil {
		t.Fatal(err)
	}
	if len(rf.trees) != 8 {
		t.Fatalf("trees = %d, want 8", len(rf.trees))
	}
	for i, tree := range rf.trees {
		if tree == nil || tree.root == nil {
			t.Errorf("tree %d was not trained", i)
		}
	}

	if err := (&RandomForest{}).Fit(nil, nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty training set err = %v", err)
	}
}

func TestMetrics(t *testing.T) {
	cases := []struct {
		y, pred  []float64
		rmse, r2 float64
	}{
		{[]float64{1, 2, 3}, []float64{1, 2, 3}, 0, 1},
		{[]float64{1, 2, 3}, []float64{2, 2, 2}, math.Sqrt(2.0 / 3), 0},
		{[]float64{5, 5}, []float64{5, 5}, 0, 1},
		{[]float64{5, 5}, []float64{4, 6}, 1, 0},
	}
	for i, c := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got := RMSE(c.y, c.pred); math.Abs(got-c.rmse) > 1e-12 {
				t.Errorf("RMSE = %v, want %v", got, c.rmse)
			}
			if got := R2(c.y, c.pred); math.Abs(got-c.r2) > 1e-12 {
				t.Errorf("R2 = %v, want %v", got, c.r2)
			}
		})
	}
	if !math.IsNaN(R2([]float64{1}, []float64{1})) {
		t.Error("R2 of a single sample should be NaN")
	}
	if !math.IsNaN(RMSE(nil, nil)) {
		t.Error("RMSE of no samples should be NaN")
	}
}
