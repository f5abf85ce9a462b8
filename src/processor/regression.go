// regression.go
package processor

import (
	"fmt"
	"math"
	"math/rand"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// 模型名称
const (
	ModelLinear = "Linear Regression"
	ModelTree   = "Decision Tree"
	ModelForest = "Random Forest"
)

// ModelNames 模型比较表的固定顺序
var ModelNames = []string{ModelLinear, ModelTree, ModelForest}

const (
	// TestSize 测试集比例
	TestSize = 0.2
	// SplitSeed 划分训练/测试集的随机种子
	SplitSeed int64 = 0
	// ForestTrees 随机森林中树的数量
	ForestTrees = 100
)

// Regressor 以 (里程, 小时) 预测时长的回归器
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(x []float64) float64
}

// NewRegressor 按名称创建未训练的回归器
func NewRegressor(name string) (Regressor, error) {
	switch name {
	case ModelLinear:
		return &LinearRegression{}, nil
	case ModelTree:
		return &DecisionTree{}, nil
	case ModelForest:
		return &RandomForest{Trees: ForestTrees, Seed: 0}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
}

// ModelScore 单个模型在测试集上的指标
type ModelScore struct {
	Model string `json:"model"`
	RMSE  Float  `json:"rmse"`
	R2    Float  `json:"r2"` // 测试集少于两行时为 NaN
}

// Prediction 单次时长预测
type Prediction struct {
	Model    string  `json:"model"`
	Miles    float64 `json:"miles"`
	Hour     int     `json:"hour"`
	Duration Float   `json:"duration"`
}

// Split 训练/测试集
type Split struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64
}

// ModelData 去掉里程、小时或时长为空的行，返回特征与目标
func ModelData(df dataframe.DataFrame) ([][]float64, []float64) {
	if !utils.HasColumn(df, ColMiles) || !utils.HasColumn(df, ColHour) || !utils.HasColumn(df, ColDuration) {
		return nil, nil
	}
	miles, hours, durations := df.Col(ColMiles), df.Col(ColHour), df.Col(ColDuration)

	var x [][]float64
	var y []float64
	for i := 0; i < df.Nrow(); i++ {
		m, ok1 := utils.FloatAt(miles, i)
		h, ok2 := utils.IntAt(hours, i)
		d, ok3 := utils.FloatAt(durations, i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		x = append(x, []float64{m, float64(h)})
		y = append(y, d)
	}
	return x, y
}

// TrainTestSplit 随机打乱后取前 ceil(n*testSize) 行作为测试集
func TrainTestSplit(x [][]float64, y []float64, testSize float64, seed int64) (Split, error) {
	n := len(y)
	nTest := int(math.Ceil(float64(n) * testSize))
	nTrain := n - nTest
	if n == 0 || nTest < 1 || nTrain < 1 {
		return Split{}, fmt.Errorf("%w: %d usable rows cannot be split", ErrInsufficientData, n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	var s Split
	for k, i := range perm {
		if k < nTest {
			s.TestX = append(s.TestX, x[i])
			s.TestY = append(s.TestY, y[i])
		} else {
			s.TrainX = append(s.TrainX, x[i])
			s.TrainY = append(s.TrainY, y[i])
		}
	}
	return s, nil
}

// prepareSplit 取建模数据并划分，没有数据时返回 ErrInsufficientData
func prepareSplit(df dataframe.DataFrame) (Split, error) {
	x, y := ModelData(df)
	if len(y) == 0 {
		return Split{}, fmt.Errorf("%w: no rows with miles, hour and duration", ErrInsufficientData)
	}
	return TrainTestSplit(x, y, TestSize, SplitSeed)
}

// CompareModels 每次调用都重新训练三个模型并在测试集上评估
func CompareModels(df dataframe.DataFrame) ([]ModelScore, error) {
	split, err := prepareSplit(df)
	if err != nil {
		return nil, err
	}

	scores := make([]ModelScore, 0, len(ModelNames))
	for _, name := range ModelNames {
		model, _ := NewRegressor(name)
		if err := model.Fit(split.TrainX, split.TrainY); err != nil {
			return nil, fmt.Errorf("训练%s失败: %w", name, err)
		}
		pred := make([]float64, len(split.TestY))
		for i, x := range split.TestX {
			pred[i] = model.Predict(x)
		}
		scores = append(scores, ModelScore{
			Model: name,
			RMSE:  Float(RMSE(split.TestY, pred)),
			R2:    Float(R2(split.TestY, pred)),
		})
	}
	return scores, nil
}

// PredictDuration 用所选模型在训练集上重新训练后预测单次行程时长
func PredictDuration(df dataframe.DataFrame, name string, miles float64, hour int) (Prediction, error) {
	model, err := NewRegressor(name)
	if err != nil {
		return Prediction{}, err
	}
	if hour < 0 || hour > 23 {
		return Prediction{}, fmt.Errorf("%w: hour must be in [0, 23], got %d", ErrInvalidParams, hour)
	}
	if math.IsNaN(miles) || math.IsInf(miles, 0) {
		return Prediction{}, fmt.Errorf("%w: miles must be finite, got %v", ErrInvalidParams, miles)
	}
	split, err := prepareSplit(df)
	if err != nil {
		return Prediction{}, err
	}
	if err := model.Fit(split.TrainX, split.TrainY); err != nil {
		return Prediction{}, fmt.Errorf("训练%s失败: %w", name, err)
	}
	return Prediction{
		Model:    name,
		Miles:    miles,
		Hour:     hour,
		Duration: Float(model.Predict([]float64{miles, float64(hour)})),
	}, nil
}

// RMSE 均方根误差
func RMSE(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	diff := make([]float64, len(y))
	floats.SubTo(diff, y, pred)
	return math.Sqrt(floats.Dot(diff, diff) / float64(len(y)))
}

// R2 决定系数；少于两个样本时为 NaN，目标值恒定时完全命中为 1 否则为 0
func R2(y, pred []float64) float64 {
	if len(y) < 2 {
		return math.NaN()
	}
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// LinearRegression 带截距的最小二乘线性回归
type LinearRegression struct {
	Intercept float64
	Coef      []float64
}

// Fit 在中心化数据上求解，特征共线时加极小的岭项得到稳定解
func (lr *LinearRegression) Fit(x [][]float64, y []float64) error {
	n := len(y)
	if n == 0 || len(x) != n {
		return fmt.Errorf("%w: empty training set", ErrInsufficientData)
	}
	p := len(x[0])

	xMean := make([]float64, p)
	for _, row := range x {
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := stat.Mean(y, nil)

	centered := mat.NewDense(n, p, nil)
	yc := make([]float64, n)
	for i, row := range x {
		for j := range row {
			centered.Set(i, j, row[j]-xMean[j])
		}
		yc[i] = y[i] - yMean
	}

	trace := 0.0
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, centered)
		trace += floats.Dot(col, col)
	}
	eps := 1e-10 * math.Max(1, trace/float64(p))
	penalty := make([]float64, p)
	for j := range penalty {
		penalty[j] = eps
	}

	coef, err := ridgeSolve(centered, yc, penalty)
	if err != nil {
		return err
	}
	lr.Coef = coef
	lr.Intercept = yMean - floats.Dot(coef, xMean)
	return nil
}

func (lr *LinearRegression) Predict(x []float64) float64 {
	return lr.Intercept + floats.Dot(lr.Coef, x)
}
