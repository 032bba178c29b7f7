// Package analytics trains a least-squares regression on the cleaned
// dataset, predicting data_value from year, total population and
// category, and persists the fitted model and its holdout predictions.
package analytics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/placesdata/pipeline"
	"github.com/placesdata/pipeline/config"

	"go.uber.org/zap"
)

// Model is a fitted linear regression over standardized numeric
// features and one-hot encoded categories.
type Model struct {
	NumericFeatures []string  `json:"numeric_features"`
	NumericMeans    []float64 `json:"numeric_means"`
	NumericStds     []float64 `json:"numeric_stds"`
	// Categories in the encoding order; the first one is the baseline
	// absorbed by the intercept.
	Categories   []string  `json:"categories"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	MSE          float64   `json:"mse"`
	R2           float64   `json:"r2"`
	TrainedAt    time.Time `json:"trained_at"`
}

type Prediction struct {
	Actual    float64
	Predicted float64
}

type sample struct {
	year       float64
	population float64
	category   string
	target     float64
}

// LatestCleanedFile finds the most recent cleaned artifact; having
// none is a configuration error.
func LatestCleanedFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "cleaned_data_*.csv"))
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf(
			"%w: no cleaned data file found in %s",
			pipeline.ErrConfiguration, dir,
		)
	}
	return newest, nil
}

// Train fits the regression with a deterministic 80/20 split (every
// fifth usable row is held out).
func Train(t *pipeline.Table, now func() time.Time) (*Model, []Prediction, error) {
	if now == nil {
		now = time.Now
	}
	samples, err := collectSamples(t)
	if err != nil {
		return nil, nil, err
	}
	if len(samples) < 10 {
		return nil, nil, fmt.Errorf("training: only %d usable rows, need at least 10", len(samples))
	}

	var train, test []sample
	for i, s := range samples {
		if i%5 == 4 {
			test = append(test, s)
		} else {
			train = append(train, s)
		}
	}

	categories := collectCategories(samples)
	model := &Model{
		NumericFeatures: []string{"year", "totalpopulation"},
		Categories:      categories,
		TrainedAt:       now(),
	}
	model.fitScaler(train)

	x := make([][]float64, len(train))
	y := make([]float64, len(train))
	for i, s := range train {
		x[i] = model.featureVector(s)
		y[i] = s.target
	}
	beta, err := solveLeastSquares(x, y)
	if err != nil {
		return nil, nil, fmt.Errorf("training: %w", err)
	}
	model.Intercept = beta[0]
	model.Coefficients = beta[1:]

	predictions := make([]Prediction, len(test))
	var sse, sst, mean float64
	for _, s := range test {
		mean += s.target
	}
	mean /= float64(len(test))
	for i, s := range test {
		predicted := model.predict(s)
		predictions[i] = Prediction{Actual: s.target, Predicted: predicted}
		sse += (s.target - predicted) * (s.target - predicted)
		sst += (s.target - mean) * (s.target - mean)
	}
	model.MSE = sse / float64(len(test))
	if sst > 0 {
		model.R2 = 1 - sse/sst
	}

	zap.S().Infow(
		"model evaluation",
		"train_rows", len(train),
		"test_rows", len(test),
		"mse", fmt.Sprintf("%.2f", model.MSE),
		"r2", fmt.Sprintf("%.2f", model.R2),
	)
	return model, predictions, nil
}

// Run executes the whole training stage.
func Run(cfg *config.Config) error {
	path, err := LatestCleanedFile(cfg.Transform.ProcessedDir)
	if err != nil {
		return err
	}
	zap.S().Infow("using latest cleaned data file", "path", path)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening cleaned file: %v", pipeline.ErrConfiguration, err)
	}
	table, err := pipeline.ParseCSVTable(file)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	model, predictions, err := Train(table, nil)
	if err != nil {
		return err
	}

	modelPath := filepath.Join(cfg.Transform.ProcessedDir, "predictive_model.json")
	if err := saveModel(model, modelPath); err != nil {
		return err
	}
	zap.S().Infow("model saved", "path", modelPath)

	predictionsPath := filepath.Join(cfg.Transform.ProcessedDir, "predictions.csv")
	if err := savePredictions(predictions, predictionsPath); err != nil {
		return err
	}
	zap.S().Infow("predictions saved", "path", predictionsPath, "rows", len(predictions))
	return nil
}

func collectSamples(t *pipeline.Table) ([]sample, error) {
	yearIdx := t.ColumnIndex("year")
	popIdx := t.ColumnIndex("totalpopulation")
	catIdx := t.ColumnIndex("category")
	valIdx := t.ColumnIndex("data_value")
	if yearIdx < 0 || popIdx < 0 || catIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf(
			"training: year/totalpopulation/category/data_value not found in %v",
			t.Columns,
		)
	}

	var samples []sample
	for _, row := range t.Rows {
		year, errY := strconv.ParseFloat(row[yearIdx], 64)
		population, errP := strconv.ParseFloat(row[popIdx], 64)
		target, errT := strconv.ParseFloat(row[valIdx], 64)
		if errY != nil || errP != nil || errT != nil || row[catIdx] == "" {
			continue
		}
		samples = append(samples, sample{
			year:       year,
			population: population,
			category:   row[catIdx],
			target:     target,
		})
	}
	return samples, nil
}

func collectCategories(samples []sample) []string {
	set := map[string]struct{}{}
	for _, s := range samples {
		set[s.category] = struct{}{}
	}
	categories := make([]string, 0, len(set))
	for c := range set {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

func (m *Model) fitScaler(train []sample) {
	numeric := [][]float64{make([]float64, len(train)), make([]float64, len(train))}
	for i, s := range train {
		numeric[0][i] = s.year
		numeric[1][i] = s.population
	}
	m.NumericMeans = make([]float64, 2)
	m.NumericStds = make([]float64, 2)
	for f, values := range numeric {
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var variance float64
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(len(values)))
		if std == 0 {
			std = 1
		}
		m.NumericMeans[f] = mean
		m.NumericStds[f] = std
	}
}

// featureVector is [1, yearStd, popStd, onehot...] with the first
// category dropped as the baseline.
func (m *Model) featureVector(s sample) []float64 {
	v := make([]float64, 0, 3+len(m.Categories)-1)
	v = append(v, 1)
	v = append(v, (s.year-m.NumericMeans[0])/m.NumericStds[0])
	v = append(v, (s.population-m.NumericMeans[1])/m.NumericStds[1])
	for _, c := range m.Categories[1:] {
		if s.category == c {
			v = append(v, 1)
		} else {
			v = append(v, 0)
		}
	}
	return v
}

func (m *Model) predict(s sample) float64 {
	v := m.featureVector(s)
	result := m.Intercept
	for i, coefficient := range m.Coefficients {
		result += coefficient * v[i+1]
	}
	return result
}

// solveLeastSquares solves the normal equations with Gaussian
// elimination; a tiny ridge term keeps near-singular systems stable.
func solveLeastSquares(x [][]float64, y []float64) ([]float64, error) {
	k := len(x[0])
	a := make([][]float64, k)
	b := make([]float64, k)
	for i := range a {
		a[i] = make([]float64, k)
	}
	for r := range x {
		for i := 0; i < k; i++ {
			b[i] += x[r][i] * y[r]
			for j := 0; j < k; j++ {
				a[i][j] += x[r][i] * x[r][j]
			}
		}
	}
	for i := 0; i < k; i++ {
		a[i][i] += 1e-8
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular design matrix at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < k; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < k; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	beta := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < k; j++ {
			sum -= a[i][j] * beta[j]
		}
		beta[i] = sum / a[i][i]
	}
	return beta, nil
}

func saveModel(m *Model, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", pipeline.ErrPersistence, path, err)
	}
	return nil
}

func savePredictions(predictions []Prediction, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", pipeline.ErrPersistence, path, err)
	}
	cw := csv.NewWriter(file)
	_ = cw.Write([]string{"Actual", "Predicted"})
	for _, p := range predictions {
		_ = cw.Write([]string{
			strconv.FormatFloat(p.Actual, 'f', -1, 64),
			strconv.FormatFloat(p.Predicted, 'f', -1, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: writing %s: %v", pipeline.ErrPersistence, path, err)
	}
	return file.Close()
}
