package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
)

const zeroThreshold = 1e-35

// TreeEnsemble evaluates a LightGBM model exported with dump_model.
type TreeEnsemble struct {
	FeatureNames []string   `json:"feature_names"`
	Trees        []treeInfo `json:"tree_info"`
}

type treeInfo struct {
	TreeIndex int       `json:"tree_index"`
	Shrinkage float64   `json:"shrinkage"`
	Root      *treeNode `json:"tree_structure"`
}

type treeNode struct {
	SplitFeature *int      `json:"split_feature,omitempty"`
	Threshold    threshold `json:"threshold"`
	DecisionType string    `json:"decision_type"`
	DefaultLeft  bool      `json:"default_left"`
	MissingType  string    `json:"missing_type"`
	Left         *treeNode `json:"left_child,omitempty"`
	Right        *treeNode `json:"right_child,omitempty"`
	LeafValue    float64   `json:"leaf_value"`
}

// threshold is numeric for "<=" splits and a "||"-joined category list for "==" splits.
type threshold struct {
	value      float64
	categories map[int]struct{}
}

func (t *threshold) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		return json.Unmarshal(data, &t.value)
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.categories = make(map[int]struct{})
	for _, part := range strings.Split(raw, "||") {
		c, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("lgbm: category %q: %w", part, err)
		}
		t.categories[c] = struct{}{}
	}
	return nil
}

// DecodeTreeEnsemble parses a LightGBM dump_model document.
func DecodeTreeEnsemble(data []byte) (*TreeEnsemble, error) {
	var m TreeEnsemble
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: lgbm artifact: %v", forecasting.ErrModelLoad, err)
	}
	if len(m.FeatureNames) == 0 || len(m.Trees) == 0 {
		return nil, fmt.Errorf("%w: lgbm artifact has no features or trees", forecasting.ErrModelLoad)
	}
	for _, tree := range m.Trees {
		if err := tree.Root.validate(len(m.FeatureNames)); err != nil {
			return nil, fmt.Errorf("%w: lgbm tree %d: %v", forecasting.ErrModelLoad, tree.TreeIndex, err)
		}
	}
	return &m, nil
}

func (n *treeNode) validate(features int) error {
	if n == nil {
		return fmt.Errorf("missing node")
	}
	if n.SplitFeature == nil {
		return nil
	}
	if *n.SplitFeature < 0 || *n.SplitFeature >= features {
		return fmt.Errorf("split feature %d out of range", *n.SplitFeature)
	}
	if err := n.Left.validate(features); err != nil {
		return err
	}
	return n.Right.validate(features)
}

// Family implements Model.
func (m *TreeEnsemble) Family() forecasting.Family { return forecasting.FamilyGradientBoostedTree }

// Predict sums the leaf values of every tree for each matrix row. Columns are
// matched to feature_names by name.
func (m *TreeEnsemble) Predict(matrix *features.Table) ([]float64, error) {
	if matrix == nil {
		return nil, fmt.Errorf("%w: nil matrix", forecasting.ErrMissingFeature)
	}
	cols := make([][]float64, len(m.FeatureNames))
	for j, name := range m.FeatureNames {
		values, ok := matrix.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", forecasting.ErrMissingFeature, name)
		}
		cols[j] = values
	}

	out := make([]float64, matrix.Len())
	row := make([]float64, len(cols))
	for i := range out {
		for j := range cols {
			row[j] = cols[j][i]
		}
		var sum float64
		for _, tree := range m.Trees {
			sum += tree.Root.eval(row)
		}
		out[i] = sum
	}
	return out, nil
}

func (n *treeNode) eval(row []float64) float64 {
	for n.SplitFeature != nil {
		if n.goLeft(row[*n.SplitFeature]) {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.LeafValue
}

func (n *treeNode) goLeft(v float64) bool {
	if n.DecisionType == "==" {
		if math.IsNaN(v) || v < 0 {
			return false
		}
		_, ok := n.Threshold.categories[int(v)]
		return ok
	}
	switch n.MissingType {
	case "NaN":
		if math.IsNaN(v) {
			return n.DefaultLeft
		}
	case "Zero":
		if math.IsNaN(v) || math.Abs(v) <= zeroThreshold {
			return n.DefaultLeft
		}
	default:
		if math.IsNaN(v) {
			v = 0
		}
	}
	return v <= n.Threshold.value
}
