package forecasting

import "strings"

// Family tags the prediction routine a fitted model needs.
type Family string

const (
	// FamilyExogRegression is a time series model with exogenous regressors (SARIMAX).
	FamilyExogRegression Family = "sarimax"
	// FamilyAdditiveRegression is an additive trend/seasonality model (Prophet).
	FamilyAdditiveRegression Family = "prophet"
	// FamilyGradientBoostedTree is a tree ensemble (LightGBM).
	FamilyGradientBoostedTree Family = "lgbm"
)

// ParseFamily maps aliases to a family tag. Unknown values are kept verbatim so the
// dispatcher can reject them with ErrUnsupportedModelType.
func ParseFamily(value string) Family {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sarimax", "exog", "exogenous-regression":
		return FamilyExogRegression
	case "prophet", "additive", "additive-regression":
		return FamilyAdditiveRegression
	case "lgbm", "lightgbm", "gbt", "gradient-boosted-tree":
		return FamilyGradientBoostedTree
	default:
		return Family(strings.TrimSpace(value))
	}
}

// IsKnown reports whether a prediction routine exists for the family.
func (f Family) IsKnown() bool {
	switch f {
	case FamilyExogRegression, FamilyAdditiveRegression, FamilyGradientBoostedTree:
		return true
	default:
		return false
	}
}
