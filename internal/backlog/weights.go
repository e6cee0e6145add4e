// Package backlog ranks the ticker universe for data gathering. Each
// prioritization run scores every candidate from raw warehouse metrics,
// normalizes per component, combines under configurable weights, and
// persists the full ranked set for auditability.
package backlog

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Scoring component names. Weight overrides are validated against these.
const (
	CompXBRLRichness     = "xbrl_richness"
	CompKeyMetrics       = "key_metrics"
	CompStockDataNeed    = "stock_data_need"
	CompFilingActivity   = "filing_activity"
	CompHasStockData     = "has_stock_data"
	CompExchangePriority = "exchange_priority"
)

// Weights maps component names to non-negative multipliers. A valid Weights
// value is always normalized to sum to 1.
type Weights map[string]float64

// Profile names the component set and default weights of one backlog kind.
type Profile struct {
	Name     string
	Defaults Weights
}

// StockProfile prioritizes tickers for price-history gathering. The need
// component dominates: a cold-start ticker is worth far more of the call
// budget than a merely stale one.
var StockProfile = Profile{
	Name: "stock_backlog",
	Defaults: Weights{
		CompXBRLRichness:   0.25,
		CompKeyMetrics:     0.15,
		CompStockDataNeed:  0.45,
		CompFilingActivity: 0.15,
	},
}

// InfoProfile prioritizes tickers for reference-detail gathering.
var InfoProfile = Profile{
	Name: "ticker_info_backlog",
	Defaults: Weights{
		CompXBRLRichness:     0.30,
		CompKeyMetrics:       0.25,
		CompHasStockData:     0.20,
		CompFilingActivity:   0.15,
		CompExchangePriority: 0.10,
	},
}

// ParseWeights parses a "key=value,key=value" override string against a
// profile. Unknown keys and non-positive sums are rejected. Components not
// mentioned keep their default weight; the result is normalized to sum to 1.
func ParseWeights(raw string, profile Profile) (Weights, error) {
	if strings.TrimSpace(raw) == "" {
		return normalize(profile.Defaults)
	}

	out := make(Weights)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, found := strings.Cut(part, "=")
		if !found {
			return nil, eris.Errorf("backlog: invalid weight spec %q, use key=value", part)
		}
		key = strings.TrimSpace(key)
		if _, known := profile.Defaults[key]; !known {
			return nil, eris.Errorf("backlog: unknown weight %q for profile %s", key, profile.Name)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, eris.Errorf("backlog: weight %q must be numeric, got %q", key, val)
		}
		if f < 0 {
			return nil, eris.Errorf("backlog: weight %q must be non-negative", key)
		}
		out[key] = f
	}

	for key, def := range profile.Defaults {
		if _, set := out[key]; !set {
			out[key] = def
		}
	}
	return normalize(out)
}

// LoadWeightsFile reads a YAML weight map and validates it like ParseWeights.
func LoadWeightsFile(path string, profile Profile) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "backlog: read weights file %s", path)
	}
	var raw map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "backlog: parse weights file %s", path)
	}

	out := make(Weights)
	for key, val := range raw {
		if _, known := profile.Defaults[key]; !known {
			return nil, eris.Errorf("backlog: unknown weight %q in %s", key, path)
		}
		if val < 0 {
			return nil, eris.Errorf("backlog: weight %q must be non-negative", key)
		}
		out[key] = val
	}
	for key, def := range profile.Defaults {
		if _, set := out[key]; !set {
			out[key] = def
		}
	}
	return normalize(out)
}

func normalize(w Weights) (Weights, error) {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return nil, eris.New("backlog: weights must sum to > 0")
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v / total
	}
	return out, nil
}
