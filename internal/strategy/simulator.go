package strategy

import (
	"math"

	"github.com/aurumlab/gsr-backend/internal/models"
)

// Outcome is a full simulation run: the derived per-day series plus the
// switch events that fired, in order.
type Outcome struct {
	Points   []models.SimulationPoint `json:"points"`
	Switches []models.SwitchEvent     `json:"switches"`
}

// Simulate walks the price slice once, front to back, switching holdings
// whenever the gold/silver ratio crosses a configured threshold. Two
// buy-and-hold baselines (all gold, all silver) are computed alongside from
// the same first-day prices. The run is pure: identical inputs always
// produce identical output.
func Simulate(records []models.PriceRecord, p models.StrategyParams) (*Outcome, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		// An empty window means nothing to display, not a failure.
		return &Outcome{Points: []models.SimulationPoint{}}, nil
	}

	first := records[0]
	held := p.StartAsset
	units := p.StartAmount / first.Price(held)

	goldUnits := p.StartAmount / first.Gold
	silverUnits := p.StartAmount / first.Silver

	points := make([]models.SimulationPoint, 0, len(records))
	var switches []models.SwitchEvent

	prevRatio := first.Ratio()

	for i, rec := range records {
		ratio := rec.Ratio()

		// A crossing fires once when the ratio moves through the threshold
		// between consecutive days. Day zero compares against itself, so it
		// can only fire when the series starts already past the threshold.
		var switched *models.SwitchDirection
		switch held {
		case models.AssetGold:
			if p.UpThreshold != nil && ratio >= *p.UpThreshold && (i == 0 || prevRatio < *p.UpThreshold) {
				units = units * rec.Gold / rec.Silver
				held = models.AssetSilver
				dir := models.SwitchGoldToSilver
				switched = &dir
			}
		case models.AssetSilver:
			if p.DownThreshold != nil && ratio <= *p.DownThreshold && (i == 0 || prevRatio > *p.DownThreshold) {
				units = units * rec.Silver / rec.Gold
				held = models.AssetGold
				dir := models.SwitchSilverToGold
				switched = &dir
			}
		}

		value := units * rec.Price(held)
		goldValue := goldUnits * rec.Gold
		silverValue := silverUnits * rec.Silver

		if switched != nil {
			switches = append(switches, models.SwitchEvent{
				Date:      rec.Date,
				Direction: *switched,
				Ratio:     ratio,
				Units:     units,
				Value:     value,
			})
		}

		points = append(points, models.SimulationPoint{
			Date:             rec.Date,
			Gold:             rec.Gold,
			Silver:           rec.Silver,
			Ratio:            ratio,
			HeldAsset:        held,
			HeldUnits:        units,
			PortfolioValue:   value,
			GoldOnlyValue:    goldValue,
			SilverOnlyValue:  silverValue,
			PortfolioPct:     pct(value, p.StartAmount),
			GoldPct:          pct(goldValue, p.StartAmount),
			SilverPct:        pct(silverValue, p.StartAmount),
			SwitchedThisStep: switched,
		})

		prevRatio = ratio
	}

	return &Outcome{Points: points, Switches: switches}, nil
}

func validateParams(p models.StrategyParams) error {
	if !p.StartAsset.Valid() {
		return models.NewValidationError("startAsset must be gold or silver, got %q", p.StartAsset)
	}
	if p.StartAmount <= 0 || math.IsInf(p.StartAmount, 0) || math.IsNaN(p.StartAmount) {
		return models.NewValidationError("startAmount must be a positive amount, got %v", p.StartAmount)
	}
	if p.UpThreshold != nil && !finite(*p.UpThreshold) {
		return models.NewValidationError("upThreshold must be finite")
	}
	if p.DownThreshold != nil && !finite(*p.DownThreshold) {
		return models.NewValidationError("downThreshold must be finite")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func pct(value, start float64) float64 {
	return (value/start - 1) * 100
}
