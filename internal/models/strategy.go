package models

// SwitchDirection tags which way a simulation step flipped holdings.
type SwitchDirection string

const (
	SwitchGoldToSilver SwitchDirection = "gold->silver"
	SwitchSilverToGold SwitchDirection = "silver->gold"
)

// StrategyParams are the five primitive simulation inputs. A nil threshold
// means that direction never triggers (buy-and-hold on that side).
type StrategyParams struct {
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	StartAsset    Asset    `json:"startAsset"`
	StartAmount   float64  `json:"startAmount"`
	UpThreshold   *float64 `json:"upThreshold,omitempty"`   // gold -> silver when ratio >= up
	DownThreshold *float64 `json:"downThreshold,omitempty"` // silver -> gold when ratio <= down
}

// SimulationPoint is one derived step of a simulation run. Recomputed in
// full on every parameter change; never persisted.
type SimulationPoint struct {
	Date             string           `json:"date"`
	Gold             float64          `json:"gold"`
	Silver           float64          `json:"silver"`
	Ratio            float64          `json:"ratio"`
	HeldAsset        Asset            `json:"heldAsset"`
	HeldUnits        float64          `json:"heldUnits"`
	PortfolioValue   float64          `json:"portfolioValue"`
	GoldOnlyValue    float64          `json:"goldOnlyValue"`
	SilverOnlyValue  float64          `json:"silverOnlyValue"`
	PortfolioPct     float64          `json:"portfolioPct"`
	GoldPct          float64          `json:"goldPct"`
	SilverPct        float64          `json:"silverPct"`
	SwitchedThisStep *SwitchDirection `json:"switchedThisStep,omitempty"`
}

// SwitchEvent summarizes one holding flip for reports and alerts.
type SwitchEvent struct {
	Date      string          `json:"date"`
	Direction SwitchDirection `json:"direction"`
	Ratio     float64         `json:"ratio"`
	Units     float64         `json:"units"` // units of the new asset after the flip
	Value     float64         `json:"value"`
}
