package models

// Asset identifies one of the two metals a portfolio can hold.
type Asset string

const (
	AssetGold   Asset = "gold"
	AssetSilver Asset = "silver"
)

func (a Asset) Valid() bool {
	return a == AssetGold || a == AssetSilver
}

// Other returns the opposite metal.
func (a Asset) Other() Asset {
	if a == AssetGold {
		return AssetSilver
	}
	return AssetGold
}

// PriceRecord is one canonical daily observation: USD/oz closes for both
// metals on a single UTC calendar day. Date is "YYYY-MM-DD". At most one
// record exists per date; merges replace records, never mutate them.
type PriceRecord struct {
	Date   string  `json:"date"`
	Gold   float64 `json:"gold"`
	Silver float64 `json:"silver"`
}

// Ratio returns gold/silver for the day.
func (r PriceRecord) Ratio() float64 {
	return r.Gold / r.Silver
}

// Price returns the day's close for the given asset.
func (r PriceRecord) Price(a Asset) float64 {
	if a == AssetGold {
		return r.Gold
	}
	return r.Silver
}
