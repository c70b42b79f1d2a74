// Package trace provides movement and statistics trace recording for offline analysis.
// It does not import sim; records are plain data.
package trace

// MovementRecord captures one movement decision of a person.
type MovementRecord struct {
	Time     float64 `json:"time"`
	PersonID int     `json:"person_id"`
	Row      int     `json:"row"`
	Column   int     `json:"column"`
	Speed    float64 `json:"speed"`
	// MeanSpeed averages the person's whole speed history.
	MeanSpeed float64 `json:"mean_speed"`
	// MeanSpeedWindow averages the last Window samples.
	MeanSpeedWindow float64 `json:"mean_speed_window"`
	Window          int     `json:"window"`
}

// StatisticsRecord captures one aggregate snapshot together with the parameters it was computed with.
type StatisticsRecord struct {
	Time          float64 `json:"time"`
	People        int     `json:"people"`
	Window        int     `json:"window"`
	CellsPerMeter float64 `json:"cells_per_meter"`
	MeanSpeed     float64 `json:"mean_speed"`
	Density       float64 `json:"density"`
	Flow          float64 `json:"flow"`
}
