package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalMoves     int
	UniquePeople   int
	MeanSpeed      float64
	MaxSpeed       float64
	MovesPerPerson map[int]int // person ID → number of recorded movement decisions

	Snapshots   int
	PeakPeople  int
	MeanDensity float64
	MeanFlow    float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		MovesPerPerson: make(map[int]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalMoves = len(st.Movements)
	if len(st.Movements) > 0 {
		totalSpeed := 0.0
		for _, m := range st.Movements {
			summary.MovesPerPerson[m.PersonID]++
			totalSpeed += m.Speed
			if m.Speed > summary.MaxSpeed {
				summary.MaxSpeed = m.Speed
			}
		}
		summary.MeanSpeed = totalSpeed / float64(len(st.Movements))
	}
	summary.UniquePeople = len(summary.MovesPerPerson)

	summary.Snapshots = len(st.Statistics)
	if len(st.Statistics) > 0 {
		density, flow := 0.0, 0.0
		for _, s := range st.Statistics {
			density += s.Density
			flow += s.Flow
			if s.People > summary.PeakPeople {
				summary.PeakPeople = s.People
			}
		}
		summary.MeanDensity = density / float64(len(st.Statistics))
		summary.MeanFlow = flow / float64(len(st.Statistics))
	}

	return summary
}
