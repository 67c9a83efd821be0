// Package stats computes summary statistics over a set of power readings.
//
// Energy is estimated with the trapezoidal rule over the samples sorted by
// timestamp: the signal is treated as piecewise linear between samples. That
// is an approximation of the true consumption between samples, not a
// measurement. All arithmetic is IEEE-754 double precision.
package stats

import (
	"sort"

	"github.com/google/uuid"

	"github.com/sven3270350/Home-Entergy-Test/internal/store"
)

type Result struct {
	DeviceID             uuid.UUID `json:"device_id"`
	Period               string    `json:"period"`
	AvgPowerWatts        float64   `json:"avg_power_watts"`
	MaxPowerWatts        float64   `json:"max_power_watts"`
	MinPowerWatts        float64   `json:"min_power_watts"`
	TotalEnergyWattHours float64   `json:"total_energy_watt_hours"`
}

// Compute derives min/max/mean power and integrated energy for one device's
// readings. An empty set yields the all-zero result: "no data yet" is not an
// error. A single reading yields zero energy since there is no interval to
// integrate over, and duplicate timestamps contribute zero-duration (and so
// zero-energy) intervals.
func Compute(deviceID uuid.UUID, period string, readings []store.Reading) Result {
	res := Result{DeviceID: deviceID, Period: period}
	if len(readings) == 0 {
		return res
	}

	sorted := make([]store.Reading, len(readings))
	copy(sorted, readings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	sum := 0.0
	res.MinPowerWatts = sorted[0].PowerWatts
	res.MaxPowerWatts = sorted[0].PowerWatts
	for _, r := range sorted {
		sum += r.PowerWatts
		if r.PowerWatts < res.MinPowerWatts {
			res.MinPowerWatts = r.PowerWatts
		}
		if r.PowerWatts > res.MaxPowerWatts {
			res.MaxPowerWatts = r.PowerWatts
		}
	}
	res.AvgPowerWatts = sum / float64(len(sorted))

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		hours := cur.Timestamp.Sub(prev.Timestamp).Hours()
		res.TotalEnergyWattHours += hours * (prev.PowerWatts + cur.PowerWatts) / 2
	}
	return res
}
