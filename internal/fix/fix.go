// Package fix defines the Fix value that the transport hands to the
// orchestrator: one tag's position report, together with the RSSI readings
// it carries from the anchors it heard.
package fix

import "cep95-engine/internal/geometry"

// Fix is one position report for one tag at one timestamp.
type Fix struct {
	TagID       string
	TagPosition geometry.Point3
	// RSSI maps anchor id to observed RSSI in dBm, for anchors that
	// contributed a measurement to this fix ("used_anchors" on the wire).
	RSSI map[string]float64
	// TimestampMS is ms since epoch.
	TimestampMS float64
}

// MaxRSSI returns the strongest (least negative) RSSI value in the fix, and
// false if the fix carries no RSSI readings.
func (f Fix) MaxRSSI() (float64, bool) {
	if len(f.RSSI) == 0 {
		return 0, false
	}
	max := -1e18
	for _, v := range f.RSSI {
		if v > max {
			max = v
		}
	}
	return max, true
}
