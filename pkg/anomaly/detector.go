// Package anomaly implements AnomalyDetector: a pure filter over
// Readings that retains only those exceeding a per-(source, parameter)
// threshold.
package anomaly

import "riverwatch.dev/agent/pkg/model"

// Thresholds looks up the configured anomaly threshold for a (source,
// parameter) pair. internal/config.Config satisfies this via its
// Threshold method.
type Thresholds interface {
	Threshold(source, parameter string) (float64, bool)
}

// Detector classifies readings against configured thresholds. The zero
// value is unusable; construct with NewDetector. Kept as an interface so
// an alternative classification strategy (e.g. a trailing z-score model)
// can be swapped in without touching callers.
type Detector interface {
	Classify(readings []model.Reading) []model.Anomaly
}

// ThresholdDetector is the only Detector implementation: a reading is
// anomalous if its value exceeds the configured threshold for its
// (source, parameter) pair.
type ThresholdDetector struct {
	thresholds Thresholds
}

func NewDetector(thresholds Thresholds) *ThresholdDetector {
	return &ThresholdDetector{thresholds: thresholds}
}

// Classify retains readings whose value exceeds their threshold, dropping
// readings with no configured threshold, no coordinates, or a NaN value.
// Output order matches input order; no reordering is performed.
func (d *ThresholdDetector) Classify(readings []model.Reading) []model.Anomaly {
	anomalies := make([]model.Anomaly, 0, len(readings))
	for _, r := range readings {
		if !r.HasCoords {
			continue
		}
		if r.Value != r.Value { // NaN check without importing math
			continue
		}
		threshold, ok := d.thresholds.Threshold(string(r.Source), r.Parameter)
		if !ok {
			continue
		}
		if r.Value > threshold {
			anomalies = append(anomalies, model.Anomaly{Reading: r, Threshold: threshold})
		}
	}
	return anomalies
}
