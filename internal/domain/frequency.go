package domain

// Frequency is the cadence of a recurring amount
type Frequency string

const (
	FrequencyOneTime   Frequency = "one-time"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// IsAutoSaveFrequency reports whether f can drive a goal auto-save policy
func (f Frequency) IsAutoSaveFrequency() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}
