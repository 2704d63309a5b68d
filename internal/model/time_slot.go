package model

// TimeSlot 一个候选发布时段
type TimeSlot struct {
	DayOfWeek    int     `json:"day_of_week"`
	HourOfDay    int     `json:"hour_of_day"`
	Score        float64 `json:"score"`
	TotalSamples int64   `json:"total_samples"`
	IsDefault    bool    `json:"is_default,omitempty"`
}
