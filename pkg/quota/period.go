package quota

import "time"

const periodLayout = "2006-01"

// PeriodKey returns the UTC calendar month containing t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// NextReset returns the first instant of the UTC month after the one containing t.
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
