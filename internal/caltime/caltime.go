// Package caltime formats a (Julian day, nanoseconds-of-day) time
// stamp into the `YYYY-MM-DD HH:MM:SS` string the RecordingDate and
// TimePoint{i} attributes require.
package caltime

import "fmt"

// TimeInfo is a Julian-calendar day plus an offset within that day.
type TimeInfo struct {
	JulianDay        int32
	NanosecondsOfDay int64
}

// Format renders a TimeInfo as "YYYY-MM-DD HH:MM:SS".
func Format(t TimeInfo) string {
	year, month, day := fromJulianDay(t.JulianDay)
	hour := getHour(t.NanosecondsOfDay)
	minute := getMinute(t.NanosecondsOfDay)
	second := getSecond(t.NanosecondsOfDay)
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
}

// fromJulianDay converts a Julian day number to a (year, month, day)
// proleptic Gregorian calendar date using the standard integer
// Fliegel-Van Flandern arithmetic.
func fromJulianDay(julianDay int32) (year, month, day int32) {
	t1 := int64(julianDay) + 68569
	t2 := 4 * t1 / 146097
	t1 -= (146097*t2 + 3) / 4

	y := 4000 * (t1 + 1) / 1461001
	t1 = t1 - 1461*y/4 + 31

	m := 80 * t1 / 2447
	day = int32(t1 - 2447*m/80)

	t1 = m / 11
	month = int32(m + 2 - 12*t1)
	year = int32(100*(t2-49) + y + t1)
	return
}

func getHour(nanosecondsOfDay int64) int32 {
	return int32(nanosecondsOfDay / (60 * 60 * 1000 * 1000 * 1000))
}

func getMinute(nanosecondsOfDay int64) int32 {
	return int32((nanosecondsOfDay / (60 * 1000 * 1000 * 1000)) % 60)
}

func getSecond(nanosecondsOfDay int64) int32 {
	return int32((nanosecondsOfDay / (1000 * 1000 * 1000)) % 60)
}
