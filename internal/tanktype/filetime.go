package tanktype

import "time"

// fileTimeEpochDelta is the number of 100ns intervals between 1601-01-01
// and the Unix epoch.
const fileTimeEpochDelta = 116444736000000000

// FileTimeToTime converts a Windows FILETIME value to a time.Time.
// Non-positive values map to the zero time.
func FileTimeToTime(ft int64) time.Time {
	if ft <= 0 {
		return time.Time{}
	}
	ticks := ft - fileTimeEpochDelta
	return time.Unix(ticks/1e7, (ticks%1e7)*100).UTC()
}

// TimeToFileTime converts t to a Windows FILETIME value.
func TimeToFileTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()*1e7 + int64(t.Nanosecond())/100 + fileTimeEpochDelta
}
