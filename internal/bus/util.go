package bus

import "time"

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
