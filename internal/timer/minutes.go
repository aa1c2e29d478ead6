package timer

// CreditedMinutes converts elapsed seconds to the minutes recorded on a
// closed session: any real elapsed time counts as at least one minute, and
// partial minutes round up. Zero or negative time credits zero.
func CreditedMinutes(elapsedSeconds int) int {
	if elapsedSeconds <= 0 {
		return 0
	}
	return (elapsedSeconds + 59) / 60
}

// BeaconMinutes is the duration sent by the unload finalizer, which always
// credits at least one minute.
func BeaconMinutes(elapsedSeconds int) int {
	if m := CreditedMinutes(elapsedSeconds); m > 1 {
		return m
	}
	return 1
}
