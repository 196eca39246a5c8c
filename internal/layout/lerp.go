package layout

// Lerp maps v linearly from [srcLow, srcHigh] onto [dstLow, dstHigh] using
// truncating integer division. A zero-length source interval maps to dstLow.
func Lerp(v, srcLow, srcHigh, dstLow, dstHigh int64) int64 {
	if srcHigh == srcLow {
		return dstLow
	}
	return (v-srcLow)*(dstHigh-dstLow)/(srcHigh-srcLow) + dstLow
}
