package kvcore

// NormalizeRange converts Redis-style inclusive LRANGE bounds into slice
// indices for a list of length n. ok is false when the range selects nothing.
func NormalizeRange(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
