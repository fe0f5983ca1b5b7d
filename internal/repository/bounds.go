package repository

// PrefixEnd returns the smallest string greater than every string that
// starts with prefix, or "" when no such bound exists (empty prefix or all
// 0xFF bytes). Range scans use it as an exclusive upper bound.
func PrefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}
