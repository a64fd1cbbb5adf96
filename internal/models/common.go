package models

import "strconv"

func formatUint(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

// ParseOrderID parses a merchant reference number back to an order id.
func ParseOrderID(ref string) (uint, bool) {
	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
