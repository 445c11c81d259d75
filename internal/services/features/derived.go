package features

// FutureStorageBounds returns the minimum and maximum of a forecast storage
// curve. An empty curve yields (0, 0) rather than an undefined extreme.
func FutureStorageBounds(curve []float64) (min, max float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	min, max = curve[0], curve[0]
	for _, v := range curve[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// CapacityPercent expresses v as a percentage of capacity. A non-positive
// capacity has no meaningful percentage and yields 0.
func CapacityPercent(v, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return v / capacity * 100
}
