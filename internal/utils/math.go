package utils

// Clamp01 bounds value to [0,1]. Confidence and consensus scores must stay in
// this interval for every input combination.
func Clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
