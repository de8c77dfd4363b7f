package vision

import "image"

// FrameDiff measures scene change as the share of pixels whose absolute
// difference from the baseline exceeds cutoff. Returns the percentage and
// the binary mask for optional display.
func FrameDiff(baseline, current *image.RGBA, cutoff uint8) (float64, *image.Gray, error) {
	if err := CheckPair(baseline, current); err != nil {
		return 0, nil, err
	}
	mask := Threshold(absDiffGray(baseline, current), cutoff)
	return percentNonZero(mask), mask, nil
}

// BackgroundSub measures scene change like FrameDiff but with a higher
// cutoff followed by a morphological opening, suppressing isolated noise
// pixels before the percentage is computed.
func BackgroundSub(baseline, current *image.RGBA, cutoff uint8) (float64, *image.Gray, error) {
	if err := CheckPair(baseline, current); err != nil {
		return 0, nil, err
	}
	mask := Open(Threshold(absDiffGray(baseline, current), cutoff), ellipse5x5)
	return percentNonZero(mask), mask, nil
}
