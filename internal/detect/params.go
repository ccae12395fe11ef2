package detect

// DefaultParams returns the detection parameters used for segmented cell masks.
func DefaultParams() Params {
	return Params{
		MinArea:   16,
		Threshold: 0, // any non-zero mask pixel is foreground
	}
}

// WithMinArea returns a copy of params with a different area cut-off.
func (p Params) WithMinArea(area float64) Params {
	p.MinArea = area
	return p
}

// WithThreshold returns a copy of params with a different binarization level.
func (p Params) WithThreshold(level float64) Params {
	p.Threshold = level
	return p
}
