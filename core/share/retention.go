package share

import (
	"fmt"
	"time"
)

// BoundDefinitionError is returned when a curve's minimum exceeds its maximum.
type BoundDefinitionError struct {
	Min uint64
	Max uint64
}

func (e *BoundDefinitionError) Error() string {
	return fmt.Sprintf("retention curve minimum %d exceeds maximum %d", e.Min, e.Max)
}

// RetentionCurve maps a payload size to a retention age in seconds. Smaller
// payloads are kept longer, decaying quadratically from MaxAge at size zero
// to MinAge at maxSize.
type RetentionCurve struct {
	minAge  uint64
	maxAge  uint64
	maxSize uint64
}

func NewRetentionCurve(minAge, maxAge, maxSize uint64) (*RetentionCurve, error) {
	if minAge > maxAge {
		return nil, &BoundDefinitionError{Min: minAge, Max: maxAge}
	}
	return &RetentionCurve{minAge: minAge, maxAge: maxAge, maxSize: maxSize}, nil
}

// ComputeFor returns the retention age in seconds for a payload of size bytes.
func (c *RetentionCurve) ComputeFor(size uint64) uint64 {
	if size >= c.maxSize {
		return c.minAge
	}
	window := float64(c.maxAge - c.minAge)
	ratio := float64(size) / float64(c.maxSize)
	return uint64(float64(c.maxAge) - window*ratio*ratio)
}

// MaxAgeFor is ComputeFor as a duration.
func (c *RetentionCurve) MaxAgeFor(size uint64) time.Duration {
	return time.Duration(c.ComputeFor(size)) * time.Second
}
