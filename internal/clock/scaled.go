package clock

import "time"

// Scaled wraps a host so that time passes factor times faster: Now
// advances factor times as fast as the inner host's clock and After waits
// d/factor. A factor of 1 or less than or equal to 0 returns h unchanged.
//
// The wrapper shares the inner host's loop; it adds no goroutines.
func Scaled(h Host, factor float64) Host {
	if factor <= 0 || factor == 1 {
		return h
	}
	return &scaledHost{inner: h, factor: factor, origin: h.Now()}
}

type scaledHost struct {
	inner  Host
	factor float64
	origin time.Time
}

func (s *scaledHost) Now() time.Time {
	real := s.inner.Now().Sub(s.origin)
	return s.origin.Add(time.Duration(float64(real) * s.factor))
}

func (s *scaledHost) After(d time.Duration, fn func()) TimerID {
	return s.inner.After(time.Duration(float64(d)/s.factor), fn)
}

func (s *scaledHost) Cancel(id TimerID) {
	s.inner.Cancel(id)
}
