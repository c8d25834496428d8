package indicator

// rolling is a fixed-capacity window maintaining sum and sum of squares so
// mean/variance stay O(1) per push.
type rolling struct {
	buf   []float64
	next  int
	count int
	sum   float64
	sumSq float64
}

func newRolling(capacity int) *rolling {
	return &rolling{buf: make([]float64, capacity)}
}

func (r *rolling) push(v float64) {
	if r.count == len(r.buf) {
		old := r.buf[r.next]
		r.sum -= old
		r.sumSq -= old * old
	} else {
		r.count++
	}
	r.buf[r.next] = v
	r.sum += v
	r.sumSq += v * v
	r.next = (r.next + 1) % len(r.buf)
}

func (r *rolling) full() bool { return r.count == len(r.buf) }

func (r *rolling) mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// variance is the population variance of the window.
func (r *rolling) variance() float64 {
	if r.count == 0 {
		return 0
	}
	m := r.mean()
	v := r.sumSq/float64(r.count) - m*m
	if v < 0 {
		// guard tiny negative values from float cancellation
		v = 0
	}
	return v
}

func (r *rolling) min() float64 {
	if r.count == 0 {
		return 0
	}
	m := r.buf[r.start()]
	for i := 0; i < r.count; i++ {
		if v := r.buf[(r.start()+i)%len(r.buf)]; v < m {
			m = v
		}
	}
	return m
}

func (r *rolling) max() float64 {
	if r.count == 0 {
		return 0
	}
	m := r.buf[r.start()]
	for i := 0; i < r.count; i++ {
		if v := r.buf[(r.start()+i)%len(r.buf)]; v > m {
			m = v
		}
	}
	return m
}

func (r *rolling) start() int {
	if r.count < len(r.buf) {
		return 0
	}
	return r.next
}
