package borrowsum

type ledger struct {
	entries []int32
	total   *int32
}

//borrow:readonly
func sumOnly(xs []int32) int32 {
	var s int32
	for _, x := range xs {
		s += x
	}
	return s
}

//borrow:readonly
func zeroFirst(xs []int32) {
	xs[0] = 0
}

//borrow:readonly
func viaAlias(xs []int32) {
	tail := xs[1:]
	tail[0]++
}

//borrow:readonly
func grow(xs []int32) []int32 {
	return append(xs, 6)
}

func overwrite(
	dst []int32,
	//borrow:readonly
	src []int32,
) {
	copy(dst, src)
	dst[0] = src[0]
}

//borrow:readonly
func (l ledger) record(v int32) {
	*l.total += v
	l.entries = nil
}

//borrow:readonly
func values(xs [3]int32, m map[string]int32) {
	xs[0] = 1
	delete(m, "a")
}

//borrow:readonly
func closure(xs []int32) func() {
	return func() {
		clear(xs)
	}
}

//borrow:readonly
func swapFirst(xs []int32) {
	xs[0], xs[1] = xs[1], xs[0]
}

//borrow:readonly
func arrayViews(xs [3]int32) {
	ys := xs[:]
	ys[0] = 1
	p := &xs
	p[1] = 2
	xs[:][2] = 3
}
