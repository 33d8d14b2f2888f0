package borrowsum

func firstPlusTotal(xs []int32) int32 {
	//borrow:bce
	first := xs[0]
	var s int32
	for i := range xs {
		s += xs[i] //borrow:bce
	}
	return first + s
}
