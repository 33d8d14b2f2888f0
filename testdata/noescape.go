package borrowsum

var retained []int32

//borrow:noescape
func peek(xs []int32) int32 {
	if len(xs) == 0 {
		return 0
	}
	return xs[0]
}

// This annotation should fail, because xs is stored in a global.
//
//borrow:noescape
func retain(xs []int32) {
	retained = xs
}

func lend(
	n *int32,
	//borrow:noescape
	xs []int32,
) []int32 {
	*n = int32(len(xs))
	return xs[1:]
}

func box() *int32 {
	//borrow:noescape
	v := int32(5)
	return &v
}
