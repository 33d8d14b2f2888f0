package borrowsum

import "github.com/jordanlewis/borrowsum/testdata/otherpkg"

func add(a, b int32) int32 {
	return a + b
}

//go:noinline
func opaque(a int32) int32 {
	return a
}

// Every callsite of total must be inlined, including instantiations.
//
//borrow:inline
func total[S ~[]E, E ~int32](s S) E {
	var t E
	for _, v := range s {
		t += v
	}
	return t
}

func caller(xs []int32) int32 {
	var s int32
	s += add(1, 2) //borrow:inline
	s += opaque(3) //borrow:inline
	s += total(xs)
	s += otherpkg.Lent{}.Never(xs)
	s += otherpkg.NeverFunc(xs)
	return s
}
