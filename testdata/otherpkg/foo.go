package otherpkg

import "fmt"

type Lent struct{}

//borrow:inline
//go:noinline
func (Lent) Never(xs []int32) int32 {
	fmt.Println(xs)
	return 0
}

//borrow:inline
//go:noinline
func NeverFunc(xs []int32) int32 {
	return int32(len(xs))
}
