// Copyright 2020 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package borrowsum sums a sequence of integers that the caller lends out
// read-only, and ships a checker that proves the lending functions neither
// write through nor retain what they were given.
package borrowsum

import (
	"fmt"
	"io"

	"golang.org/x/exp/constraints"
)

// Numbers returns a freshly allocated sequence owned by the caller.
func Numbers() []int32 {
	return []int32{1, 2, 3, 4, 5}
}

// Sum returns the sum of the elements of s. Overflow wraps.
//
//borrow:readonly,noescape
func Sum[S ~[]E, E constraints.Integer](s S) E {
	var sum E
	for _, v := range s {
		sum += v
	}
	return sum
}

// PrintSum writes "Sum: <value>" for data to w. data is only read for the
// duration of the call.
func PrintSum(
	w io.Writer,
	//borrow:readonly,noescape
	data []int32,
) error {
	_, err := fmt.Fprintf(w, "Sum: %d\n", Sum(data))
	return err
}
