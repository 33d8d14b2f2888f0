// Copyright 2020 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package borrowsum

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	testCases := []struct {
		name     string
		input    []int32
		expected int32
	}{
		{name: "literal", input: Numbers(), expected: 15},
		{name: "empty", input: []int32{}, expected: 0},
		{name: "nil", input: nil, expected: 0},
		{name: "single", input: []int32{-7}, expected: -7},
		{name: "mixed signs", input: []int32{10, -3, -7, 4}, expected: 4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Sum(tc.input))
		})
	}
}

func TestSumPermutations(t *testing.T) {
	var permute func(prefix, rest []int32)
	n := 0
	permute = func(prefix, rest []int32) {
		if len(rest) == 0 {
			n++
			assert.Equal(t, int32(15), Sum(prefix), "permutation %v", prefix)
			return
		}
		for i := range rest {
			next := append(append([]int32(nil), prefix...), rest[i])
			remaining := append(append([]int32(nil), rest[:i]...), rest[i+1:]...)
			permute(next, remaining)
		}
	}
	permute(nil, Numbers())
	assert.Equal(t, 120, n)
}

func TestPrintSum(t *testing.T) {
	testCases := []struct {
		input    []int32
		expected string
	}{
		{input: Numbers(), expected: "Sum: 15\n"},
		{input: []int32{}, expected: "Sum: 0\n"},
		{input: []int32{5, 4, 3, 2, 1}, expected: "Sum: 15\n"},
		{input: []int32{-1, -2}, expected: "Sum: -3\n"},
	}
	for _, tc := range testCases {
		var buf strings.Builder
		require.NoError(t, PrintSum(&buf, tc.input))
		assert.Equal(t, tc.expected, buf.String())
	}
}

// The lender's sequence must be intact once the borrow ends.
func TestPrintSumLeavesInputUnchanged(t *testing.T) {
	numbers := Numbers()
	before := append([]int32(nil), numbers...)

	var buf strings.Builder
	require.NoError(t, PrintSum(&buf, numbers))
	assert.Equal(t, before, numbers)
	assert.Len(t, numbers, 5)

	_ = Sum(numbers)
	assert.Equal(t, before, numbers)
}

func TestNumbersIsFresh(t *testing.T) {
	a := Numbers()
	a[0] = 100
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, Numbers())
}

type errWriter struct{ err error }

func (e errWriter) Write([]byte) (int, error) { return 0, e.err }

func TestPrintSumWriteError(t *testing.T) {
	boom := errors.New("boom")
	err := PrintSum(errWriter{err: boom}, Numbers())
	assert.ErrorIs(t, err, boom)
}
