package random

import "strings"

const lowercase = "abcdefghijklmnopqrstuvwxyz"

// Perm returns a uniformly random permutation of [0, n) using Fisher-Yates.
//
// Precondition: n >= 0.
// Postcondition: len(result) == n and result contains each of 0..n-1 exactly once.
func Perm(src Source, n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// Shuffled returns a shuffled copy of items; items is left untouched.
func Shuffled[T any](src Source, items []T) []T {
	out := make([]T, len(items))
	for i, j := range Perm(src, len(items)) {
		out[i] = items[j]
	}
	return out
}

// Sample draws k distinct elements from items without replacement.
//
// Precondition: 0 <= k <= len(items).
// Postcondition: len(result) == k.
func Sample[T any](src Source, items []T, k int) []T {
	return Shuffled(src, items)[:k]
}

// Letters returns a string of n random lowercase ASCII letters.
//
// Precondition: n >= 0.
func Letters(src Source, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(lowercase[src.Intn(len(lowercase))])
	}
	return b.String()
}
