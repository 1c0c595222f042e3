// Package shuffle derives stable pseudo-random orderings from string seeds.
// The same seed always yields the same permutation, so a student sees an
// identical question order on every resume without the order being stored.
package shuffle

import (
	"hash/fnv"
	"math/rand"
	"strings"
)

// Seed joins scope parts into a shuffle seed. Parts are typically ids such
// as student, exam and section, most significant first.
func Seed(parts ...string) string {
	return strings.Join(parts, ":")
}

// Order returns a permutation of [0, n) determined entirely by the seed.
func Order(n int, seed string) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := rand.New(rand.NewSource(hashSeed(seed)))
	r.Shuffle(len(idx), func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
	return idx
}

// Strings returns a new slice with the elements reordered by the seed's
// permutation. The input is never modified.
func Strings(items []string, seed string) []string {
	out := make([]string, len(items))
	for to, from := range Order(len(items), seed) {
		out[to] = items[from]
	}
	return out
}

// hashSeed folds a seed string into a 64-bit source value. FNV-1a keeps the
// derivation cheap and stable across runs; this is ordering, not security.
func hashSeed(seed string) int64 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}
