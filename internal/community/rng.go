package community

// splitMix64 is a small, fast, deterministic PRNG used only to order node
// visitation during local-moving (spec.md §4.C: "a fixed random seed
// (default 0xDEADBEEF or equivalent)"). It is not cryptographic; it exists
// solely so two runs over the same stabilized view visit nodes in the same
// sequence.
type splitMix64 struct {
	state uint64
}

func newSplitMix64(seed uint64) *splitMix64 {
	return &splitMix64{state: seed}
}

func (s *splitMix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// shuffle permutes vertices in place via Fisher-Yates driven by the PRNG.
func (s *splitMix64) shuffle(vertices []string) {
	for i := len(vertices) - 1; i > 0; i-- {
		j := int(s.next() % uint64(i+1))
		vertices[i], vertices[j] = vertices[j], vertices[i]
	}
}
