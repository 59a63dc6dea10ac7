package dslogic

// TestModeModulus is the wraparound point of the device's self-test
// arithmetic progression, per spec.md §4.5.
const TestModeModulus = 65001

// CheckTestSamples re-derives the expected internal/external test
// pattern (an arithmetic progression mod TestModeModulus, one 16-bit
// little-endian sample per probe word) and reports the index of the
// first sample that deviates from it, per spec.md §4.5's Open Question
// resolution: the driver recomputes the expected sequence from start
// rather than trusting any value embedded in the stream, since the
// device offers no independent checksum.
//
// samples is the decoded stream of 16-bit sample words; start is the
// expected value of samples[0]. CheckTestSamples returns -1 if every
// sample matches.
func CheckTestSamples(samples []uint16, start uint16) int {
	expect := start
	for i, got := range samples {
		if got != expect {
			return i
		}
		expect++
		if expect >= TestModeModulus {
			expect = 0
		}
	}
	return -1
}
