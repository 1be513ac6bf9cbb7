package ensemble

import (
	"hash/fnv"
	"math/rand"
	"strconv"
)

// streams hands out one random stream for the shared inputs and one per
// model's discrepancy noise. A model's draws never shift another model's
// sequence.
//
// The input stream is seeded with the ensemble seed itself; model m uses
// seed XOR fnv1a64("model_<m>"). Not safe for concurrent use.
type streams struct {
	seed  int64
	input *rand.Rand
	noise map[int]*rand.Rand
}

func newStreams(seed int64) *streams {
	return &streams{
		seed:  seed,
		input: rand.New(rand.NewSource(seed)),
		noise: make(map[int]*rand.Rand),
	}
}

// inputs is the stream the shared standard normal inputs are drawn from.
func (s *streams) inputs() *rand.Rand { return s.input }

// model returns the cached noise stream of model m (sample order).
func (s *streams) model(m int) *rand.Rand {
	if r, ok := s.noise[m]; ok {
		return r
	}
	r := rand.New(rand.NewSource(s.seed ^ fnv1a64(modelStream(m))))
	s.noise[m] = r
	return r
}

func modelStream(m int) string {
	return "model_" + strconv.Itoa(m)
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
