// Package sampler generates coordinates into the Babelia image archive.
package sampler

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Wall identifies one of the four walls of a hex chamber.
type Wall string

const (
	WallNorth Wall = "n"
	WallEast  Wall = "e"
	WallSouth Wall = "s"
	WallWest  Wall = "w"
)

var walls = [4]Wall{WallNorth, WallEast, WallSouth, WallWest}

// Coordinate bounds of the archive address space.
const (
	LocationKeyLength = 40 // hex characters
	MinShelf          = 1
	MaxShelf          = 5
	MinVolume         = 1
	MaxVolume         = 32
	MinPage           = 1
	MaxPage           = 640
)

// Address is a single archive coordinate. The zero value is not a valid
// address; use a Sampler or ParseSlug to obtain one.
type Address struct {
	LocationKey string // 40 lowercase hex characters
	Wall        Wall
	Shelf       int // 1-5
	Volume      int // 1-32
	Page        int // 1-640
}

// Slug renders the address in archive query form,
// e.g. "0a1b...-wn-s3-v12-p045". The page is zero padded to three digits.
func (a Address) Slug() string {
	return fmt.Sprintf("%s-w%s-s%d-v%d-p%03d", a.LocationKey, a.Wall, a.Shelf, a.Volume, a.Page)
}

// Valid reports whether every coordinate component is within archive bounds.
func (a Address) Valid() bool {
	if len(a.LocationKey) != LocationKeyLength {
		return false
	}
	for _, c := range a.LocationKey {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	switch a.Wall {
	case WallNorth, WallEast, WallSouth, WallWest:
	default:
		return false
	}
	return a.Shelf >= MinShelf && a.Shelf <= MaxShelf &&
		a.Volume >= MinVolume && a.Volume <= MaxVolume &&
		a.Page >= MinPage && a.Page <= MaxPage
}

// Sampler produces archive addresses. Implementations decide the traversal
// strategy; callers must not assume addresses are unique.
type Sampler interface {
	Next() Address
}

// RandomSampler draws every coordinate component uniformly and independently.
// It holds no state beyond its RNG and never terminates.
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler returns a sampler seeded from the process-wide RNG.
func NewRandomSampler() *RandomSampler {
	return &RandomSampler{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewSeededRandomSampler returns a sampler with a deterministic sequence,
// for reproducible runs and tests.
func NewSeededRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{
		rng: rand.New(rand.NewPCG(seed, seed)),
	}
}

const hexDigits = "0123456789abcdef"

// Next returns a uniformly random archive address.
func (s *RandomSampler) Next() Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := make([]byte, LocationKeyLength)
	for i := range key {
		key[i] = hexDigits[s.rng.IntN(len(hexDigits))]
	}

	return Address{
		LocationKey: string(key),
		Wall:        walls[s.rng.IntN(len(walls))],
		Shelf:       MinShelf + s.rng.IntN(MaxShelf-MinShelf+1),
		Volume:      MinVolume + s.rng.IntN(MaxVolume-MinVolume+1),
		Page:        MinPage + s.rng.IntN(MaxPage-MinPage+1),
	}
}

// SequentialSampler walks location keys in counter order starting from zero,
// always at wall n, shelf 1, volume 1, page 1. Addresses are strictly
// increasing and never repeat. The 160-bit counter space is large enough
// that wraparound is not handled.
type SequentialSampler struct {
	mu      sync.Mutex
	counter uint64
}

// NewSequentialSampler returns a sampler starting at location key zero.
func NewSequentialSampler() *SequentialSampler {
	return &SequentialSampler{}
}

// Next returns the next sequential address and advances the counter.
func (s *SequentialSampler) Next() Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := Address{
		LocationKey: fmt.Sprintf("%040x", s.counter),
		Wall:        WallNorth,
		Shelf:       MinShelf,
		Volume:      MinVolume,
		Page:        MinPage,
	}
	s.counter++
	return addr
}

// New returns a sampler for the given mode, "random" or "sequential".
func New(mode string) (Sampler, error) {
	switch mode {
	case "random":
		return NewRandomSampler(), nil
	case "sequential":
		return NewSequentialSampler(), nil
	default:
		return nil, fmt.Errorf("unknown sampling mode: %s", mode)
	}
}
