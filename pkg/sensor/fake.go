package sensor

import (
	"math/rand"
	"sync"
)

// Fake is a simulated analog unit. Inputs return scripted codes when set,
// random codes otherwise.
type Fake struct {
	id       int
	bitWidth int

	mu     sync.Mutex
	codes  map[int]int
	faults map[int]error
	reads  int
	rnd    *rand.Rand
}

var _ Unit = (*Fake)(nil)

// NewFake returns a simulated unit producing bitWidth-wide codes.
func NewFake(id, bitWidth int, seed int64) *Fake {
	return &Fake{
		id:       id,
		bitWidth: bitWidth,
		codes:    make(map[int]int),
		faults:   make(map[int]error),
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

func (f *Fake) ID() int { return f.id }

// Set scripts the code returned for input.
func (f *Fake) Set(input, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[input] = code
}

// Fail makes reads of input return err until cleared with a nil err.
func (f *Fake) Fail(input int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.faults, input)
		return
	}
	f.faults[input] = err
}

// Reads returns how many reads were attempted.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *Fake) Read(ch Channel) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err, ok := f.faults[ch.Input]; ok {
		return 0, err
	}
	if c, ok := f.codes[ch.Input]; ok {
		return c, nil
	}
	return f.rnd.Intn(1 << f.bitWidth), nil
}

func (f *Fake) Close() error { return nil }
