package hal

import "fmt"

const (
	hashChainDepth     = 256
	fastHashChainDepth = 8
	minMatchLength     = 3
)

// Compress encodes data with a greedy encoder. In fast mode only runs and
// plain back references with a short search depth are considered, which
// trades output size for speed.
func Compress(data []byte, fast bool) ([]byte, error) {
	if len(data) > DataSize {
		return nil, fmt.Errorf("compressing %d bytes: %w", len(data), ErrInputTooLarge)
	}

	e := newEncoder(data, fast)
	e.run()
	return e.out, nil
}

type candidate struct {
	command byte
	length  int // value stored in the command header
	covered int // number of output bytes produced
	payload []byte
}

func (c candidate) savings() int {
	return c.covered - headerSize(c.length) - len(c.payload)
}

type hashChain struct {
	head map[uint32]int
	prev []int
}

func newHashChain(size int) *hashChain {
	return &hashChain{
		head: make(map[uint32]int),
		prev: make([]int, size),
	}
}

func (h *hashChain) insert(key uint32, pos int) {
	if p, ok := h.head[key]; ok {
		h.prev[pos] = p
	} else {
		h.prev[pos] = -1
	}
	h.head[key] = pos
}

func (h *hashChain) first(key uint32) int {
	if p, ok := h.head[key]; ok {
		return p
	}
	return -1
}

type encoder struct {
	data  []byte
	out   []byte
	raw   []byte
	fast  bool
	depth int

	forward  *hashChain
	rotated  *hashChain
	backward *hashChain
}

func newEncoder(data []byte, fast bool) *encoder {
	e := &encoder{
		data:    data,
		out:     make([]byte, 0, len(data)/2+16),
		fast:    fast,
		depth:   hashChainDepth,
		forward: newHashChain(len(data)),
	}
	if fast {
		e.depth = fastHashChainDepth
	} else {
		e.rotated = newHashChain(len(data))
		e.backward = newHashChain(len(data))
	}
	return e
}

func (e *encoder) run() {
	for pos := 0; pos < len(e.data); {
		best := e.bestCandidate(pos)
		covered := 1
		if best.savings() > 0 {
			e.flushRaw()
			e.emit(best)
			covered = best.covered
		} else {
			e.raw = append(e.raw, e.data[pos])
			if len(e.raw) == maxRunLength {
				e.flushRaw()
			}
		}

		for q := pos; q < pos+covered; q++ {
			e.index(q)
		}
		pos += covered
	}

	e.flushRaw()
	e.out = append(e.out, terminator)
}

func (e *encoder) bestCandidate(pos int) candidate {
	best := candidate{}
	try := func(c candidate) {
		if c.covered > 0 && c.savings() > best.savings() {
			best = c
		}
	}

	try(e.rle8(pos))
	try(e.rle16(pos))
	if !e.fast {
		try(e.increment(pos))
	}
	try(e.backref(pos))
	if !e.fast {
		try(e.backrefRotated(pos))
		try(e.backrefReversed(pos))
	}
	return best
}

func (e *encoder) rle8(pos int) candidate {
	value := e.data[pos]
	n := 1
	for pos+n < len(e.data) && n < maxRunLength && e.data[pos+n] == value {
		n++
	}
	return candidate{command: cmdRLE8, length: n, covered: n, payload: []byte{value}}
}

func (e *encoder) rle16(pos int) candidate {
	if pos+1 >= len(e.data) {
		return candidate{}
	}
	first, second := e.data[pos], e.data[pos+1]
	pairs := 1
	for pairs < maxRunLength {
		i := pos + pairs*2
		if i+1 >= len(e.data) || e.data[i] != first || e.data[i+1] != second {
			break
		}
		pairs++
	}
	return candidate{command: cmdRLE16, length: pairs, covered: pairs * 2, payload: []byte{first, second}}
}

func (e *encoder) increment(pos int) candidate {
	start := e.data[pos]
	n := 1
	for pos+n < len(e.data) && n < maxRunLength && e.data[pos+n] == start+byte(n) {
		n++
	}
	return candidate{command: cmdIncrement, length: n, covered: n, payload: []byte{start}}
}

func (e *encoder) backref(pos int) candidate {
	key, ok := e.key(pos)
	if !ok {
		return candidate{}
	}

	bestLength, bestOffset := 0, 0
	for p, steps := e.forward.first(key), 0; p >= 0 && steps < e.depth; p, steps = e.forward.prev[p], steps+1 {
		n := 0
		for pos+n < len(e.data) && n < maxRunLength && e.data[p+n] == e.data[pos+n] {
			n++
		}
		if n > bestLength {
			bestLength, bestOffset = n, p
		}
	}
	return referenceCandidate(cmdBackref, bestLength, bestOffset)
}

func (e *encoder) backrefRotated(pos int) candidate {
	key, ok := e.key(pos)
	if !ok {
		return candidate{}
	}

	bestLength, bestOffset := 0, 0
	for p, steps := e.rotated.first(key), 0; p >= 0 && steps < e.depth; p, steps = e.rotated.prev[p], steps+1 {
		n := 0
		for pos+n < len(e.data) && n < maxRunLength && reverseBits(e.data[p+n]) == e.data[pos+n] {
			n++
		}
		if n > bestLength {
			bestLength, bestOffset = n, p
		}
	}
	return referenceCandidate(cmdBackrefRotate, bestLength, bestOffset)
}

func (e *encoder) backrefReversed(pos int) candidate {
	key, ok := e.key(pos)
	if !ok {
		return candidate{}
	}

	bestLength, bestOffset := 0, 0
	for p, steps := e.backward.first(key), 0; p >= 0 && steps < e.depth; p, steps = e.backward.prev[p], steps+1 {
		n := 0
		for pos+n < len(e.data) && n < maxRunLength && p-n >= 0 && e.data[p-n] == e.data[pos+n] {
			n++
		}
		if n > bestLength {
			bestLength, bestOffset = n, p
		}
	}
	return referenceCandidate(cmdBackrefReverse, bestLength, bestOffset)
}

func referenceCandidate(command byte, length, offset int) candidate {
	if length < minMatchLength {
		return candidate{}
	}
	return candidate{
		command: command,
		length:  length,
		covered: length,
		payload: []byte{byte(offset >> 8), byte(offset)},
	}
}

func (e *encoder) key(pos int) (uint32, bool) {
	if pos+2 >= len(e.data) {
		return 0, false
	}
	return pack3(e.data[pos], e.data[pos+1], e.data[pos+2]), true
}

// index makes position q available as a reference source for later positions.
func (e *encoder) index(q int) {
	if q+2 < len(e.data) {
		e.forward.insert(pack3(e.data[q], e.data[q+1], e.data[q+2]), q)
		if e.rotated != nil {
			e.rotated.insert(pack3(reverseBits(e.data[q]), reverseBits(e.data[q+1]), reverseBits(e.data[q+2])), q)
		}
	}
	if e.backward != nil && q >= 2 {
		e.backward.insert(pack3(e.data[q], e.data[q-1], e.data[q-2]), q)
	}
}

func (e *encoder) flushRaw() {
	for start := 0; start < len(e.raw); start += maxRunLength {
		end := min(start+maxRunLength, len(e.raw))
		e.writeHeader(cmdRaw, end-start)
		e.out = append(e.out, e.raw[start:end]...)
	}
	e.raw = e.raw[:0]
}

func (e *encoder) emit(c candidate) {
	e.writeHeader(c.command, c.length)
	e.out = append(e.out, c.payload...)
}

func (e *encoder) writeHeader(command byte, length int) {
	value := length - 1
	if length <= shortLimit {
		e.out = append(e.out, command<<5|byte(value))
		return
	}
	e.out = append(e.out, longCommand|command<<2|byte(value>>8), byte(value))
}

func headerSize(length int) int {
	if length <= shortLimit {
		return 1
	}
	return 2
}

func pack3(a, b, c byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16
}
