package fec

import "fmt"

// Coder is an opaque fountain-style encoder: constructed once from the
// original shards, it can then produce a repair symbol for any repair
// index on demand, amortizing setup cost across all repair symbols
// emitted for one frame.
type Coder interface {
	// Repair returns the repair shard for FEC index i (0-based among the
	// repair shards, not the fragment's on-wire index).
	Repair(i int) []byte
}

// cauchyCoder is a systematic Cauchy Reed-Solomon style erasure coder over
// GF(256): original shards pass through untouched, and each repair shard is
// a GF(256) linear combination of all original shards using a Cauchy matrix
// row, which guarantees any numOrig of the numOrig+numRepair total shards
// are enough to reconstruct everything (a true MDS code, stronger than a
// fountain codec's probabilistic guarantee, at the cost of a fixed
// numOrig+numRepair shard count known up front).
type cauchyCoder struct {
	original [][]byte
	numOrig  int
	shardLen int
}

// NewEncoder builds a Coder over original shards, all of which must share
// the same length (callers pad the final short original shard with zeros
// before encoding — see fragment.go).
func NewEncoder(original [][]byte) (Coder, error) {
	if len(original) == 0 {
		return nil, fmt.Errorf("fec: no original shards")
	}
	shardLen := len(original[0])
	for i, s := range original {
		if len(s) != shardLen {
			return nil, fmt.Errorf("fec: shard %d has length %d, want %d", i, len(s), shardLen)
		}
	}
	if len(original) > 255 {
		return nil, fmt.Errorf("fec: too many original shards (%d > 255)", len(original))
	}
	return &cauchyCoder{original: original, numOrig: len(original), shardLen: shardLen}, nil
}

func (c *cauchyCoder) Repair(i int) []byte {
	row := cauchyRow(i, c.numOrig)
	out := make([]byte, c.shardLen)
	for k := 0; k < c.numOrig; k++ {
		coeff := row[k]
		if coeff == 0 {
			continue
		}
		src := c.original[k]
		for b := 0; b < c.shardLen; b++ {
			out[b] ^= gfMul(coeff, src[b])
		}
	}
	return out
}

// cauchyRow returns the GF(256) coefficients of repair row i against numOrig
// original columns: y_k = byte(k) for k in [0,numOrig), x_i = byte(numOrig+i)
// kept disjoint from all y_k, coeff = 1/(x_i + y_k) (GF addition is XOR).
func cauchyRow(i, numOrig int) []byte {
	x := byte(numOrig + i)
	row := make([]byte, numOrig)
	for k := 0; k < numOrig; k++ {
		y := byte(k)
		row[k] = gfDiv(1, x^y)
	}
	return row
}

// Decoder accumulates received shards (original or repair) by their global
// fragment index in [0, numOrig+numRepair) and reconstructs the original
// shards once enough distinct indices have arrived.
type Decoder struct {
	numOrig  int
	shardLen int
	received map[int][]byte // fragment index -> shard bytes
}

func NewDecoder(numOrig, shardLen int) *Decoder {
	return &Decoder{numOrig: numOrig, shardLen: shardLen, received: make(map[int][]byte)}
}

// Add records a received shard at the given global fragment index.
func (d *Decoder) Add(index int, shard []byte) {
	if _, ok := d.received[index]; ok {
		return
	}
	b := append([]byte(nil), shard...)
	if len(b) < d.shardLen {
		padded := make([]byte, d.shardLen)
		copy(padded, b)
		b = padded
	}
	d.received[index] = b
}

// Ready reports whether enough distinct shards have arrived to reconstruct.
func (d *Decoder) Ready() bool { return len(d.received) >= d.numOrig }

// Reconstruct solves the GF(256) linear system formed by any numOrig
// received rows and returns the numOrig original shards in order.
func (d *Decoder) Reconstruct() ([][]byte, error) {
	if !d.Ready() {
		return nil, fmt.Errorf("fec: need %d shards, have %d", d.numOrig, len(d.received))
	}

	// Fast path: all original shards already present, no algebra needed.
	allOriginal := true
	for k := 0; k < d.numOrig; k++ {
		if _, ok := d.received[k]; !ok {
			allOriginal = false
			break
		}
	}
	if allOriginal {
		out := make([][]byte, d.numOrig)
		for k := 0; k < d.numOrig; k++ {
			out[k] = d.received[k]
		}
		return out, nil
	}

	// Pick exactly numOrig indices, preferring original shards (no algebra
	// needed for rows that are already identity rows) then filling the
	// remainder with repair shards.
	chosen := make([]int, 0, d.numOrig)
	for k := 0; k < d.numOrig && len(chosen) < d.numOrig; k++ {
		if _, ok := d.received[k]; ok {
			chosen = append(chosen, k)
		}
	}
	for idx := range d.received {
		if len(chosen) >= d.numOrig {
			break
		}
		if idx < d.numOrig {
			continue
		}
		chosen = append(chosen, idx)
	}
	if len(chosen) < d.numOrig {
		return nil, fmt.Errorf("fec: insufficient distinct shards after selection")
	}

	matrix := make([][]byte, d.numOrig)
	rhs := make([][]byte, d.numOrig)
	for r, idx := range chosen {
		matrix[r] = rowFor(idx, d.numOrig)
		rhs[r] = d.received[idx]
	}

	inv, err := invertMatrix(matrix)
	if err != nil {
		return nil, fmt.Errorf("fec: %w", err)
	}

	out := make([][]byte, d.numOrig)
	for k := range out {
		out[k] = make([]byte, d.shardLen)
	}
	for b := 0; b < d.shardLen; b++ {
		for k := 0; k < d.numOrig; k++ {
			var acc byte
			for r := 0; r < d.numOrig; r++ {
				acc ^= gfMul(inv[k][r], rhs[r][b])
			}
			out[k][b] = acc
		}
	}
	return out, nil
}

// rowFor returns the generator-matrix row for fragment index idx: an
// identity row if idx < numOrig, else the Cauchy repair row.
func rowFor(idx, numOrig int) []byte {
	if idx < numOrig {
		row := make([]byte, numOrig)
		row[idx] = 1
		return row
	}
	return cauchyRow(idx-numOrig, numOrig)
}

// invertMatrix computes the GF(256) inverse of an n x n matrix via
// Gauss-Jordan elimination with partial pivoting.
func invertMatrix(m [][]byte) ([][]byte, error) {
	n := len(m)
	aug := make([][]byte, n)
	for i := 0; i < n; i++ {
		aug[i] = make([]byte, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if aug[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, fmt.Errorf("singular matrix (this indicates a repeated/degenerate shard index)")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		inv := gfDiv(1, aug[col][col])
		for c := 0; c < 2*n; c++ {
			aug[col][c] = gfMul(aug[col][c], inv)
		}

		for r := 0; r < n; r++ {
			if r == col || aug[r][col] == 0 {
				continue
			}
			factor := aug[r][col]
			for c := 0; c < 2*n; c++ {
				aug[r][c] ^= gfMul(factor, aug[col][c])
			}
		}
	}

	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = append([]byte(nil), aug[i][n:]...)
	}
	return out, nil
}
