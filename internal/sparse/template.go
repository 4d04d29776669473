package sparse

import (
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// stitch expands learned tuples (b, n, len(LearnCols)) into full index tuples (b, n, rank).
//
// The n entries are split evenly over the template rows: entry j starts from row
// j / (n / rows) and its learnable columns are overwritten with the learned coordinates.
func (l *Layer[B]) stitch(learned *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := learned.Shape()
	b, n, r := shape[0], shape[1], shape[2]
	rows := len(l.cfg.Template)
	if n%rows != 0 {
		return nil, newError(ErrContractViolation, "forward", "%d entries cannot be spread over %d template rows", n, rows)
	}
	per := n / rows

	out, err := tensor.NewRaw(tensor.Shape{b, n, l.rank}, tensor.Int64, learned.Device())
	if err != nil {
		return nil, err
	}
	src, dst := learned.AsInt64(), out.AsInt64()
	for t := 0; t < b*n; t++ {
		row := dst[t*l.rank : (t+1)*l.rank]
		copy(row, l.cfg.Template[(t%n)/per])
		for a, col := range l.learnCols {
			row[col] = src[t*r+a]
		}
	}
	return out, nil
}
