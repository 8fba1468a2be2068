package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// FeatureBatchFlat stores per-slot view features in one contiguous buffer
// laid out as [Batch][Views][Dim].
type FeatureBatchFlat struct {
	Buf   []float32
	Batch int
	Views int
	Dim   int
}

// MakeFeatureBatchFlat flattens per-slot feature arrays. Every slot must have
// the same number of views and the same vector dimension.
func MakeFeatureBatchFlat(features [][][]float32) (*FeatureBatchFlat, error) {
	if len(features) == 0 {
		return &FeatureBatchFlat{}, nil
	}

	views := len(features[0])
	dim := 0
	if views > 0 {
		dim = len(features[0][0])
	}

	flat := make([]float32, len(features)*views*dim)
	for b, slot := range features {
		if len(slot) != views {
			return nil, fmt.Errorf("inconsistent view count at slot %d: expected %d, got %d", b, views, len(slot))
		}
		for v, vec := range slot {
			if len(vec) != dim {
				return nil, fmt.Errorf("inconsistent feature dimension at slot %d view %d: expected %d, got %d",
					b, v, dim, len(vec))
			}
			copy(flat[(b*views+v)*dim:], vec)
		}
	}

	return &FeatureBatchFlat{
		Buf:   flat,
		Batch: len(features),
		Views: views,
		Dim:   dim,
	}, nil
}

// ToGomlxTensor converts the batch to a [Batch, Views, Dim] gomlx tensor.
func (b *FeatureBatchFlat) ToGomlxTensor() (*tensors.Tensor, error) {
	if b.Batch == 0 || b.Views == 0 || b.Dim == 0 {
		empty := make([][][]float32, 0)
		return tensors.FromAnyValue(empty), nil
	}
	data := make([][][]float32, b.Batch)
	idx := 0
	for i := 0; i < b.Batch; i++ {
		data[i] = make([][]float32, b.Views)
		for j := 0; j < b.Views; j++ {
			data[i][j] = b.Buf[idx : idx+b.Dim]
			idx += b.Dim
		}
	}
	return tensors.FromAnyValue(data), nil
}
