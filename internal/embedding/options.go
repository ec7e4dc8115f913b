package embedding

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath string
	// LibraryPath points at libonnxruntime; empty uses the platform default lookup.
	LibraryPath string
	Dimensions  int
	MaxTokens   int
	// PoolTokens mean-pools a [1, tokens, dim] output over attended tokens.
	// Leave false for models that already emit a pooled [1, dim] sentence vector.
	PoolTokens bool
	// OutputName defaults to "last_hidden_state" when pooling, "output" otherwise.
	OutputName string
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	if o.Dimensions <= 0 {
		o.Dimensions = 384
	}
	if o.MaxTokens <= 2 {
		o.MaxTokens = 256
	}
	if o.OutputName == "" {
		if o.PoolTokens {
			o.OutputName = "last_hidden_state"
		} else {
			o.OutputName = "output"
		}
	}
	return o
}

// meanPool averages token vectors (row-major [tokens][dim]) where mask is 1.
func meanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var n float32
	for t, m := range mask {
		if m == 0 || (t+1)*dim > len(hidden) {
			continue
		}
		row := hidden[t*dim : (t+1)*dim]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}
