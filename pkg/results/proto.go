package results

import (
	"math/cmplx"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/edp1096/spicebridge/pkg/simerr"
)

// Struct exports the results as a protobuf Struct. Complex samples become
// {"re", "im", "mag"} objects.
func (r *SimulationResults) Struct() (*structpb.Struct, error) {
	values := make([]any, 0, len(r.values))
	for _, v := range r.values {
		data := make([]any, 0, v.Len())
		if v.Complex != nil {
			for _, c := range v.Complex {
				data = append(data, map[string]any{"re": real(c), "im": imag(c), "mag": cmplx.Abs(c)})
			}
		} else {
			for _, x := range v.Real {
				data = append(data, x)
			}
		}
		values = append(values, map[string]any{
			"name":    v.Name,
			"display": v.DisplayName(),
			"kind":    v.Kind.String(),
			"unit":    v.Unit,
			"data":    data,
		})
	}

	s, err := structpb.NewStruct(map[string]any{
		"analysis": r.analysis.String(),
		"plot":     r.plot,
		"success":  r.success,
		"aborted":  r.aborted,
		"values":   values,
		"warnings": stringsToAny(r.warnings),
		"errors":   stringsToAny(r.errors),
	})
	if err != nil {
		return nil, simerr.System("encoding results", err)
	}
	return s, nil
}

func stringsToAny(lines []string) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l
	}
	return out
}
