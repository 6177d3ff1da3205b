package stages

import (
	"context"
	"fmt"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/display"
)

// The view helpers forward to the display and only log failures; they
// never fail a run.

// ShowFlats examines the three science extensions of each scatter-removed flat.
func (s *Stages) ShowFlats(ctx context.Context, flats []string) []display.Result {
	s.logger.InfoContext(ctx, "Verifying flats", "flats", flats)

	var out []display.Result
	for _, flat := range flats {
		image := artifact.Compose(flat, artifact.ScatterRemoved).Name()
		for ext := 1; ext <= 3; ext++ {
			out = append(out, s.show(ctx, s.display.Examine(ctx, fmt.Sprintf("%s[sci,%d]", image, ext))))
		}
	}
	return out
}

func (s *Stages) ShowScatter(ctx context.Context, subjects []string) []display.Result {
	var out []display.Result
	for _, subject := range subjects {
		out = append(out, s.show(ctx, s.display.Image(ctx, artifact.Compose(subject, artifact.ScatterRemoved).Name())))
	}
	return out
}

func (s *Stages) ShowQE(ctx context.Context, flats []string) []display.Result {
	var out []display.Result
	for _, flat := range flats {
		out = append(out, s.show(ctx, s.display.IFU(ctx, artifact.Compose(flat, artifact.FlatExtracted).Name(), "1")))
	}
	return out
}

func (s *Stages) ShowResponse(ctx context.Context, flats []string) []display.Result {
	var out []display.Result
	for _, flat := range flats {
		out = append(out, s.show(ctx, s.display.IFU(ctx, artifact.ResponseOf(flat).Name(), "1")))
	}
	return out
}

func (s *Stages) show(ctx context.Context, result display.Result) display.Result {
	display.Log(ctx, s.logger, result)
	return result
}
