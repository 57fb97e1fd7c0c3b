package scoring

import (
	"context"
	"fmt"

	"github.com/pavelanni/examgen/internal/fuzzy"
	"github.com/pavelanni/examgen/internal/model"
)

// BestSource returns the page whose text best matches the question and its
// model answer. Scores stay on the raw 0-100 scale. The first page reaching
// the maximum wins ties. An empty pool yields model.NoSource().
func BestSource(question, modelAnswer string, pages []model.ContextPage) (model.SourceAttribution, error) {
	return BestSourceContext(context.Background(), question, modelAnswer, pages)
}

// BestSourceContext is BestSource with a cancellation check between pages.
func BestSourceContext(ctx context.Context, question, modelAnswer string, pages []model.ContextPage) (model.SourceAttribution, error) {
	if err := validText("question", question, modelAnswer); err != nil {
		return model.NoSource(), err
	}
	for i, p := range pages {
		if p.PageNumber < 1 {
			return model.NoSource(), fmt.Errorf("%w: page %d of %q has number %d", ErrInvalidArgument, i, p.SourceName, p.PageNumber)
		}
		if err := validText("page text", p.SourceName, p.Text); err != nil {
			return model.NoSource(), err
		}
	}

	target := Normalize(question + " " + modelAnswer)
	best := model.NoSource()
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return model.NoSource(), err
		}
		sc := fuzzy.PartialRatio(target, Normalize(p.Text))
		if sc > best.MatchScore {
			name, page := p.SourceName, p.PageNumber
			best = model.SourceAttribution{SourceName: &name, PageNumber: &page, MatchScore: sc}
		}
	}
	return best, nil
}
