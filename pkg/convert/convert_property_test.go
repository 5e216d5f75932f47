package convert

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sethwebster/presentations-sub001/pkg/deck"
)

func payload(i int) string {
	body := fmt.Appendf(nil, "payload-%d-", i)
	for len(body) < 90 {
		body = append(body, byte('a'+i%26))
	}
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(body)
}

// docFor places payload(picks[i]) on slide i, alternating between the
// element tree and a nested group.
func docFor(picks []int) *deck.WorkingDocument {
	doc := &deck.WorkingDocument{Meta: deck.Meta{ID: "prop"}}
	for i, p := range picks {
		el := deck.Element{ID: "e", Type: deck.ElementImage, Src: payload(p)}
		if i%2 == 1 {
			el = deck.Element{ID: "g", Type: deck.ElementGroup, Children: []deck.Element{el}}
		}
		doc.Slides = append(doc.Slides, deck.Slide{ID: fmt.Sprintf("s%d", i), Elements: []deck.Element{el}})
	}
	return doc
}

func srcOf(s deck.Slide) string {
	e := s.Elements[0]
	if e.Type == deck.ElementGroup {
		return e.Children[0].Src
	}
	return e.Src
}

func TestToPortableProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	picks := gen.SliceOf(gen.IntRange(0, 5))

	properties.Property("identical payloads share one reference and one put", prop.ForAll(
		func(picks []int) bool {
			store := newCountingStore()
			out, _, err := New(WithConcurrency(4)).ToPortable(context.Background(), docFor(picks), store)
			if err != nil {
				return false
			}

			distinct := map[int]string{}
			for i, p := range picks {
				ref := srcOf(out.Slides[i])
				if !deck.IsReference(ref) {
					return false
				}
				if prev, ok := distinct[p]; ok && prev != ref {
					return false
				}
				distinct[p] = ref
			}
			for _, n := range store.puts {
				if n != 1 {
					return false
				}
			}
			return len(store.puts) == len(distinct) && len(out.Assets) == len(distinct)
		},
		picks,
	))

	properties.Property("a second pass over the working form uploads nothing", prop.ForAll(
		func(picks []int) bool {
			store := newCountingStore()
			conv := New()
			first, _, err := conv.ToPortable(context.Background(), docFor(picks), store)
			if err != nil {
				return false
			}
			before := store.totalPuts()
			second, report, err := conv.ToPortable(context.Background(), conv.ToWorking(first), store)
			if err != nil {
				return false
			}
			if store.totalPuts() != before || report.Stored != 0 || len(second.Assets) != len(first.Assets) {
				return false
			}
			for ref := range first.Assets {
				if _, ok := second.Assets[ref]; !ok {
					return false
				}
			}
			return true
		},
		picks,
	))

	properties.TestingRun(t)
}
