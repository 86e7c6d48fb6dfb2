package crawler

import (
	"fmt"

	"github.com/eratner15/tariff-engineer/features/ruling"
)

// Range is an inclusive span of ruling sequence numbers of one kind.
type Range struct {
	Kind  ruling.Kind
	Start int
	End   int
}

func (r Range) Validate() error {
	if r.Kind.Prefix() == "" {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRange, r.Kind)
	}
	if r.Start < 0 || r.End < 0 {
		return fmt.Errorf("%w: negative bound in %d-%d", ErrInvalidRange, r.Start, r.End)
	}
	if r.Start > r.End {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Len is the number of ids in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// IDs expands the range into ruling ids in ascending order.
func (r Range) IDs() []string {
	ids := make([]string, 0, r.Len())
	for n := r.Start; n <= r.End; n++ {
		ids = append(ids, ruling.FormatID(r.Kind, n))
	}
	return ids
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", ruling.FormatID(r.Kind, r.Start), ruling.FormatID(r.Kind, r.End))
}

// DefaultRanges cover the recent New York and Headquarters rulings.
func DefaultRanges() []Range {
	return []Range{
		{Kind: ruling.KindLocal, Start: 330000, End: 340000},
		{Kind: ruling.KindPrecedential, Start: 310000, End: 312000},
	}
}
