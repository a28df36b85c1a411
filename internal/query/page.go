package query

import (
	"strconv"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// MaxPageNumber bounds Number so Offset cannot overflow.
const MaxPageNumber = 1_000_000

// Page selects one page of a paginated listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of records skipped before the page starts.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Validate checks the page against maxSize.
func (p Page) Validate(maxSize int) error {
	ve := domain.NewValidationError()
	if p.Number < 1 || p.Number > MaxPageNumber {
		ve.Add("pageNumber", "must be between 1 and "+strconv.Itoa(MaxPageNumber))
	}
	if p.Size < 1 || p.Size > maxSize {
		ve.Add("itemsPerPage", "must be between 1 and "+strconv.Itoa(maxSize))
	}
	return ve.OrNil()
}

// TotalPages is ceil(total / size).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
