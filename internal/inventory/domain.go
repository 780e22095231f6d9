// internal/inventory/domain.go
package inventory

import (
	"github.com/shopspring/decimal"
)

// Book is a catalogued title. (Title, Authors, Publisher, Year) is unique.
type Book struct {
	ID            int64               `json:"id" db:"id"`
	Title         string              `json:"title" db:"title"`
	Authors       string              `json:"authors" db:"authors"`
	Publisher     string              `json:"publisher" db:"publisher"`
	Year          *int                `json:"year" db:"year"`
	Pages         *int                `json:"pages" db:"pages"`
	Illustrations int                 `json:"illustrations" db:"illustrations"`
	Price         decimal.NullDecimal `json:"price" db:"price"`
}

// MarshalJSON renders the price with exactly two decimal places.
func (b Book) MarshalJSON() ([]byte, error) {
	var price *string
	if b.Price.Valid {
		fixed := b.Price.Decimal.StringFixed(priceScale)
		price = &fixed
	}
	return json.Marshal(struct {
		ID            int64   `json:"id"`
		Title         string  `json:"title"`
		Authors       string  `json:"authors"`
		Publisher     string  `json:"publisher"`
		Year          *int    `json:"year"`
		Pages         *int    `json:"pages"`
		Illustrations int     `json:"illustrations"`
		Price         *string `json:"price"`
	}{
		ID:            b.ID,
		Title:         b.Title,
		Authors:       b.Authors,
		Publisher:     b.Publisher,
		Year:          b.Year,
		Pages:         b.Pages,
		Illustrations: b.Illustrations,
		Price:         price,
	})
}

// Branch is a library location that holds stock.
type Branch struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Address string `json:"address" db:"address"`
}

// Faculty uses books. Names are unique.
type Faculty struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// BookStock is the number of copies of a book held at a branch.
type BookStock struct {
	BookID   int64 `json:"book_id" db:"book_id"`
	BranchID int64 `json:"branch_id" db:"branch_id"`
	Quantity int   `json:"quantity" db:"quantity"`
}

// BookFaculty records that a faculty uses a book.
type BookFaculty struct {
	BookID    int64 `json:"book_id" db:"book_id"`
	FacultyID int64 `json:"faculty_id" db:"faculty_id"`
}

// BookInput is the payload for creating a book.
type BookInput struct {
	Title         string              `json:"title" validate:"required"`
	Authors       string              `json:"authors" validate:"required"`
	Publisher     string              `json:"publisher" validate:"required"`
	Year          *int                `json:"year"`
	Pages         *int                `json:"pages" validate:"omitempty,min=1"`
	Illustrations int                 `json:"illustrations" validate:"min=0"`
	Price         decimal.NullDecimal `json:"price" validate:"omitempty,gte=0"`
}

// BranchInput is the payload for creating a branch.
type BranchInput struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// FacultyInput is the payload for creating a faculty.
type FacultyInput struct {
	Name string `json:"name" validate:"required"`
}

// StockInput sets the quantity of a book at a branch. Ids are pointers so an
// absent id is a validation error while an unknown one is not found.
type StockInput struct {
	BookID   *int64 `json:"book_id" validate:"required"`
	BranchID *int64 `json:"branch_id" validate:"required"`
	Quantity *int   `json:"quantity" validate:"required,min=0"`
}

// LinkInput identifies a book-faculty pair.
type LinkInput struct {
	BookID    *int64 `json:"book_id" validate:"required"`
	FacultyID *int64 `json:"faculty_id" validate:"required"`
}

// StockFilter narrows ListStock. Nil fields match everything.
type StockFilter struct {
	BookID   *int64
	BranchID *int64
}

// QuantityReport answers "how many copies of this book are at this branch".
type QuantityReport struct {
	BranchID int64 `json:"branch_id"`
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// FacultyUsage lists the faculties using a book that is available at a branch.
type FacultyUsage struct {
	BookID    int64    `json:"book_id"`
	BranchID  int64    `json:"branch_id"`
	Count     int      `json:"count"`
	Faculties []string `json:"faculties"`
}

// Optional is a patch field. Set reports whether the key was present in the
// request body; Null reports an explicit JSON null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a set, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a set Optional holding an explicit null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// ptr returns the value as a pointer, nil for an explicit null.
func (o Optional[T]) ptr() *T {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// BookPatch is a sparse update of a book.
type BookPatch struct {
	Title         Optional[string]          `json:"title"`
	Authors       Optional[string]          `json:"authors"`
	Publisher     Optional[string]          `json:"publisher"`
	Year          Optional[int]             `json:"year"`
	Pages         Optional[int]             `json:"pages"`
	Illustrations Optional[int]             `json:"illustrations"`
	Price         Optional[decimal.Decimal] `json:"price"`
}

// Apply assigns every field present in the patch onto b.
func (p BookPatch) Apply(b *Book) {
	if p.Title.Set {
		b.Title = p.Title.Value
	}
	if p.Authors.Set {
		b.Authors = p.Authors.Value
	}
	if p.Publisher.Set {
		b.Publisher = p.Publisher.Value
	}
	if p.Year.Set {
		b.Year = p.Year.ptr()
	}
	if p.Pages.Set {
		b.Pages = p.Pages.ptr()
	}
	if p.Illustrations.Set {
		b.Illustrations = p.Illustrations.Value
	}
	if p.Price.Set {
		b.Price = decimal.NullDecimal{Decimal: p.Price.Value, Valid: !p.Price.Null}
	}
}

// BranchPatch is a sparse update of a branch.
type BranchPatch struct {
	Name    Optional[string] `json:"name"`
	Address Optional[string] `json:"address"`
}

// Apply assigns every field present in the patch onto b.
func (p BranchPatch) Apply(b *Branch) {
	if p.Name.Set {
		b.Name = p.Name.Value
	}
	if p.Address.Set {
		b.Address = p.Address.Value
	}
}

// FacultyPatch is a sparse update of a faculty.
type FacultyPatch struct {
	Name Optional[string] `json:"name"`
}

// Apply assigns every field present in the patch onto f.
func (p FacultyPatch) Apply(f *Faculty) {
	if p.Name.Set {
		f.Name = p.Name.Value
	}
}

func (o Optional[T]) put(fields map[string]interface{}, key string) {
	switch {
	case !o.Set:
	case o.Null:
		fields[key] = nil
	default:
		fields[key] = o.Value
	}
}

// MarshalJSON emits only the fields present in the patch.
func (p BookPatch) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{})
	p.Title.put(fields, "title")
	p.Authors.put(fields, "authors")
	p.Publisher.put(fields, "publisher")
	p.Year.put(fields, "year")
	p.Pages.put(fields, "pages")
	p.Illustrations.put(fields, "illustrations")
	p.Price.put(fields, "price")
	return json.Marshal(fields)
}

func (p BranchPatch) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{})
	p.Name.put(fields, "name")
	p.Address.put(fields, "address")
	return json.Marshal(fields)
}

func (p FacultyPatch) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{})
	p.Name.put(fields, "name")
	return json.Marshal(fields)
}
