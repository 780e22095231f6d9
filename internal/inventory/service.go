// internal/inventory/service.go
package inventory

import (
	"context"
)

// Service defines the inventory operations exposed by the API.
type Service interface {
	ListBooks(ctx context.Context) ([]*Book, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	CreateBook(ctx context.Context, in BookInput) (*Book, error)
	UpdateBook(ctx context.Context, id int64, patch BookPatch) (*Book, error)
	DeleteBook(ctx context.Context, id int64) error

	ListBranches(ctx context.Context) ([]*Branch, error)
	GetBranch(ctx context.Context, id int64) (*Branch, error)
	CreateBranch(ctx context.Context, in BranchInput) (*Branch, error)
	UpdateBranch(ctx context.Context, id int64, patch BranchPatch) (*Branch, error)
	DeleteBranch(ctx context.Context, id int64) error

	ListFaculties(ctx context.Context) ([]*Faculty, error)
	GetFaculty(ctx context.Context, id int64) (*Faculty, error)
	CreateFaculty(ctx context.Context, in FacultyInput) (*Faculty, error)
	UpdateFaculty(ctx context.Context, id int64, patch FacultyPatch) (*Faculty, error)
	DeleteFaculty(ctx context.Context, id int64) error

	UpsertStock(ctx context.Context, in StockInput) (*BookStock, error)
	ListStock(ctx context.Context, filter StockFilter) ([]*BookStock, error)
	LinkBookFaculty(ctx context.Context, in LinkInput) (*BookFaculty, error)
	UnlinkBookFaculty(ctx context.Context, bookID, facultyID int64) error
	ListBookFaculties(ctx context.Context, bookID *int64) ([]*BookFaculty, error)

	Quantity(ctx context.Context, branchID, bookID int64) (*QuantityReport, error)
	FacultyUsage(ctx context.Context, branchID, bookID int64) (*FacultyUsage, error)

	ResetSchema(ctx context.Context) error
}
