package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryinfo/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), store.Config{
		Driver: store.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "inventory.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T, opts ...ServiceOption) Service {
	t.Helper()
	return NewService(openTestStore(t), nil, opts...)
}

func intPtr(v int) *int { return &v }

func idPtr(v int64) *int64 { return &v }

func bookInput(title string) BookInput {
	return BookInput{
		Title:         title,
		Authors:       "Ursula K. Le Guin",
		Publisher:     "Ace",
		Year:          intPtr(1969),
		Pages:         intPtr(304),
		Illustrations: 2,
		Price:         decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
	}
}

type fixture struct {
	book    *Book
	branch  *Branch
	faculty *Faculty
}

func seed(t *testing.T, svc Service) fixture {
	t.Helper()
	ctx := context.Background()

	book, err := svc.CreateBook(ctx, bookInput("The Left Hand of Darkness"))
	require.NoError(t, err)
	branch, err := svc.CreateBranch(ctx, BranchInput{Name: "Central", Address: "1 Main St"})
	require.NoError(t, err)
	faculty, err := svc.CreateFaculty(ctx, FacultyInput{Name: "Philology"})
	require.NoError(t, err)

	return fixture{book: book, branch: branch, faculty: faculty}
}

func setStock(t *testing.T, svc Service, bookID, branchID int64, quantity int) {
	t.Helper()
	_, err := svc.UpsertStock(context.Background(), StockInput{BookID: &bookID, BranchID: &branchID, Quantity: &quantity})
	require.NoError(t, err)
}

func TestCreateAndGetBook(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, bookInput("A Wizard of Earthsea"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := svc.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "A Wizard of Earthsea", got.Title)
	require.NotNil(t, got.Year)
	assert.Equal(t, 1969, *got.Year)
	require.True(t, got.Price.Valid)
	assert.True(t, got.Price.Decimal.Equal(decimal.RequireFromString("12.5")))

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestGetMissingBookIsNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetBook(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, msgBookNotFound, e.Detail)
}

func TestDuplicateBookIsConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, bookInput("The Dispossessed"))
	require.NoError(t, err)

	_, err = svc.CreateBook(ctx, bookInput("The Dispossessed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestBooksWithoutYearAreDistinct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := bookInput("Undated")
	in.Year = nil
	_, err := svc.CreateBook(ctx, in)
	require.NoError(t, err)
	_, err = svc.CreateBook(ctx, in)
	require.NoError(t, err)
}

func TestCreateBookValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*BookInput)
	}{
		{"missing title", func(in *BookInput) { in.Title = "" }},
		{"zero pages", func(in *BookInput) { in.Pages = intPtr(0) }},
		{"negative illustrations", func(in *BookInput) { in.Illustrations = -1 }},
		{"negative price", func(in *BookInput) {
			in.Price = decimal.NewNullDecimal(decimal.RequireFromString("-0.01"))
		}},
		{"sub-cent price", func(in *BookInput) {
			in.Price = decimal.NewNullDecimal(decimal.RequireFromString("3.456"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bookInput("Validation")
			tt.mutate(&in)
			_, err := svc.CreateBook(ctx, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestUpdateBookKeepsAbsentFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, bookInput("Always Coming Home"))
	require.NoError(t, err)

	updated, err := svc.UpdateBook(ctx, created.ID, BookPatch{
		Pages: Some(520),
		Year:  Null[int](),
	})
	require.NoError(t, err)

	assert.Equal(t, created.Title, updated.Title)
	assert.Equal(t, created.Authors, updated.Authors)
	assert.Equal(t, created.Publisher, updated.Publisher)
	assert.Equal(t, created.Illustrations, updated.Illustrations)
	assert.True(t, created.Price.Decimal.Equal(updated.Price.Decimal))
	assert.Nil(t, updated.Year)
	require.NotNil(t, updated.Pages)
	assert.Equal(t, 520, *updated.Pages)
}

func TestUpdateBookRejectsNullTitle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, bookInput("Lavinia"))
	require.NoError(t, err)

	_, err = svc.UpdateBook(ctx, created.ID, BookPatch{Title: Null[string]()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestUpdateBookRejectsSubCentPrice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, bookInput("Tehanu"))
	require.NoError(t, err)

	_, err = svc.UpdateBook(ctx, created.ID, BookPatch{Price: Some(decimal.RequireFromString("3.456"))})
	assert.True(t, errors.Is(err, ErrValidation))

	got, err := svc.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Decimal.Equal(created.Price.Decimal))
}

func TestUpdateBookIntoDuplicateIsConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, bookInput("Taken"))
	require.NoError(t, err)
	other, err := svc.CreateBook(ctx, bookInput("Free"))
	require.NoError(t, err)

	_, err = svc.UpdateBook(ctx, other.ID, BookPatch{Title: Some("Taken")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestUpdateMissingBookIsNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.UpdateBook(context.Background(), 77, BookPatch{Title: Some("Nope")})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteStockedBook(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	setStock(t, svc, f.book.ID, f.branch.ID, 4)
	_, err := svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(f.faculty.ID)})
	require.NoError(t, err)

	err = svc.DeleteBook(ctx, f.book.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	setStock(t, svc, f.book.ID, f.branch.ID, 0)
	require.NoError(t, svc.DeleteBook(ctx, f.book.ID))

	_, err = svc.GetBook(ctx, f.book.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	rows, err := svc.ListStock(ctx, StockFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	links, err := svc.ListBookFaculties(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDeleteMissingBookIsNotFound(t *testing.T) {
	svc := newTestService(t)

	err := svc.DeleteBook(context.Background(), 9)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBranchLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	updated, err := svc.UpdateBranch(ctx, f.branch.ID, BranchPatch{Address: Some("2 Side St")})
	require.NoError(t, err)
	assert.Equal(t, "Central", updated.Name)
	assert.Equal(t, "2 Side St", updated.Address)

	setStock(t, svc, f.book.ID, f.branch.ID, 1)
	err = svc.DeleteBranch(ctx, f.branch.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	setStock(t, svc, f.book.ID, f.branch.ID, 0)
	require.NoError(t, svc.DeleteBranch(ctx, f.branch.ID))

	_, err = svc.GetBranch(ctx, f.branch.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteBranch(ctx, f.branch.ID), ErrNotFound))

	branches, err := svc.ListBranches(ctx)
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestFacultyLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	_, err := svc.CreateFaculty(ctx, FacultyInput{Name: "Philology"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	other, err := svc.CreateFaculty(ctx, FacultyInput{Name: "History"})
	require.NoError(t, err)
	_, err = svc.UpdateFaculty(ctx, other.ID, FacultyPatch{Name: Some("Philology")})
	assert.True(t, errors.Is(err, ErrConflict))

	renamed, err := svc.UpdateFaculty(ctx, other.ID, FacultyPatch{Name: Some("Archaeology")})
	require.NoError(t, err)
	assert.Equal(t, "Archaeology", renamed.Name)

	_, err = svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(f.faculty.ID)})
	require.NoError(t, err)

	err = svc.DeleteFaculty(ctx, f.faculty.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	require.NoError(t, svc.UnlinkBookFaculty(ctx, f.book.ID, f.faculty.ID))
	require.NoError(t, svc.DeleteFaculty(ctx, f.faculty.ID))
	assert.True(t, errors.Is(svc.DeleteFaculty(ctx, f.faculty.ID), ErrNotFound))

	faculties, err := svc.ListFaculties(ctx)
	require.NoError(t, err)
	require.Len(t, faculties, 1)
	assert.Equal(t, "Archaeology", faculties[0].Name)
}

func TestUpsertStock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	setStock(t, svc, f.book.ID, f.branch.ID, 3)
	setStock(t, svc, f.book.ID, f.branch.ID, 8)

	rows, err := svc.ListStock(ctx, StockFilter{BookID: &f.book.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 8, rows[0].Quantity)

	report, err := svc.Quantity(ctx, f.branch.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Quantity)
}

func TestUpsertStockMissingParents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)
	q := 1

	_, err := svc.UpsertStock(ctx, StockInput{BookID: idPtr(999), BranchID: idPtr(f.branch.ID), Quantity: &q})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.UpsertStock(ctx, StockInput{BookID: idPtr(f.book.ID), BranchID: idPtr(999), Quantity: &q})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertStockValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	negative := -1
	_, err := svc.UpsertStock(ctx, StockInput{BookID: idPtr(f.book.ID), BranchID: idPtr(f.branch.ID), Quantity: &negative})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.UpsertStock(ctx, StockInput{BookID: idPtr(f.book.ID), BranchID: idPtr(f.branch.ID)})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestZeroIdIsNotFoundAbsentIdIsInvalid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)
	q := 1

	_, err := svc.UpsertStock(ctx, StockInput{BookID: idPtr(0), BranchID: idPtr(f.branch.ID), Quantity: &q})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.UpsertStock(ctx, StockInput{BookID: idPtr(f.book.ID), BranchID: idPtr(0), Quantity: &q})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.UpsertStock(ctx, StockInput{BranchID: idPtr(f.branch.ID), Quantity: &q})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(0)})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID)})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestLinkBookFaculty(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	_, err := svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(999)})
	assert.True(t, errors.Is(err, ErrNotFound))

	link, err := svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(f.faculty.ID)})
	require.NoError(t, err)
	assert.Equal(t, f.faculty.ID, link.FacultyID)

	_, err = svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(f.faculty.ID)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	links, err := svc.ListBookFaculties(ctx, &f.book.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	assert.True(t, errors.Is(svc.UnlinkBookFaculty(ctx, f.book.ID, 999), ErrNotFound))
}

func TestQuantityOfAbsentPairIsZero(t *testing.T) {
	svc := newTestService(t)

	report, err := svc.Quantity(context.Background(), 123, 456)
	require.NoError(t, err)
	assert.Equal(t, &QuantityReport{BranchID: 123, BookID: 456, Quantity: 0}, report)
}

func TestFacultyUsage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	for _, name := range []string{"Zoology", "Art", "Mathematics"} {
		faculty, err := svc.CreateFaculty(ctx, FacultyInput{Name: name})
		require.NoError(t, err)
		_, err = svc.LinkBookFaculty(ctx, LinkInput{BookID: idPtr(f.book.ID), FacultyID: idPtr(faculty.ID)})
		require.NoError(t, err)
	}

	usage, err := svc.FacultyUsage(ctx, f.branch.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Count)
	assert.NotNil(t, usage.Faculties)
	assert.Empty(t, usage.Faculties)

	setStock(t, svc, f.book.ID, f.branch.ID, 2)

	usage, err = svc.FacultyUsage(ctx, f.branch.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Count)
	assert.Equal(t, []string{"Art", "Mathematics", "Zoology"}, usage.Faculties)

	setStock(t, svc, f.book.ID, f.branch.ID, 0)

	usage, err = svc.FacultyUsage(ctx, f.branch.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Count)
}

func TestResetSchema(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seed(t, svc)

	require.NoError(t, svc.ResetSchema(ctx))

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

// stockAfterGuard writes a positive stock row once the delete guard has passed,
// as a concurrent writer would.
func stockAfterGuard(svc Service, bookID, branchID int64) {
	svc.(*service).afterGuard = func(ctx context.Context, tx *store.Tx) error {
		_, err := tx.Exec(ctx, tx.Insert(tableStock).Rows(goqu.Record{
			colBookID:   bookID,
			colBranchID: branchID,
			colQuantity: 5,
		}).OnConflict(goqu.DoUpdate(colBookID+", "+colBranchID, goqu.Record{
			colQuantity: goqu.L("EXCLUDED." + colQuantity),
		})))
		return err
	}
}

func TestDeleteBookRestrictBackstop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	stockAfterGuard(svc, f.book.ID, f.branch.ID)

	err := svc.DeleteBook(ctx, f.book.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, msgBookStocked, e.Detail)

	// rolled back: the book and no stock row remain
	_, err = svc.GetBook(ctx, f.book.ID)
	require.NoError(t, err)
	report, err := svc.Quantity(ctx, f.branch.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Quantity)
}

func TestDeleteBranchRestrictBackstop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	stockAfterGuard(svc, f.book.ID, f.branch.ID)

	err := svc.DeleteBranch(ctx, f.branch.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = svc.GetBranch(ctx, f.branch.ID)
	assert.NoError(t, err)
}
