package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel/attribute"

	"libraryinfo/internal/store"
)

// UpsertStock sets the quantity of a book at a branch, inserting the row when
// the pair has none.
func (s *service) UpsertStock(ctx context.Context, in StockInput) (stock *BookStock, err error) {
	ctx, end := s.start(ctx, "upsert_stock",
		attribute.Int64("book.id", idValue(in.BookID)),
		attribute.Int64("branch.id", idValue(in.BranchID)),
	)
	defer end(&err)

	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	bookID, branchID, quantity := *in.BookID, *in.BranchID, *in.Quantity

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := getBook(ctx, tx, bookID); err != nil {
			return err
		}
		if _, err := getBranch(ctx, tx, branchID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, tx.Insert(tableStock).
			Rows(goqu.Record{
				colBookID:   bookID,
				colBranchID: branchID,
				colQuantity: quantity,
			}).
			OnConflict(goqu.DoUpdate(colBookID+", "+colBranchID, goqu.Record{
				colQuantity: goqu.L("EXCLUDED." + colQuantity),
			})))
		if err != nil {
			return s.translate(ctx, err, msgStockConflict)
		}

		stock = &BookStock{BookID: bookID, BranchID: branchID, Quantity: quantity}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

// ListStock returns stock rows ordered by book and branch.
func (s *service) ListStock(ctx context.Context, filter StockFilter) (rows []*BookStock, err error) {
	ctx, end := s.start(ctx, "list_stock")
	defer end(&err)

	query := func(tx *store.Tx) *goqu.SelectDataset {
		ds := tx.From(tableStock).
			Select(colBookID, colBranchID, colQuantity).
			Order(goqu.C(colBookID).Asc(), goqu.C(colBranchID).Asc())
		if filter.BookID != nil {
			ds = ds.Where(goqu.C(colBookID).Eq(*filter.BookID))
		}
		if filter.BranchID != nil {
			ds = ds.Where(goqu.C(colBranchID).Eq(*filter.BranchID))
		}
		return ds
	}

	rows = make([]*BookStock, 0)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.Select(ctx, &rows, query(tx))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	return rows, nil
}

// LinkBookFaculty records that a faculty uses a book.
func (s *service) LinkBookFaculty(ctx context.Context, in LinkInput) (link *BookFaculty, err error) {
	ctx, end := s.start(ctx, "link_book_faculty",
		attribute.Int64("book.id", idValue(in.BookID)),
		attribute.Int64("faculty.id", idValue(in.FacultyID)),
	)
	defer end(&err)

	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	bookID, facultyID := *in.BookID, *in.FacultyID

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := getBook(ctx, tx, bookID); err != nil {
			return err
		}
		if _, err := getFaculty(ctx, tx, facultyID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, tx.Insert(tableLinks).Rows(goqu.Record{
			colBookID:    bookID,
			colFacultyID: facultyID,
		}))
		if err != nil {
			return s.translate(ctx, err, msgDuplicateLink)
		}

		link = &BookFaculty{BookID: bookID, FacultyID: facultyID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UnlinkBookFaculty removes a book-faculty link.
func (s *service) UnlinkBookFaculty(ctx context.Context, bookID, facultyID int64) (err error) {
	ctx, end := s.start(ctx, "unlink_book_faculty",
		attribute.Int64("book.id", bookID),
		attribute.Int64("faculty.id", facultyID),
	)
	defer end(&err)

	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, err := tx.Exec(ctx, tx.Delete(tableLinks).Where(
			goqu.C(colBookID).Eq(bookID),
			goqu.C(colFacultyID).Eq(facultyID),
		))
		if err != nil {
			return fmt.Errorf("failed to delete link: %w", err)
		}
		if deleted == 0 {
			return notFound(msgLinkNotFound)
		}
		return nil
	})
}

// ListBookFaculties returns link rows, optionally for one book.
func (s *service) ListBookFaculties(ctx context.Context, bookID *int64) (links []*BookFaculty, err error) {
	ctx, end := s.start(ctx, "list_book_faculties")
	defer end(&err)

	links = make([]*BookFaculty, 0)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		ds := tx.From(tableLinks).
			Select(colBookID, colFacultyID).
			Order(goqu.C(colBookID).Asc(), goqu.C(colFacultyID).Asc())
		if bookID != nil {
			ds = ds.Where(goqu.C(colBookID).Eq(*bookID))
		}
		return tx.Select(ctx, &links, ds)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// stockQuantity returns the quantity for the pair, zero when no row exists.
func stockQuantity(ctx context.Context, tx *store.Tx, branchID, bookID int64) (int, error) {
	var quantity int
	err := tx.Get(ctx, &quantity, tx.From(tableStock).
		Select(colQuantity).
		Where(goqu.C(colBranchID).Eq(branchID), goqu.C(colBookID).Eq(bookID)))
	if errors.Is(err, store.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get quantity: %w", err)
	}
	return quantity, nil
}

func idValue(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
