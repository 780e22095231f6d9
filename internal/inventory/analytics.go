package inventory

import (
	"context"
	"fmt"
	"slices"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel/attribute"

	"libraryinfo/internal/store"
)

// Quantity reports the copies of a book at a branch. A missing stock row is
// zero copies, never an error.
func (s *service) Quantity(ctx context.Context, branchID, bookID int64) (report *QuantityReport, err error) {
	ctx, end := s.start(ctx, "quantity",
		attribute.Int64("branch.id", branchID),
		attribute.Int64("book.id", bookID),
	)
	defer end(&err)

	var quantity int
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		quantity, err = stockQuantity(ctx, tx, branchID, bookID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &QuantityReport{BranchID: branchID, BookID: bookID, Quantity: quantity}, nil
}

// FacultyUsage lists, by name, the faculties using a book, provided the branch
// holds at least one copy. The list itself does not depend on the branch.
func (s *service) FacultyUsage(ctx context.Context, branchID, bookID int64) (usage *FacultyUsage, err error) {
	ctx, end := s.start(ctx, "faculty_usage",
		attribute.Int64("branch.id", branchID),
		attribute.Int64("book.id", bookID),
	)
	defer end(&err)

	names := make([]string, 0)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		quantity, err := stockQuantity(ctx, tx, branchID, bookID)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			return nil
		}

		err = tx.Select(ctx, &names, tx.From(goqu.T(tableFaculties).As("f")).
			Select(goqu.I("f."+colName)).
			Join(goqu.T(tableLinks).As("bf"), goqu.On(goqu.I("bf."+colFacultyID).Eq(goqu.I("f."+colID)))).
			Where(goqu.I("bf."+colBookID).Eq(bookID)).
			Order(goqu.I("f."+colName).Asc()))
		if err != nil {
			return fmt.Errorf("failed to list faculty names: %w", err)
		}
		// byte order, whatever the database collation
		slices.Sort(names)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &FacultyUsage{
		BookID:    bookID,
		BranchID:  branchID,
		Count:     len(names),
		Faculties: names,
	}, nil
}
