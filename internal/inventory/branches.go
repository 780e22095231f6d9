package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel/attribute"

	"libraryinfo/internal/store"
)

var branchColumns = []interface{}{colID, colName, colAddress}

func getBranch(ctx context.Context, tx *store.Tx, id int64) (*Branch, error) {
	branch := &Branch{}
	err := tx.Get(ctx, branch, tx.From(tableBranches).Select(branchColumns...).Where(goqu.C(colID).Eq(id)))
	if errors.Is(err, store.ErrNoRows) {
		return nil, notFound(msgBranchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}
	return branch, nil
}

// ListBranches returns all branches ordered by id.
func (s *service) ListBranches(ctx context.Context) (branches []*Branch, err error) {
	ctx, end := s.start(ctx, "list_branches")
	defer end(&err)

	branches = make([]*Branch, 0)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.Select(ctx, &branches, tx.From(tableBranches).Select(branchColumns...).Order(goqu.C(colID).Asc()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

// GetBranch retrieves a branch by its ID.
func (s *service) GetBranch(ctx context.Context, id int64) (branch *Branch, err error) {
	ctx, end := s.start(ctx, "get_branch", attribute.Int64("branch.id", id))
	defer end(&err)

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		branch, err = getBranch(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// CreateBranch inserts a new branch.
func (s *service) CreateBranch(ctx context.Context, in BranchInput) (branch *Branch, err error) {
	ctx, end := s.start(ctx, "create_branch")
	defer end(&err)

	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.InsertReturningID(ctx, tx.Insert(tableBranches).Rows(goqu.Record{
			colName:    in.Name,
			colAddress: in.Address,
		}))
		if err != nil {
			return s.translate(ctx, err, msgBranchCreateFailed)
		}
		branch = &Branch{ID: id, Name: in.Name, Address: in.Address}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// UpdateBranch merges the fields present in patch onto the stored branch.
func (s *service) UpdateBranch(ctx context.Context, id int64, patch BranchPatch) (branch *Branch, err error) {
	ctx, end := s.start(ctx, "update_branch", attribute.Int64("branch.id", id))
	defer end(&err)

	if err := patch.validate(s.validate); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := getBranch(ctx, tx, id)
		if err != nil {
			return err
		}

		patch.Apply(current)

		_, err = tx.Exec(ctx, tx.Update(tableBranches).Set(goqu.Record{
			colName:    current.Name,
			colAddress: current.Address,
		}).Where(goqu.C(colID).Eq(id)))
		if err != nil {
			return s.translate(ctx, err, msgBranchUpdateFailed)
		}
		branch = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// DeleteBranch removes a branch that holds no copies, together with its
// zero-quantity stock rows.
func (s *service) DeleteBranch(ctx context.Context, id int64) (err error) {
	ctx, end := s.start(ctx, "delete_branch", attribute.Int64("branch.id", id))
	defer end(&err)

	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		var stocked int64
		err := tx.Get(ctx, &stocked, tx.From(tableStock).
			Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C(colBranchID).Eq(id), goqu.C(colQuantity).Gt(0)))
		if err != nil {
			return fmt.Errorf("failed to count stock rows: %w", err)
		}
		if stocked > 0 {
			return conflict(msgBranchStocked)
		}
		if err := s.runAfterGuard(ctx, tx); err != nil {
			return err
		}

		if _, err := getBranch(ctx, tx, id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, tx.Delete(tableStock).Where(
			goqu.C(colBranchID).Eq(id),
			goqu.C(colQuantity).Eq(0),
		)); err != nil {
			return fmt.Errorf("failed to clear stock rows: %w", err)
		}

		deleted, err := tx.Exec(ctx, tx.Delete(tableBranches).Where(goqu.C(colID).Eq(id)))
		if err != nil {
			return s.translate(ctx, err, msgBranchStocked)
		}
		if deleted == 0 {
			return notFound(msgBranchNotFound)
		}
		return nil
	})
}
