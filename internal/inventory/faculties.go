package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel/attribute"

	"libraryinfo/internal/store"
)

var facultyColumns = []interface{}{colID, colName}

func getFaculty(ctx context.Context, tx *store.Tx, id int64) (*Faculty, error) {
	faculty := &Faculty{}
	err := tx.Get(ctx, faculty, tx.From(tableFaculties).Select(facultyColumns...).Where(goqu.C(colID).Eq(id)))
	if errors.Is(err, store.ErrNoRows) {
		return nil, notFound(msgFacultyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get faculty: %w", err)
	}
	return faculty, nil
}

// ListFaculties returns all faculties ordered by id.
func (s *service) ListFaculties(ctx context.Context) (faculties []*Faculty, err error) {
	ctx, end := s.start(ctx, "list_faculties")
	defer end(&err)

	faculties = make([]*Faculty, 0)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.Select(ctx, &faculties, tx.From(tableFaculties).Select(facultyColumns...).Order(goqu.C(colID).Asc()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list faculties: %w", err)
	}
	return faculties, nil
}

// GetFaculty retrieves a faculty by its ID.
func (s *service) GetFaculty(ctx context.Context, id int64) (faculty *Faculty, err error) {
	ctx, end := s.start(ctx, "get_faculty", attribute.Int64("faculty.id", id))
	defer end(&err)

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		faculty, err = getFaculty(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return faculty, nil
}

// CreateFaculty inserts a new faculty. Names are unique.
func (s *service) CreateFaculty(ctx context.Context, in FacultyInput) (faculty *Faculty, err error) {
	ctx, end := s.start(ctx, "create_faculty")
	defer end(&err)

	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.InsertReturningID(ctx, tx.Insert(tableFaculties).Rows(goqu.Record{colName: in.Name}))
		if err != nil {
			return s.translate(ctx, err, msgDuplicateFaculty)
		}
		faculty = &Faculty{ID: id, Name: in.Name}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return faculty, nil
}

// UpdateFaculty renames a faculty. The new name must still be unique.
func (s *service) UpdateFaculty(ctx context.Context, id int64, patch FacultyPatch) (faculty *Faculty, err error) {
	ctx, end := s.start(ctx, "update_faculty", attribute.Int64("faculty.id", id))
	defer end(&err)

	if err := patch.validate(s.validate); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := getFaculty(ctx, tx, id)
		if err != nil {
			return err
		}

		patch.Apply(current)

		_, err = tx.Exec(ctx, tx.Update(tableFaculties).
			Set(goqu.Record{colName: current.Name}).
			Where(goqu.C(colID).Eq(id)))
		if err != nil {
			return s.translate(ctx, err, msgDuplicateFaculty)
		}
		faculty = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return faculty, nil
}

// DeleteFaculty removes a faculty that no book is linked to.
func (s *service) DeleteFaculty(ctx context.Context, id int64) (err error) {
	ctx, end := s.start(ctx, "delete_faculty", attribute.Int64("faculty.id", id))
	defer end(&err)

	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		var links int64
		err := tx.Get(ctx, &links, tx.From(tableLinks).
			Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C(colFacultyID).Eq(id)))
		if err != nil {
			return fmt.Errorf("failed to count faculty links: %w", err)
		}
		if links > 0 {
			return conflict(msgFacultyLinked)
		}

		deleted, err := tx.Exec(ctx, tx.Delete(tableFaculties).Where(goqu.C(colID).Eq(id)))
		if err != nil {
			return s.translate(ctx, err, msgFacultyLinked)
		}
		if deleted == 0 {
			return notFound(msgFacultyNotFound)
		}
		return nil
	})
}
