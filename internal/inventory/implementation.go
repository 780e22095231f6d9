// internal/inventory/implementation.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"libraryinfo/internal/store"
)

const (
	tableBooks     = "books"
	tableBranches  = "branches"
	tableFaculties = "faculties"
	tableStock     = "book_stock"
	tableLinks     = "book_faculty"

	colID            = "id"
	colTitle         = "title"
	colAuthors       = "authors"
	colPublisher     = "publisher"
	colYear          = "year"
	colPages         = "pages"
	colIllustrations = "illustrations"
	colPrice         = "price"
	colName          = "name"
	colAddress       = "address"
	colBookID        = "book_id"
	colBranchID      = "branch_id"
	colFacultyID     = "faculty_id"
	colQuantity      = "quantity"

	priceScale = 2
)

var bookColumns = []interface{}{
	colID, colTitle, colAuthors, colPublisher, colYear, colPages, colIllustrations, colPrice,
}

// service implements the Service interface.
type service struct {
	store      *store.Store
	validate   *validator.Validate
	logger     *slog.Logger
	tracer     trace.Tracer
	operations metric.Int64Counter
	conflicts  metric.Int64Counter

	// afterGuard runs inside delete transactions once the guard has passed.
	afterGuard func(ctx context.Context, tx *store.Tx) error
}

// ServiceOption configures the inventory service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records the operation counters on mp instead of the
// global provider.
func WithMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(o *serviceOptions) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// NewService creates a new inventory service backed by st.
func NewService(st *store.Store, logger *slog.Logger, opts ...ServiceOption) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	options := serviceOptions{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&options)
	}

	meter := options.meterProvider.Meter("libraryinfo/inventory")
	operations, err := meter.Int64Counter("inventory.operations",
		metric.WithDescription("Inventory operations by name and outcome"))
	if err != nil {
		logger.Warn("failed to create operations counter", slog.Any("error", err))
		operations = noop.Int64Counter{}
	}
	conflicts, err := meter.Int64Counter("inventory.conflicts",
		metric.WithDescription("Operations rejected with a conflict"))
	if err != nil {
		logger.Warn("failed to create conflicts counter", slog.Any("error", err))
		conflicts = noop.Int64Counter{}
	}

	return &service{
		store:      st,
		validate:   newValidator(),
		logger:     logger,
		tracer:     otel.Tracer("libraryinfo/inventory"),
		operations: operations,
		conflicts:  conflicts,
	}
}

// start opens a span for op. The returned func must be deferred with the
// address of the named error result.
func (s *service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "inventory."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		defer span.End()

		outcome := outcomeOf(*errp)
		s.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))

		switch outcome {
		case "ok":
			return
		case "conflict":
			s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
		case "error":
			span.RecordError(*errp)
			span.SetStatus(codes.Error, op)
			s.logger.ErrorContext(ctx, "inventory operation failed",
				slog.String("operation", op),
				slog.Any("error", *errp),
			)
		}
		span.SetAttributes(attribute.String("outcome", outcome))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// translate turns a constraint violation into a conflict carrying detail.
func (s *service) translate(ctx context.Context, err error, detail string) error {
	if err == nil {
		return nil
	}
	if store.IsIntegrity(err) {
		s.logger.InfoContext(ctx, "constraint violation", slog.String("detail", detail), slog.Any("cause", err))
		return conflict(detail)
	}
	return err
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullablePrice(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(priceScale)
}

func bookRecord(b *Book) goqu.Record {
	return goqu.Record{
		colTitle:         b.Title,
		colAuthors:       b.Authors,
		colPublisher:     b.Publisher,
		colYear:          nullableInt(b.Year),
		colPages:         nullableInt(b.Pages),
		colIllustrations: b.Illustrations,
		colPrice:         nullablePrice(b.Price),
	}
}

func getBook(ctx context.Context, tx *store.Tx, id int64) (*Book, error) {
	book := &Book{}
	err := tx.Get(ctx, book, tx.From(tableBooks).Select(bookColumns...).Where(goqu.C(colID).Eq(id)))
	if errors.Is(err, store.ErrNoRows) {
		return nil, notFound(msgBookNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks returns all books ordered by id.
func (s *service) ListBooks(ctx context.Context) (books []*Book, err error) {
	ctx, end := s.start(ctx, "list_books")
	defer end(&err)

	books = make([]*Book, 0)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.Select(ctx, &books, tx.From(tableBooks).Select(bookColumns...).Order(goqu.C(colID).Asc()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id int64) (book *Book, err error) {
	ctx, end := s.start(ctx, "get_book", attribute.Int64("book.id", id))
	defer end(&err)

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		book, err = getBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// CreateBook inserts a new book. A duplicate identity is a conflict.
func (s *service) CreateBook(ctx context.Context, in BookInput) (book *Book, err error) {
	ctx, end := s.start(ctx, "create_book")
	defer end(&err)

	if err := in.validate(s.validate); err != nil {
		return nil, err
	}

	draft := &Book{
		Title:         in.Title,
		Authors:       in.Authors,
		Publisher:     in.Publisher,
		Year:          in.Year,
		Pages:         in.Pages,
		Illustrations: in.Illustrations,
		Price:         in.Price,
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.InsertReturningID(ctx, tx.Insert(tableBooks).Rows(bookRecord(draft)))
		if err != nil {
			return s.translate(ctx, err, msgDuplicateBook)
		}
		book, err = getBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateBook merges the fields present in patch onto the stored book.
func (s *service) UpdateBook(ctx context.Context, id int64, patch BookPatch) (book *Book, err error) {
	ctx, end := s.start(ctx, "update_book", attribute.Int64("book.id", id))
	defer end(&err)

	if err := patch.validate(s.validate); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := getBook(ctx, tx, id)
		if err != nil {
			return err
		}

		patch.Apply(current)

		_, err = tx.Exec(ctx, tx.Update(tableBooks).Set(bookRecord(current)).Where(goqu.C(colID).Eq(id)))
		if err != nil {
			return s.translate(ctx, err, msgBookUpdateConflict)
		}

		book, err = getBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book whose total stock is zero, together with its
// zero-quantity stock rows and faculty links.
func (s *service) DeleteBook(ctx context.Context, id int64) (err error) {
	ctx, end := s.start(ctx, "delete_book", attribute.Int64("book.id", id))
	defer end(&err)

	return s.store.WithTx(ctx, func(tx *store.Tx) error {
		var total int64
		err := tx.Get(ctx, &total, tx.From(tableStock).
			Select(goqu.COALESCE(goqu.SUM(colQuantity), 0)).
			Where(goqu.C(colBookID).Eq(id)))
		if err != nil {
			return fmt.Errorf("failed to sum stock: %w", err)
		}
		if total > 0 {
			return conflict(msgBookStocked)
		}
		if err := s.runAfterGuard(ctx, tx); err != nil {
			return err
		}

		if _, err := getBook(ctx, tx, id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, tx.Delete(tableStock).Where(
			goqu.C(colBookID).Eq(id),
			goqu.C(colQuantity).Eq(0),
		)); err != nil {
			return fmt.Errorf("failed to clear stock rows: %w", err)
		}
		if _, err := tx.Exec(ctx, tx.Delete(tableLinks).Where(goqu.C(colBookID).Eq(id))); err != nil {
			return fmt.Errorf("failed to clear faculty links: %w", err)
		}

		deleted, err := tx.Exec(ctx, tx.Delete(tableBooks).Where(goqu.C(colID).Eq(id)))
		if err != nil {
			// a positive stock row written since the guard trips the restrict key
			return s.translate(ctx, err, msgBookStocked)
		}
		if deleted == 0 {
			return notFound(msgBookNotFound)
		}
		return nil
	})
}

func (s *service) runAfterGuard(ctx context.Context, tx *store.Tx) error {
	if s.afterGuard == nil {
		return nil
	}
	return s.afterGuard(ctx, tx)
}

// ResetSchema drops and re-creates every inventory table.
func (s *service) ResetSchema(ctx context.Context) (err error) {
	ctx, end := s.start(ctx, "reset_schema")
	defer end(&err)

	s.logger.WarnContext(ctx, "resetting inventory schema")
	return s.store.Reset(ctx)
}
