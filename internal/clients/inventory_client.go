// internal/clients/inventory_client.go
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"libraryinfo/internal/inventory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx response. It unwraps to the matching inventory
// sentinel so callers can use errors.Is the same way as with the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inventory api: %d: %s", e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return inventory.ErrNotFound
	case http.StatusConflict:
		return inventory.ErrConflict
	case http.StatusUnprocessableEntity:
		return inventory.ErrValidation
	}
	return nil
}

type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
	adminToken string
}

type ClientOption func(*InventoryClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(ic *InventoryClient) {
		ic.httpClient = c
	}
}

// WithAdminToken sends token as a bearer credential. Only the /admin routes
// check it.
func WithAdminToken(token string) ClientOption {
	return func(ic *InventoryClient) {
		ic.adminToken = token
	}
}

func NewInventoryClient(baseURL string, opts ...ClientOption) *InventoryClient {
	c := &InventoryClient{baseURL: baseURL, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InventoryClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/", nil, nil)
}

func (c *InventoryClient) ListBooks(ctx context.Context) ([]*inventory.Book, error) {
	var books []*inventory.Book
	if err := c.do(ctx, http.MethodGet, "/books", nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *InventoryClient) GetBook(ctx context.Context, id int64) (*inventory.Book, error) {
	var book inventory.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/books/%d", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *InventoryClient) CreateBook(ctx context.Context, in inventory.BookInput) (*inventory.Book, error) {
	var book inventory.Book
	if err := c.do(ctx, http.MethodPost, "/books", in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *InventoryClient) UpdateBook(ctx context.Context, id int64, patch inventory.BookPatch) (*inventory.Book, error) {
	var book inventory.Book
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/books/%d", id), patch, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *InventoryClient) DeleteBook(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/books/%d", id), nil, nil)
}

func (c *InventoryClient) CreateBranch(ctx context.Context, in inventory.BranchInput) (*inventory.Branch, error) {
	var branch inventory.Branch
	if err := c.do(ctx, http.MethodPost, "/branches", in, &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (c *InventoryClient) DeleteBranch(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/branches/%d", id), nil, nil)
}

func (c *InventoryClient) CreateFaculty(ctx context.Context, in inventory.FacultyInput) (*inventory.Faculty, error) {
	var faculty inventory.Faculty
	if err := c.do(ctx, http.MethodPost, "/faculties", in, &faculty); err != nil {
		return nil, err
	}
	return &faculty, nil
}

func (c *InventoryClient) DeleteFaculty(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/faculties/%d", id), nil, nil)
}

func (c *InventoryClient) UpsertStock(ctx context.Context, bookID, branchID int64, quantity int) (*inventory.BookStock, error) {
	in := inventory.StockInput{BookID: &bookID, BranchID: &branchID, Quantity: &quantity}
	var stock inventory.BookStock
	if err := c.do(ctx, http.MethodPut, "/admin/stock", in, &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

func (c *InventoryClient) LinkBookFaculty(ctx context.Context, bookID, facultyID int64) error {
	in := inventory.LinkInput{BookID: &bookID, FacultyID: &facultyID}
	return c.do(ctx, http.MethodPost, "/admin/book-faculty", in, nil)
}

func (c *InventoryClient) UnlinkBookFaculty(ctx context.Context, bookID, facultyID int64) error {
	q := url.Values{}
	q.Set("book_id", strconv.FormatInt(bookID, 10))
	q.Set("faculty_id", strconv.FormatInt(facultyID, 10))
	return c.do(ctx, http.MethodDelete, "/admin/book-faculty?"+q.Encode(), nil, nil)
}

func (c *InventoryClient) Quantity(ctx context.Context, branchID, bookID int64) (*inventory.QuantityReport, error) {
	var report inventory.QuantityReport
	path := fmt.Sprintf("/analytics/branches/%d/books/%d/quantity", branchID, bookID)
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *InventoryClient) FacultyUsage(ctx context.Context, branchID, bookID int64) (*inventory.FacultyUsage, error) {
	var usage inventory.FacultyUsage
	path := fmt.Sprintf("/analytics/branches/%d/books/%d/faculties", branchID, bookID)
	if err := c.do(ctx, http.MethodGet, path, nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

func (c *InventoryClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &APIError{StatusCode: resp.StatusCode, Detail: payload.Detail}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
