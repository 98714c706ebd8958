package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/five82/recipunto/internal/box"
)

const boxesPath = "/rest/v1/recycling_boxes"

// CreateInput is a new box. CurrentAmount defaults to 0.
type CreateInput struct {
	Lat           float64
	Lng           float64
	CurrentAmount *int
	Capacity      int
	IsFull        bool
}

// UpdateInput changes some columns of a box; nil fields are left alone.
type UpdateInput struct {
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
	CurrentAmount *int     `json:"current_amount,omitempty"`
	Capacity      *int     `json:"capacity,omitempty"`
	IsFull        *bool    `json:"is_full,omitempty"`
}

// StatusInput is the collaborative status update any signed-in user may
// make. A nil IsFull is not sent.
type StatusInput struct {
	CurrentAmount int   `json:"current_amount"`
	IsFull        *bool `json:"is_full,omitempty"`
}

// Area is a latitude/longitude bounding box.
type Area struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

type createBody struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	CurrentAmount int     `json:"current_amount"`
	Capacity      int     `json:"capacity"`
	IsFull        bool    `json:"is_full"`
	CreatedBy     string  `json:"created_by"`
}

// FetchBoxes lists every box, most recently updated first.
func (c *Client) FetchBoxes(ctx context.Context) ([]box.Record, error) {
	return c.listBoxes(ctx, nil)
}

// FullBoxes lists boxes marked full.
func (c *Client) FullBoxes(ctx context.Context) ([]box.Record, error) {
	return c.listBoxes(ctx, url.Values{"is_full": {"eq.true"}})
}

// AvailableBoxes lists boxes not marked full.
func (c *Client) AvailableBoxes(ctx context.Context) ([]box.Record, error) {
	return c.listBoxes(ctx, url.Values{"is_full": {"eq.false"}})
}

// BoxesByCreator lists boxes created by one user.
func (c *Client) BoxesByCreator(ctx context.Context, creatorID string) ([]box.Record, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, fmt.Errorf("creator id required")
	}
	return c.listBoxes(ctx, url.Values{"created_by": {"eq." + creatorID}})
}

// BoxesInArea lists boxes inside a bounding box, edges included.
func (c *Client) BoxesInArea(ctx context.Context, a Area) ([]box.Record, error) {
	q := url.Values{}
	q.Add("lat", "gte."+formatFloat(a.MinLat))
	q.Add("lat", "lte."+formatFloat(a.MaxLat))
	q.Add("lng", "gte."+formatFloat(a.MinLng))
	q.Add("lng", "lte."+formatFloat(a.MaxLng))
	return c.listBoxes(ctx, q)
}

// GetBox returns one box, or nil when it does not exist.
func (c *Client) GetBox(ctx context.Context, id string) (*box.Record, error) {
	q := url.Values{"select": {"*"}, "id": {"eq." + id}}
	var rec box.Record
	err := c.do(ctx, request{method: http.MethodGet, path: boxesPath, query: q, single: true}, &rec)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get box %s: %w", id, err)
	}
	return &rec, nil
}

// CreateBox inserts a box owned by the signed-in user.
func (c *Client) CreateBox(ctx context.Context, in CreateInput) (box.Record, error) {
	userID := c.UserID()
	if userID == "" {
		return box.Record{}, ErrUnauthenticated
	}
	body := createBody{
		Lat:       in.Lat,
		Lng:       in.Lng,
		Capacity:  in.Capacity,
		IsFull:    in.IsFull,
		CreatedBy: userID,
	}
	if in.CurrentAmount != nil {
		body.CurrentAmount = *in.CurrentAmount
	}
	var rec box.Record
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      boxesPath,
		query:     url.Values{"select": {"*"}},
		body:      body,
		single:    true,
		represent: true,
	}, &rec)
	if err != nil {
		return box.Record{}, fmt.Errorf("create box: %w", err)
	}
	return rec, nil
}

// UpdateBox changes a box the signed-in user owns.
func (c *Client) UpdateBox(ctx context.Context, id string, in UpdateInput) (box.Record, error) {
	rec, err := c.patchBox(ctx, id, in)
	if err != nil {
		return box.Record{}, fmt.Errorf("update box %s: %w", id, err)
	}
	return rec, nil
}

// UpdateBoxStatus sets the fill level of any box.
func (c *Client) UpdateBoxStatus(ctx context.Context, id string, in StatusInput) (box.Record, error) {
	rec, err := c.patchBox(ctx, id, in)
	if err != nil {
		return box.Record{}, fmt.Errorf("update box %s status: %w", id, err)
	}
	return rec, nil
}

// DeleteBox removes a box the signed-in user owns.
func (c *Client) DeleteBox(ctx context.Context, id string) error {
	err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   boxesPath,
		query:  url.Values{"id": {"eq." + id}},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete box %s: %w", id, err)
	}
	return nil
}

func (c *Client) patchBox(ctx context.Context, id string, body any) (box.Record, error) {
	var rec box.Record
	err := c.do(ctx, request{
		method:    http.MethodPatch,
		path:      boxesPath,
		query:     url.Values{"select": {"*"}, "id": {"eq." + id}},
		body:      body,
		single:    true,
		represent: true,
	}, &rec)
	return rec, err
}

func (c *Client) listBoxes(ctx context.Context, filter url.Values) ([]box.Record, error) {
	q := url.Values{"select": {"*"}, "order": {"updated_at.desc"}}
	for k, vs := range filter {
		q[k] = append(q[k], vs...)
	}
	var recs []box.Record
	if err := c.do(ctx, request{method: http.MethodGet, path: boxesPath, query: q}, &recs); err != nil {
		return nil, fmt.Errorf("fetch boxes: %w", err)
	}
	if recs == nil {
		recs = []box.Record{}
	}
	return recs, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
