package api

import (
	"context"
	"net/http"
)

const routeSchools = "/schools"

func (c *Client) ListSchools(ctx context.Context, page, perPage int) (*Response[[]School], error) {
	var out Response[[]School]
	if err := c.do(ctx, http.MethodGet, routeSchools, pageQuery(page, perPage), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSchool(ctx context.Context, schoolID string) (*Response[School], error) {
	var out Response[School]
	if err := c.do(ctx, http.MethodGet, routeSchools+"/"+escape(schoolID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSchool validates the payload before sending it.
func (c *Client) CreateSchool(ctx context.Context, school NewSchool) (*Response[School], error) {
	if err := c.validateInput("CreateSchool", school); err != nil {
		return nil, err
	}
	var out Response[School]
	if err := c.do(ctx, http.MethodPost, routeSchools, nil, school, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSchool sends a partial update; only the given fields change.
func (c *Client) UpdateSchool(ctx context.Context, schoolID string, fields map[string]any) (*Response[School], error) {
	var out Response[School]
	if err := c.do(ctx, http.MethodPut, routeSchools+"/"+escape(schoolID), nil, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSchool(ctx context.Context, schoolID string) (*Response[any], error) {
	var out Response[any]
	if err := c.do(ctx, http.MethodDelete, routeSchools+"/"+escape(schoolID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
