package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type (
	Category string

	// CreateRequest is the body POSTed to /tasks/create
	CreateRequest struct {
		UserID     string   `json:"user_id"`
		Category   Category `json:"category"`
		Lat        float64  `json:"lat"`
		Lng        float64  `json:"lng"`
		QuickMatch bool     `json:"quick_match"`
	}

	// CreateResponse carries the assigned id; Raw keeps the full body
	CreateResponse struct {
		TaskID string
		Raw    json.RawMessage
	}

	// Form is the operator-editable input, coordinates still as typed
	Form struct {
		UserID   string
		Category string
		Lat      string
		Lng      string
	}
)

const (
	Plumbing   Category = "plumbing"
	Electrical Category = "electrical"
	Moving     Category = "moving"
	Cleaning   Category = "cleaning"
	Furniture  Category = "furniture"
)

var Categories = []Category{Plumbing, Electrical, Moving, Cleaning, Furniture}

var (
	ErrUnknownCategory   = errors.New("unknown category")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrEmptyUserID       = errors.New("empty user id")
)

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// ParseCoordinate reads a typed coordinate and checks it against limit
// (90 for latitude, 180 for longitude)
func ParseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidCoordinate, s)
	}
	return v, nil
}

// Request coerces the form into a quick-match creation request
func (f Form) Request() (CreateRequest, error) {
	userID := strings.TrimSpace(f.UserID)
	if userID == "" {
		return CreateRequest{}, ErrEmptyUserID
	}
	cat, err := ParseCategory(f.Category)
	if err != nil {
		return CreateRequest{}, err
	}
	lat, err := ParseCoordinate(f.Lat, 90)
	if err != nil {
		return CreateRequest{}, fmt.Errorf("lat: %w", err)
	}
	lng, err := ParseCoordinate(f.Lng, 180)
	if err != nil {
		return CreateRequest{}, fmt.Errorf("lng: %w", err)
	}
	return CreateRequest{
		UserID:     userID,
		Category:   cat,
		Lat:        lat,
		Lng:        lng,
		QuickMatch: true,
	}, nil
}

func TaskTopic(id string) string {
	return "task:" + id
}

func UserTopic(id string) string {
	if id == "" {
		return ""
	}
	return "user:" + id
}

func TaskerTopic(id string) string {
	return "tasker:" + id
}
