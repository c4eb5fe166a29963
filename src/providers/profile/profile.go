// Package profile serves a user's personality profile to the
// personality_profile tool.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// NotFoundText is returned to the model when no profile exists.
const NotFoundText = "No personality profile found."

var ErrNotFound = errors.New("personality profile not found")

type Metric struct {
	Metric         string   `json:"metric" bson:"metric"`
	Description    string   `json:"description" bson:"description"`
	Score          int      `json:"score" bson:"score"`
	Percentile     *int     `json:"percentile,omitempty" bson:"percentile,omitempty"`
	Interpretation string   `json:"interpretation" bson:"interpretation"`
	Implications   []string `json:"implications,omitempty" bson:"implications,omitempty"`
}

type Profile struct {
	OwnerID   string    `json:"for_user_uid,omitempty" bson:"_id"`
	Metrics   []Metric  `json:"metrics" bson:"metrics"`
	Source    string    `json:"source,omitempty" bson:"source,omitempty"`
	CreatedAt time.Time `json:"datetime_created,omitempty" bson:"datetime_created"`
}

// Store looks profiles up by owner.
type Store interface {
	Get(ctx context.Context, ownerID string) (*Profile, error)
}

// Source adapts a Store to the tool layer.
type Source struct {
	Store Store
}

func NewSource(store Store) *Source {
	return &Source{Store: store}
}

// Profile renders the owner's metrics as JSON, or NotFoundText.
func (s *Source) Profile(ctx context.Context, ownerID string) (string, error) {
	p, err := s.Store.Get(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return NotFoundText, nil
	}
	if err != nil {
		return "", err
	}
	if len(p.Metrics) == 0 {
		return NotFoundText, nil
	}
	raw, err := json.MarshalIndent(p.Metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ReadFile parses a profile document. The file must carry a metrics list.
func ReadFile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Metrics *[]Metric `json:"metrics"`
		Source  string    `json:"source"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if doc.Metrics == nil {
		return nil, fmt.Errorf("profile %s: missing metrics", path)
	}
	return &Profile{Metrics: *doc.Metrics, Source: doc.Source}, nil
}

// FileStore serves one profile document to every owner. A missing file
// means no profile.
type FileStore struct {
	Path string
}

func (f FileStore) Get(_ context.Context, ownerID string) (*Profile, error) {
	p, err := ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.OwnerID = ownerID
	return p, nil
}
