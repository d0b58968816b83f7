package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	"github.com/sh1v-ansh/cs426-final/pkg/config"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
)

// CatalogClient reads course metadata from the course catalog service.
type CatalogClient struct {
	baseURL string
	http    *http.Client
}

// NewCatalogClient constructs a catalog client from collaborator config.
func NewCatalogClient(cfg config.CollaboratorConfig) *CatalogClient {
	return &CatalogClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// GetCourse fetches a course snapshot by id. A missing course maps to
// ErrNotFound; transport faults and 5xx responses map to ErrUnavailable so
// the coordinator can tell a permanent miss from a retryable outage.
func (c *CatalogClient) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/courses/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build catalog request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "course catalog unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, appErrors.Clone(appErrors.ErrUnavailable, fmt.Sprintf("course catalog returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, appErrors.New(appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("unexpected catalog status %d", resp.StatusCode))
	}

	var course models.Course
	if err := json.NewDecoder(resp.Body).Decode(&course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode course payload")
	}

	return &course, nil
}
