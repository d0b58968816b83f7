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

// RosterClient reads student records from the student roster service.
type RosterClient struct {
	baseURL string
	http    *http.Client
}

// NewRosterClient constructs a roster client from collaborator config.
func NewRosterClient(cfg config.CollaboratorConfig) *RosterClient {
	return &RosterClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// GetStudent fetches a student snapshot by id, with the same error taxonomy
// as the catalog client.
func (c *RosterClient) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/students/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build roster request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "student roster unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, appErrors.Clone(appErrors.ErrUnavailable, fmt.Sprintf("student roster returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, appErrors.New(appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("unexpected roster status %d", resp.StatusCode))
	}

	var student models.Student
	if err := json.NewDecoder(resp.Body).Decode(&student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode student payload")
	}

	return &student, nil
}
