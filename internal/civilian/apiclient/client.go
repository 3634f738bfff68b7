// Package apiclient is the HTTP client for the rescue gateway.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rescue-link/internal/civilian/controller"
	"rescue-link/internal/civilian/session"
)

type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
}

func New(baseURL, token string) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		token:   token,
	}
}

type createRequestBody struct {
	SubcategoryID int64   `json:"emergencySubCategoryId"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Address       *string `json:"address,omitempty"`
	Description   *string `json:"description,omitempty"`
	ProofImage    *string `json:"proofImage,omitempty"`
}

type requestInfo struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type mutationResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Request *requestInfo `json:"request"`
}

type activeRequestEntry struct {
	ID int64 `json:"id"`
}

type vehiclePayload struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	PlateNumber string `json:"plateNumber"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
}

type positionPayload struct {
	VehicleID  int64           `json:"vehicleId"`
	Active     bool            `json:"active"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	LastActive string          `json:"lastActive"`
	Vehicle    *vehiclePayload `json:"vehicle"`
}

type assignmentPayload struct {
	ID        int64           `json:"id"`
	VehicleID int64           `json:"vehicleId"`
	Timestamp string          `json:"timestamp"`
	Vehicle   *vehiclePayload `json:"vehicle"`
}

type detailResponse struct {
	ID                 int64               `json:"id"`
	Status             string              `json:"status"`
	CreatedAt          string              `json:"createdAt"`
	Latitude           float64             `json:"latitude"`
	Longitude          float64             `json:"longitude"`
	Assignments        []assignmentPayload `json:"assignments"`
	LastKnownPositions []positionPayload   `json:"lastKnownPositions"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// apiError surfaces the server's own message when it sent one.
func apiError(status int, raw []byte) error {
	var decoded struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if decoded.Message != "" {
			return fmt.Errorf("%s", decoded.Message)
		}
		if decoded.Error != "" {
			return fmt.Errorf("%s", decoded.Error)
		}
	}
	return fmt.Errorf("gateway returned %d", status)
}

func (c *Client) CreateRequest(ctx context.Context, input controller.CreateInput) (controller.Created, error) {
	body := createRequestBody{
		SubcategoryID: input.SubcategoryID,
		Latitude:      input.Latitude,
		Longitude:     input.Longitude,
		Address:       input.Address,
		Description:   input.Description,
		ProofImage:    input.ProofImage,
	}

	var decoded mutationResponse
	if err := c.do(ctx, http.MethodPost, "/requests", body, &decoded); err != nil {
		return controller.Created{}, err
	}
	if !decoded.Success || decoded.Request == nil {
		if decoded.Message != "" {
			return controller.Created{}, fmt.Errorf("%s", decoded.Message)
		}
		return controller.Created{}, fmt.Errorf("request creation rejected")
	}

	createdAt, _ := time.Parse(time.RFC3339, decoded.Request.CreatedAt)
	return controller.Created{
		ID:        decoded.Request.ID,
		Status:    decoded.Request.Status,
		CreatedAt: createdAt,
	}, nil
}

func (c *Client) CancelRequest(ctx context.Context, id int64) error {
	body := map[string]string{"status": "Cancelled"}

	var decoded mutationResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%d/cancel", id), body, &decoded); err != nil {
		return err
	}
	if !decoded.Success {
		if decoded.Message != "" {
			return fmt.Errorf("%s", decoded.Message)
		}
		return fmt.Errorf("cancellation rejected")
	}
	return nil
}

func (c *Client) ActiveRequestIDs(ctx context.Context) ([]int64, error) {
	var entries []activeRequestEntry
	if err := c.do(ctx, http.MethodGet, "/requests/active", nil, &entries); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (c *Client) RequestDetail(ctx context.Context, id int64) (session.Recovered, error) {
	var decoded detailResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/requests/%d", id), nil, &decoded); err != nil {
		return session.Recovered{}, err
	}

	createdAt, _ := time.Parse(time.RFC3339, decoded.CreatedAt)
	rec := session.Recovered{
		RequestID: decoded.ID,
		Status:    decoded.Status,
		CreatedAt: createdAt,
		Latitude:  decoded.Latitude,
		Longitude: decoded.Longitude,
	}

	if len(decoded.Assignments) > 0 {
		a := decoded.Assignments[0]
		rec.Assignment = &session.AssignmentInfo{
			ID:        a.ID,
			VehicleID: a.VehicleID,
			Vehicle:   toVehicleInfo(a.Vehicle),
		}

		for _, pos := range decoded.LastKnownPositions {
			if pos.VehicleID != a.VehicleID {
				continue
			}
			lastActive, _ := time.Parse(time.RFC3339, pos.LastActive)
			rec.LastPosition = &session.PositionEvent{
				VehicleID:  pos.VehicleID,
				Active:     pos.Active,
				Latitude:   pos.Latitude,
				Longitude:  pos.Longitude,
				LastActive: lastActive,
				Vehicle:    toVehicleInfo(pos.Vehicle),
			}
			break
		}
	}
	return rec, nil
}

func toVehicleInfo(v *vehiclePayload) *session.VehicleInfo {
	if v == nil {
		return nil
	}
	return &session.VehicleInfo{
		ID:          v.ID,
		Code:        v.Code,
		PlateNumber: v.PlateNumber,
		Category:    v.Category,
		Icon:        v.Icon,
	}
}
