package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// DatabaseClient reads and writes the profiles table through PostgREST.
type DatabaseClient struct {
	client *Client
}

// GetProfile fetches a profile by auth user ID.
func (d *DatabaseClient) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "*")

	respBody, statusCode, err := d.client.request(ctx, "GET", d.client.restURL+"/profiles?"+q.Encode(), nil, map[string]string{
		"Accept": "application/vnd.pgrst.object+json",
	})
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var profile Profile
	if err := json.Unmarshal(respBody, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &profile, nil
}

// UpsertProfile creates or updates a profile row. Uses the service key so the
// operator can maintain profiles regardless of row-level security.
func (d *DatabaseClient) UpsertProfile(ctx context.Context, profile Profile) (*Profile, error) {
	if profile.ID == "" {
		return nil, fmt.Errorf("profile id is required")
	}
	body, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	respBody, statusCode, err := d.client.requestWithServiceKey(ctx, "POST", d.client.restURL+"/profiles?on_conflict=id", body, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=representation",
	})
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var rows []Profile
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert returned no rows")
	}
	return &rows[0], nil
}

// FindProfileByWallet looks up a profile by its linked wallet address.
func (d *DatabaseClient) FindProfileByWallet(ctx context.Context, wallet string) (*Profile, error) {
	q := url.Values{}
	q.Set("wallet", "eq."+wallet)
	q.Set("select", "*")
	q.Set("limit", "1")

	respBody, statusCode, err := d.client.request(ctx, "GET", d.client.restURL+"/profiles?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var rows []Profile
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal profiles: %w", err)
	}
	if len(rows) == 0 {
		return nil, &Error{Code: "not_found", Message: "no profile for wallet", StatusCode: 404}
	}
	return &rows[0], nil
}
