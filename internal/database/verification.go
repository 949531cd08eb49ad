package database

import (
	"context"
	"fmt"
	"time"
)

// LatestVerificationRequest returns the user's most recent request.
func (r *Repository) LatestVerificationRequest(ctx context.Context, userID string) (*VerificationRequest, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("verification_requests").Select("*").
		Eq("user_id", userID).
		Order("created_at", false).
		Limit(1).
		Execute(ctx)
	if err != nil {
		return nil, classify("latest verification request", err)
	}
	return decodeOne[VerificationRequest]("latest verification request", "verification request", userID, resp)
}

// ListVerificationRequests returns every request with its requester, newest first.
func (r *Repository) ListVerificationRequests(ctx context.Context) ([]VerificationRequest, error) {
	resp, err := r.client.From("verification_requests").Select(verificationSelect).Order("created_at", false).Execute(ctx)
	if err != nil {
		return nil, classify("list verification requests", err)
	}
	return decodeRows[VerificationRequest]("list verification requests", resp)
}

// CreateVerificationRequest inserts a request.
func (r *Repository) CreateVerificationRequest(ctx context.Context, req *NewVerificationRequest) (*VerificationRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: verification request cannot be nil", ErrInvalidInput)
	}
	if err := requireID("user id", req.UserID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("verification_requests").Select("*").ExecuteInsert(ctx, req)
	if err != nil {
		return nil, classify("create verification request", err)
	}
	return decodeOne[VerificationRequest]("create verification request", "verification request", "", resp)
}

// UpdateVerificationStatus sets status and updated_at on a request.
func (r *Repository) UpdateVerificationStatus(ctx context.Context, id, status string, at time.Time) (*VerificationRequest, error) {
	if err := requireID("verification request id", id); err != nil {
		return nil, err
	}
	switch status {
	case VerificationPending, VerificationApproved, VerificationRejected:
	default:
		return nil, fmt.Errorf("%w: unknown verification status %q", ErrInvalidInput, status)
	}
	resp, err := r.client.From("verification_requests").Select("*").Eq("id", id).ExecuteUpdate(ctx, map[string]any{
		"status":     status,
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, classify("update verification status", err)
	}
	return decodeOne[VerificationRequest]("update verification status", "verification request", id, resp)
}
