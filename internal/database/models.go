package database

import "time"

// Profile roles.
const (
	RoleNormal   = "normal"
	RoleVerified = "verified"
	RoleAdmin    = "admin"
)

// Verification request statuses.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// Profile is the public face of a user.
type Profile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatar_url"`
	Role           string    `json:"role"`
	IsVerified     bool      `json:"is_verified"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAdmin is the only gate for admin views.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// HasVerifiedBadge reports whether the verified badge applies.
func (p *Profile) HasVerifiedBadge() bool {
	return p != nil && (p.IsVerified || p.Role == RoleVerified || p.Role == RoleAdmin)
}

// Snippet returns the embedded-author form of the profile.
func (p *Profile) Snippet() *ProfileSnippet {
	if p == nil {
		return nil
	}
	return &ProfileSnippet{
		Username:   p.Username,
		FullName:   p.FullName,
		AvatarURL:  p.AvatarURL,
		IsVerified: p.IsVerified,
		Role:       p.Role,
	}
}

// ProfileSnippet is the subset of a profile embedded in posts, messages and topics.
type ProfileSnippet struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	IsVerified bool   `json:"is_verified,omitempty"`
	Role       string `json:"role,omitempty"`
}

// NewProfile is the insert payload for profiles.
type NewProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Username   *string `json:"username,omitempty"`
	FullName   *string `json:"full_name,omitempty"`
	Bio        *string `json:"bio,omitempty"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	Role       *string `json:"role,omitempty"`
	IsVerified *bool   `json:"is_verified,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.FullName == nil && u.Bio == nil &&
		u.AvatarURL == nil && u.Role == nil && u.IsVerified == nil
}

// Post is a status update.
type Post struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Content       string          `json:"content"`
	ImageURL      string          `json:"image_url,omitempty"`
	LikesCount    int             `json:"likes_count"`
	CommentsCount int             `json:"comments_count"`
	CreatedAt     time.Time       `json:"created_at"`
	Author        *ProfileSnippet `json:"profiles,omitempty"`
}

// NewPost is the insert payload for posts.
type NewPost struct {
	UserID        string `json:"user_id"`
	Content       string `json:"content"`
	ImageURL      string `json:"image_url,omitempty"`
	LikesCount    int    `json:"likes_count"`
	CommentsCount int    `json:"comments_count"`
}

// Like links a user to a post. At most one exists per pair.
type Like struct {
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

// Message is a direct message.
type Message struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Content    string          `json:"content"`
	CreatedAt  time.Time       `json:"created_at"`
	Sender     *ProfileSnippet `json:"sender,omitempty"`
	Receiver   *ProfileSnippet `json:"receiver,omitempty"`
}

// NewMessage is the insert payload for messages.
type NewMessage struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// Story is ephemeral media, visible while now < ExpiresAt.
type Story struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	MediaURL  string          `json:"media_url"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
	Author    *ProfileSnippet `json:"profiles,omitempty"`
}

// Active reports whether the story is still visible at now.
func (s Story) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// NewStory is the insert payload for stories.
type NewStory struct {
	UserID    string    `json:"user_id"`
	MediaURL  string    `json:"media_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Topic is a community.
type Topic struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	CreatorID    string          `json:"creator_id"`
	MembersCount int             `json:"members_count"`
	CreatedAt    time.Time       `json:"created_at"`
	Creator      *ProfileSnippet `json:"profiles,omitempty"`
}

// NewTopic is the insert payload for topics.
type NewTopic struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	CreatorID    string `json:"creator_id"`
	MembersCount int    `json:"members_count"`
}

// TopicMember is the source of truth for membership.
type TopicMember struct {
	TopicID string `json:"topic_id"`
	UserID  string `json:"user_id"`
}

// PaymentInfo is the payment snapshot stored with a verification request.
type PaymentInfo struct {
	Plan          string  `json:"plan"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
}

// VerificationRequest is a paid request for the verified badge.
type VerificationRequest struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	PaymentInfo PaymentInfo     `json:"payment_info"`
	Reason      string          `json:"reason"`
	Profession  string          `json:"profession"`
	Website     string          `json:"website"`
	SocialMedia string          `json:"social_media"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Requester   *ProfileSnippet `json:"profiles,omitempty"`
}

// NewVerificationRequest is the insert payload for verification_requests.
type NewVerificationRequest struct {
	UserID      string      `json:"user_id"`
	Status      string      `json:"status"`
	PaymentInfo PaymentInfo `json:"payment_info"`
	Reason      string      `json:"reason"`
	Profession  string      `json:"profession"`
	Website     string      `json:"website,omitempty"`
	SocialMedia string      `json:"social_media,omitempty"`
}

// Ad is an admin-managed promotion.
type Ad struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	LinkURL   string    `json:"link_url,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAd is the insert payload for ads.
type NewAd struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
	LinkURL  string `json:"link_url,omitempty"`
	IsActive bool   `json:"is_active"`
}
