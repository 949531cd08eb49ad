package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of RepositoryInterface for
// testing. It enforces the unique constraints of the real schema and lets
// tests inject errors per operation.
type MockRepository struct {
	mu sync.RWMutex

	profiles      map[string]*Profile
	posts         map[string]*Post
	likes         map[Like]bool
	messages      []*Message
	stories       map[string]*Story
	topics        map[string]*Topic
	members       map[TopicMember]bool
	verifications map[string]*VerificationRequest
	ads           map[string]*Ad

	seq   int
	clock time.Time
	calls map[string]int
	fail  map[string]error

	// Error injection for testing error paths
	ErrorOnNextCall error
}

var _ RepositoryInterface = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository for testing.
func NewMockRepository() *MockRepository {
	m := &MockRepository{}
	m.Reset()
	return m
}

// Reset clears all data in the mock repository.
func (m *MockRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = make(map[string]*Profile)
	m.posts = make(map[string]*Post)
	m.likes = make(map[Like]bool)
	m.messages = nil
	m.stories = make(map[string]*Story)
	m.topics = make(map[string]*Topic)
	m.members = make(map[TopicMember]bool)
	m.verifications = make(map[string]*VerificationRequest)
	m.ads = make(map[string]*Ad)
	m.seq = 0
	m.clock = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.calls = make(map[string]int)
	m.fail = make(map[string]error)
	m.ErrorOnNextCall = nil
}

// FailOn makes every call to op return err until FailOn(op, nil).
func (m *MockRepository) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Calls returns how many times op was invoked.
func (m *MockRepository) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// TotalCalls returns the number of operations invoked so far.
func (m *MockRepository) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// begin records op and returns any injected error. Caller holds m.mu.
func (m *MockRepository) begin(op string) error {
	m.calls[op]++
	if m.ErrorOnNextCall != nil {
		err := m.ErrorOnNextCall
		m.ErrorOnNextCall = nil
		return err
	}
	return m.fail[op]
}

func (m *MockRepository) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// tick returns a strictly increasing timestamp.
func (m *MockRepository) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MockRepository) snippet(userID string) *ProfileSnippet {
	if p, ok := m.profiles[userID]; ok {
		return p.Snippet()
	}
	return nil
}

// =============================================================================
// Seeding
// =============================================================================

// SeedProfile stores p as is, filling CreatedAt when zero.
func (m *MockRepository) SeedProfile(p Profile) *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.tick()
	}
	if p.Role == "" {
		p.Role = RoleNormal
	}
	m.profiles[p.ID] = &p
	return &p
}

// SeedPost stores p, assigning an id and timestamp when missing.
func (m *MockRepository) SeedPost(p Post) *Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.nextID("post")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.tick()
	}
	m.posts[p.ID] = &p
	return &p
}

// SeedLike stores a like without touching counters.
func (m *MockRepository) SeedLike(userID, postID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes[Like{UserID: userID, PostID: postID}] = true
}

// SeedMessage stores msg, assigning an id and timestamp when missing.
func (m *MockRepository) SeedMessage(msg Message) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = m.nextID("msg")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.tick()
	}
	m.messages = append(m.messages, &msg)
	return &msg
}

// SeedStory stores s.
func (m *MockRepository) SeedStory(s Story) *Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.nextID("story")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.tick()
	}
	m.stories[s.ID] = &s
	return &s
}

// SeedTopic stores t. MembersCount is taken as given so tests can model drift.
func (m *MockRepository) SeedTopic(t Topic) *Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = m.nextID("topic")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.tick()
	}
	m.topics[t.ID] = &t
	return &t
}

// SeedMember stores a membership without touching counters.
func (m *MockRepository) SeedMember(topicID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[TopicMember{TopicID: topicID, UserID: userID}] = true
}

// SeedVerification stores v.
func (m *MockRepository) SeedVerification(v VerificationRequest) *VerificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = m.nextID("vr")
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.tick()
	}
	m.verifications[v.ID] = &v
	return &v
}

// SeedAd stores a.
func (m *MockRepository) SeedAd(a Ad) *Ad {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = m.nextID("ad")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.tick()
	}
	m.ads[a.ID] = &a
	return &a
}

// Profile returns the stored profile for assertions.
func (m *MockRepository) Profile(id string) (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Post returns the stored post for assertions.
func (m *MockRepository) Post(id string) (Post, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return Post{}, false
	}
	return *p, true
}

// Topic returns the stored topic for assertions.
func (m *MockRepository) Topic(id string) (Topic, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[id]
	if !ok {
		return Topic{}, false
	}
	return *t, true
}

// HasLike reports whether the like row exists.
func (m *MockRepository) HasLike(userID, postID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.likes[Like{UserID: userID, PostID: postID}]
}

// =============================================================================
// RepositoryInterface
// =============================================================================

func (m *MockRepository) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin("Ping")
}

func (m *MockRepository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("GetProfile"); err != nil {
		return nil, err
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, NewNotFoundError("profile", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepository) GetProfileByUsername(ctx context.Context, username string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("GetProfileByUsername"); err != nil {
		return nil, err
	}
	for _, p := range m.profiles {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, NewNotFoundError("profile", username)
}

func (m *MockRepository) usernameTaken(username, exceptID string) bool {
	for id, p := range m.profiles {
		if id != exceptID && p.Username == username {
			return true
		}
	}
	return false
}

func (m *MockRepository) CreateProfile(ctx context.Context, np *NewProfile) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateProfile"); err != nil {
		return nil, err
	}
	if np == nil || np.ID == "" || np.Username == "" {
		return nil, fmt.Errorf("%w: profile id and username are required", ErrInvalidInput)
	}
	if _, exists := m.profiles[np.ID]; exists {
		return nil, fmt.Errorf("create profile: %w: duplicate id", ErrConflict)
	}
	if m.usernameTaken(np.Username, "") {
		return nil, fmt.Errorf("create profile: %w: duplicate username", ErrConflict)
	}
	p := &Profile{
		ID:         np.ID,
		Username:   np.Username,
		FullName:   np.FullName,
		Role:       np.Role,
		IsVerified: np.IsVerified,
		CreatedAt:  m.tick(),
	}
	m.profiles[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *MockRepository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("UpdateProfile"); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, fmt.Errorf("%w: profile update is empty", ErrInvalidInput)
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, NewNotFoundError("profile", id)
	}
	if upd.Username != nil && m.usernameTaken(*upd.Username, id) {
		return nil, fmt.Errorf("update profile: %w: duplicate username", ErrConflict)
	}
	if upd.Username != nil {
		p.Username = *upd.Username
	}
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.Bio != nil {
		p.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		p.AvatarURL = *upd.AvatarURL
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	if upd.IsVerified != nil {
		p.IsVerified = *upd.IsVerified
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepository) sortedProfiles(less func(a, b *Profile) bool) []Profile {
	list := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
	out := make([]Profile, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	return out
}

func (m *MockRepository) ListProfiles(ctx context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListProfiles"); err != nil {
		return nil, err
	}
	return m.sortedProfiles(func(a, b *Profile) bool { return a.CreatedAt.After(b.CreatedAt) }), nil
}

func (m *MockRepository) ListSuggestedProfiles(ctx context.Context, excludeID string, limit int) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListSuggestedProfiles"); err != nil {
		return nil, err
	}
	all := m.sortedProfiles(func(a, b *Profile) bool {
		if a.FollowersCount != b.FollowersCount {
			return a.FollowersCount > b.FollowersCount
		}
		return a.ID < b.ID
	})
	out := make([]Profile, 0, limit)
	for _, p := range all {
		if p.ID == excludeID {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (m *MockRepository) SearchProfiles(ctx context.Context, query string, limit int) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SearchProfiles"); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	all := m.sortedProfiles(func(a, b *Profile) bool { return a.ID < b.ID })
	out := []Profile{}
	for _, p := range all {
		if containsFold(p.Username, q) || containsFold(p.FullName, q) {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockRepository) postsWhere(keep func(*Post) bool, less func(a, b *Post) bool, limit int) []Post {
	list := make([]*Post, 0, len(m.posts))
	for _, p := range m.posts {
		if keep == nil || keep(p) {
			list = append(list, p)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
	out := []Post{}
	for _, p := range list {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *p
		cp.Author = m.snippet(p.UserID)
		out = append(out, cp)
	}
	return out
}

func newestPost(a, b *Post) bool { return a.CreatedAt.After(b.CreatedAt) }

func (m *MockRepository) ListFeed(ctx context.Context, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListFeed"); err != nil {
		return nil, err
	}
	return m.postsWhere(nil, newestPost, limit), nil
}

func (m *MockRepository) CountPosts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CountPosts"); err != nil {
		return 0, err
	}
	return len(m.posts), nil
}

func (m *MockRepository) ListTrendingPosts(ctx context.Context, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListTrendingPosts"); err != nil {
		return nil, err
	}
	return m.postsWhere(nil, func(a, b *Post) bool {
		if a.LikesCount != b.LikesCount {
			return a.LikesCount > b.LikesCount
		}
		return newestPost(a, b)
	}, limit), nil
}

func (m *MockRepository) SearchPosts(ctx context.Context, query string, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SearchPosts"); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	return m.postsWhere(func(p *Post) bool { return containsFold(p.Content, q) }, newestPost, limit), nil
}

func (m *MockRepository) ListPostsByUser(ctx context.Context, userID string) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListPostsByUser"); err != nil {
		return nil, err
	}
	return m.postsWhere(func(p *Post) bool { return p.UserID == userID }, newestPost, 0), nil
}

func (m *MockRepository) CreatePost(ctx context.Context, np *NewPost) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreatePost"); err != nil {
		return nil, err
	}
	if np == nil || np.UserID == "" || strings.TrimSpace(np.Content) == "" {
		return nil, fmt.Errorf("%w: user id and content are required", ErrInvalidInput)
	}
	p := &Post{
		ID:            m.nextID("post"),
		UserID:        np.UserID,
		Content:       np.Content,
		ImageURL:      np.ImageURL,
		LikesCount:    np.LikesCount,
		CommentsCount: np.CommentsCount,
		CreatedAt:     m.tick(),
	}
	m.posts[p.ID] = p
	cp := *p
	cp.Author = m.snippet(p.UserID)
	return &cp, nil
}

func (m *MockRepository) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("DeletePost"); err != nil {
		return err
	}
	if _, ok := m.posts[id]; !ok {
		return NewNotFoundError("post", id)
	}
	delete(m.posts, id)
	for l := range m.likes {
		if l.PostID == id {
			delete(m.likes, l)
		}
	}
	return nil
}

func (m *MockRepository) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("LikedPostIDs"); err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, id := range postIDs {
		if m.likes[Like{UserID: userID, PostID: id}] {
			out[id] = true
		}
	}
	return out, nil
}

func (m *MockRepository) CreateLike(ctx context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateLike"); err != nil {
		return err
	}
	if _, ok := m.posts[postID]; !ok {
		return NewNotFoundError("post", postID)
	}
	key := Like{UserID: userID, PostID: postID}
	if m.likes[key] {
		return fmt.Errorf("create like: %w: duplicate like", ErrConflict)
	}
	m.likes[key] = true
	return nil
}

func (m *MockRepository) DeleteLike(ctx context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("DeleteLike"); err != nil {
		return err
	}
	delete(m.likes, Like{UserID: userID, PostID: postID})
	return nil
}

func (m *MockRepository) AdjustPostLikes(ctx context.Context, postID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("AdjustPostLikes"); err != nil {
		return 0, err
	}
	p, ok := m.posts[postID]
	if !ok {
		return 0, NewNotFoundError("post", postID)
	}
	p.LikesCount += delta
	if p.LikesCount < 0 {
		p.LikesCount = 0
	}
	return p.LikesCount, nil
}

func (m *MockRepository) decorate(msg *Message) Message {
	cp := *msg
	cp.Sender = m.snippet(msg.SenderID)
	cp.Receiver = m.snippet(msg.ReceiverID)
	return cp
}

func (m *MockRepository) ListMessagesFor(ctx context.Context, userID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListMessagesFor"); err != nil {
		return nil, err
	}
	out := []Message{}
	for _, msg := range m.messages {
		if msg.SenderID == userID || msg.ReceiverID == userID {
			out = append(out, m.decorate(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) ListThread(ctx context.Context, userID, otherID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListThread"); err != nil {
		return nil, err
	}
	out := []Message{}
	for _, msg := range m.messages {
		if (msg.SenderID == userID && msg.ReceiverID == otherID) ||
			(msg.SenderID == otherID && msg.ReceiverID == userID) {
			out = append(out, m.decorate(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) CreateMessage(ctx context.Context, nm *NewMessage) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateMessage"); err != nil {
		return nil, err
	}
	if nm == nil || nm.SenderID == "" || nm.ReceiverID == "" || strings.TrimSpace(nm.Content) == "" {
		return nil, fmt.Errorf("%w: sender, receiver and content are required", ErrInvalidInput)
	}
	msg := &Message{
		ID:         m.nextID("msg"),
		SenderID:   nm.SenderID,
		ReceiverID: nm.ReceiverID,
		Content:    nm.Content,
		CreatedAt:  m.tick(),
	}
	m.messages = append(m.messages, msg)
	out := m.decorate(msg)
	return &out, nil
}

func (m *MockRepository) ListActiveStories(ctx context.Context, now time.Time) ([]Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListActiveStories"); err != nil {
		return nil, err
	}
	out := []Story{}
	for _, s := range m.stories {
		if s.Active(now) {
			cp := *s
			cp.Author = m.snippet(s.UserID)
			out = append(out, cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) CreateStory(ctx context.Context, ns *NewStory) (*Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateStory"); err != nil {
		return nil, err
	}
	if ns == nil || ns.UserID == "" || ns.MediaURL == "" {
		return nil, fmt.Errorf("%w: user id and media url are required", ErrInvalidInput)
	}
	s := &Story{
		ID:        m.nextID("story"),
		UserID:    ns.UserID,
		MediaURL:  ns.MediaURL,
		ExpiresAt: ns.ExpiresAt,
		CreatedAt: m.tick(),
	}
	m.stories[s.ID] = s
	cp := *s
	cp.Author = m.snippet(s.UserID)
	return &cp, nil
}

func (m *MockRepository) topicsWhere(keep func(*Topic) bool, limit int) []Topic {
	list := make([]*Topic, 0, len(m.topics))
	for _, t := range m.topics {
		if keep == nil || keep(t) {
			list = append(list, t)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].MembersCount != list[j].MembersCount {
			return list[i].MembersCount > list[j].MembersCount
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	out := []Topic{}
	for _, t := range list {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *t
		cp.Creator = m.snippet(t.CreatorID)
		out = append(out, cp)
	}
	return out
}

func (m *MockRepository) ListTopics(ctx context.Context) ([]Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListTopics"); err != nil {
		return nil, err
	}
	return m.topicsWhere(nil, 0), nil
}

func (m *MockRepository) ListTrendingTopics(ctx context.Context, since time.Time, limit int) ([]Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListTrendingTopics"); err != nil {
		return nil, err
	}
	return m.topicsWhere(func(t *Topic) bool { return !t.CreatedAt.Before(since) }, limit), nil
}

func (m *MockRepository) ListMemberTopics(ctx context.Context, userID string) ([]Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListMemberTopics"); err != nil {
		return nil, err
	}
	return m.topicsWhere(func(t *Topic) bool {
		return m.members[TopicMember{TopicID: t.ID, UserID: userID}]
	}, 0), nil
}

func (m *MockRepository) CountTopicMembers(ctx context.Context, topicID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CountTopicMembers"); err != nil {
		return 0, err
	}
	n := 0
	for tm := range m.members {
		if tm.TopicID == topicID {
			n++
		}
	}
	return n, nil
}

func (m *MockRepository) CreateTopic(ctx context.Context, nt *NewTopic) (*Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateTopic"); err != nil {
		return nil, err
	}
	if nt == nil || strings.TrimSpace(nt.Name) == "" || nt.CreatorID == "" {
		return nil, fmt.Errorf("%w: topic name and creator are required", ErrInvalidInput)
	}
	t := &Topic{
		ID:           m.nextID("topic"),
		Name:         nt.Name,
		Description:  nt.Description,
		CreatorID:    nt.CreatorID,
		MembersCount: nt.MembersCount,
		CreatedAt:    m.tick(),
	}
	m.topics[t.ID] = t
	cp := *t
	cp.Creator = m.snippet(t.CreatorID)
	return &cp, nil
}

func (m *MockRepository) AddTopicMember(ctx context.Context, topicID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("AddTopicMember"); err != nil {
		return err
	}
	if _, ok := m.topics[topicID]; !ok {
		return NewNotFoundError("topic", topicID)
	}
	key := TopicMember{TopicID: topicID, UserID: userID}
	if m.members[key] {
		return fmt.Errorf("add topic member: %w: already a member", ErrConflict)
	}
	m.members[key] = true
	return nil
}

func (m *MockRepository) RemoveTopicMember(ctx context.Context, topicID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("RemoveTopicMember"); err != nil {
		return err
	}
	delete(m.members, TopicMember{TopicID: topicID, UserID: userID})
	return nil
}

func (m *MockRepository) AdjustTopicMembers(ctx context.Context, topicID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("AdjustTopicMembers"); err != nil {
		return err
	}
	t, ok := m.topics[topicID]
	if !ok {
		return NewNotFoundError("topic", topicID)
	}
	t.MembersCount += delta
	if t.MembersCount < 0 {
		t.MembersCount = 0
	}
	return nil
}

func (m *MockRepository) LatestVerificationRequest(ctx context.Context, userID string) (*VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("LatestVerificationRequest"); err != nil {
		return nil, err
	}
	var latest *VerificationRequest
	for _, v := range m.verifications {
		if v.UserID == userID && (latest == nil || v.CreatedAt.After(latest.CreatedAt)) {
			latest = v
		}
	}
	if latest == nil {
		return nil, NewNotFoundError("verification request", userID)
	}
	cp := *latest
	return &cp, nil
}

func (m *MockRepository) ListVerificationRequests(ctx context.Context) ([]VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListVerificationRequests"); err != nil {
		return nil, err
	}
	out := []VerificationRequest{}
	for _, v := range m.verifications {
		cp := *v
		cp.Requester = m.snippet(v.UserID)
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) CreateVerificationRequest(ctx context.Context, req *NewVerificationRequest) (*VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateVerificationRequest"); err != nil {
		return nil, err
	}
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := m.tick()
	v := &VerificationRequest{
		ID:          m.nextID("vr"),
		UserID:      req.UserID,
		Status:      req.Status,
		PaymentInfo: req.PaymentInfo,
		Reason:      req.Reason,
		Profession:  req.Profession,
		Website:     req.Website,
		SocialMedia: req.SocialMedia,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.verifications[v.ID] = v
	cp := *v
	return &cp, nil
}

func (m *MockRepository) UpdateVerificationStatus(ctx context.Context, id, status string, at time.Time) (*VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("UpdateVerificationStatus"); err != nil {
		return nil, err
	}
	v, ok := m.verifications[id]
	if !ok {
		return nil, NewNotFoundError("verification request", id)
	}
	v.Status = status
	v.UpdatedAt = at
	cp := *v
	return &cp, nil
}

func (m *MockRepository) ListAds(ctx context.Context) ([]Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListAds"); err != nil {
		return nil, err
	}
	out := []Ad{}
	for _, a := range m.ads {
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockRepository) CreateAd(ctx context.Context, na *NewAd) (*Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateAd"); err != nil {
		return nil, err
	}
	if na == nil || strings.TrimSpace(na.Title) == "" {
		return nil, fmt.Errorf("%w: ad title is required", ErrInvalidInput)
	}
	a := &Ad{
		ID:        m.nextID("ad"),
		Title:     na.Title,
		Content:   na.Content,
		ImageURL:  na.ImageURL,
		LinkURL:   na.LinkURL,
		IsActive:  na.IsActive,
		CreatedAt: m.tick(),
	}
	m.ads[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *MockRepository) SetAdActive(ctx context.Context, id string, active bool) (*Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("SetAdActive"); err != nil {
		return nil, err
	}
	a, ok := m.ads[id]
	if !ok {
		return nil, NewNotFoundError("ad", id)
	}
	a.IsActive = active
	cp := *a
	return &cp, nil
}
