package stories

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/supabase/client"
)

type staticIdentity string

func (s staticIdentity) CurrentUserID() string { return string(s) }

type memUploader struct {
	objects map[string][]byte
	err     error
}

func (u *memUploader) Upload(ctx context.Context, path string, data []byte, contentType string) (*client.Response, error) {
	if u.err != nil {
		return nil, u.err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[path] = data
	return &client.Response{StatusCode: 200}, nil
}

func (u *memUploader) GetPublicURL(path string) string {
	return "https://cdn.example/stories/" + path
}

var now = time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)

func TestGroupByAuthor(t *testing.T) {
	list := []database.Story{
		{ID: "s4", UserID: "bob"},
		{ID: "s3", UserID: "alice"},
		{ID: "s2", UserID: "bob"},
		{ID: "s1", UserID: "carol"},
	}
	groups := GroupByAuthor(list)
	require.Len(t, groups, 3)
	assert.Equal(t, "bob", groups[0].UserID)
	require.Len(t, groups[0].Stories, 2)
	assert.Equal(t, "s4", groups[0].Stories[0].ID)
	assert.Equal(t, "alice", groups[1].UserID)
	assert.Equal(t, "carol", groups[2].UserID)
}

func TestLoadSkipsExpired(t *testing.T) {
	repo := database.NewMockRepository()
	repo.SeedStory(database.Story{ID: "live", UserID: "bob", MediaURL: "a", ExpiresAt: now.Add(time.Hour)})
	repo.SeedStory(database.Story{ID: "gone", UserID: "bob", MediaURL: "b", ExpiresAt: now.Add(-time.Minute)})

	s := New(repo, nil, staticIdentity("me"), nil)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Load(context.Background()))

	groups := s.Groups()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Stories, 1)
	assert.Equal(t, "live", groups[0].Stories[0].ID)
}

func TestCreateUploadsAndExpiresInADay(t *testing.T) {
	repo := database.NewMockRepository()
	up := &memUploader{}
	s := New(repo, up, staticIdentity("me"), nil)
	s.now = func() time.Time { return now }

	story, err := s.Create(context.Background(), Media{Name: "clip.MP4", ContentType: "video/mp4", Data: []byte("x")}, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTTL), story.ExpiresAt)
	assert.True(t, strings.HasPrefix(story.MediaURL, "https://cdn.example/stories/me/"))
	assert.True(t, strings.HasSuffix(story.MediaURL, ".mp4"))
	assert.Len(t, up.objects, 1)
	require.Len(t, s.Groups(), 1)
}

func TestCreateValidationAndUploadFailure(t *testing.T) {
	repo := database.NewMockRepository()
	up := &memUploader{err: errors.New("quota")}
	s := New(repo, up, staticIdentity("me"), nil)

	_, err := s.Create(context.Background(), Media{}, 0)
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))

	_, err = s.Create(context.Background(), Media{Name: "a.jpg", Data: []byte("x")}, time.Hour)
	require.Error(t, err)
	assert.Equal(t, 0, repo.Calls("CreateStory"))
}
