package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/rollcall/internal/model"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

type fakeFeedbacks struct {
	repository.FeedbackRepository
	byID       map[string]*model.Feedback
	listUserID string
	deleted    []string
}

func (f *fakeFeedbacks) FindByID(_ context.Context, id string) (*model.Feedback, error) {
	fb, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	c := *fb
	return &c, nil
}

func (f *fakeFeedbacks) List(_ context.Context, userID string) ([]*model.Feedback, error) {
	f.listUserID = userID
	return nil, nil
}

func (f *fakeFeedbacks) Create(_ context.Context, fb *model.Feedback) error {
	c := *fb
	f.byID[fb.ID] = &c
	return nil
}

func (f *fakeFeedbacks) Update(_ context.Context, fb *model.Feedback) error {
	c := *fb
	f.byID[fb.ID] = &c
	return nil
}

func (f *fakeFeedbacks) DeleteByID(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type users map[string]*model.User

func (u users) FindByID(_ context.Context, id string) (*model.User, error) {
	return u[id], nil
}

var (
	admin  = model.Principal{UserID: "u-admin", IsAdmin: true}
	member = model.Principal{UserID: "u-1"}
)

func newService() (*Service, *fakeFeedbacks) {
	repo := &fakeFeedbacks{byID: map[string]*model.Feedback{
		"f-1": {ID: "f-1", UserID: "u-1", Title: "Great job"},
		"f-2": {ID: "f-2", UserID: "u-2", Title: "Be on time"},
	}}
	svc := NewService(repo, users{
		"u-admin": {ID: "u-admin"},
		"u-1":     {ID: "u-1"},
		"u-2":     {ID: "u-2"},
	}, security.NewTextSanitizer())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo
}

func ptr[T any](v T) *T { return &v }

func apiErr(t *testing.T, err error) *model.APIError {
	t.Helper()
	var e *model.APIError
	require.True(t, errors.As(err, &e), "err = %v", err)
	return e
}

func TestList_Visibility(t *testing.T) {
	svc, repo := newService()

	list, err := svc.List(context.Background(), member)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Equal(t, "u-1", repo.listUserID)

	_, err = svc.List(context.Background(), admin)
	require.NoError(t, err)
	assert.Empty(t, repo.listUserID)
}

func TestGet_HidesOthers(t *testing.T) {
	svc, _ := newService()

	f, err := svc.Get(context.Background(), member, "f-1")
	require.NoError(t, err)
	assert.Equal(t, "Great job", f.Title)

	_, err = svc.Get(context.Background(), member, "f-2")
	assert.Equal(t, model.ErrCodeFeedbackNotFound, apiErr(t, err).Code)

	_, err = svc.Get(context.Background(), admin, "f-2")
	require.NoError(t, err)
}

func TestCreate_SenderRules(t *testing.T) {
	t.Run("省略時は本人が送信者", func(t *testing.T) {
		svc, _ := newService()
		f, err := svc.Create(context.Background(), member, Input{
			UserID:      ptr("u-2"),
			Title:       ptr("Thanks"),
			Description: ptr("<b>nice</b> work"),
		})
		require.NoError(t, err)
		require.NotNil(t, f.SenderID)
		assert.Equal(t, "u-1", *f.SenderID)
		assert.Equal(t, "nice work", f.Description)
	})

	t.Run("一般ユーザーは他人を送信者にできない", func(t *testing.T) {
		svc, _ := newService()
		_, err := svc.Create(context.Background(), member, Input{
			UserID:   ptr("u-2"),
			SenderID: ptr("u-2"),
			Title:    ptr("Thanks"),
		})
		e := apiErr(t, err)
		assert.Equal(t, model.ErrCodeValidation, e.Code)
		assert.Equal(t, []string{senderOnlySelf}, e.Fields["sender"])
	})

	t.Run("管理者は任意の送信者を指定できる", func(t *testing.T) {
		svc, _ := newService()
		f, err := svc.Create(context.Background(), admin, Input{
			UserID:   ptr("u-1"),
			SenderID: ptr("u-2"),
			Title:    ptr("Thanks"),
		})
		require.NoError(t, err)
		assert.Equal(t, "u-2", *f.SenderID)
	})

	t.Run("user は必須", func(t *testing.T) {
		svc, _ := newService()
		_, err := svc.Create(context.Background(), member, Input{Title: ptr("Thanks")})
		assert.Contains(t, apiErr(t, err).Fields, "user")
	})
}

func TestUpdateDelete(t *testing.T) {
	svc, repo := newService()

	f, err := svc.Update(context.Background(), member, "f-1", Input{Completed: ptr(true)})
	require.NoError(t, err)
	assert.True(t, f.Completed)

	_, err = svc.Update(context.Background(), member, "f-2", Input{Completed: ptr(true)})
	assert.Equal(t, model.ErrCodeFeedbackNotFound, apiErr(t, err).Code)

	require.NoError(t, svc.Delete(context.Background(), admin, "f-2"))
	assert.Equal(t, []string{"f-2"}, repo.deleted)
}
