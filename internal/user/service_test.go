package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	users  map[string]*User
	online map[int]bool
	nextID int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]*User{}, online: map[int]bool{}}
}

func (f *fakeRepo) CreateUser(_ context.Context, u *User) (*User, error) {
	if _, ok := f.users[u.Username]; ok {
		return nil, errors.New("duplicate username")
	}
	f.nextID++
	u.ID = f.nextID
	f.users[u.Username] = u
	return u, nil
}

func (f *fakeRepo) GetUserByUsername(_ context.Context, username string) (*User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) SetOnline(_ context.Context, userID int, online bool) error {
	f.online[userID] = online
	return nil
}

func (f *fakeRepo) SearchUsers(_ context.Context, query string) ([]User, error) {
	var out []User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func TestRegisterHashesPassword(t *testing.T) {
	svc := NewService(newFakeRepo(), "secret")

	u, err := svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)

	assert.NotEqual(t, "hunter2", u.Password, "password is never stored in the clear")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("hunter2")))
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc := NewService(newFakeRepo(), "secret")

	_, err := svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	require.NotEmpty(t, res.AccessToken)

	id, username, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.ID, id)
	assert.Equal(t, "alice", username)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := NewService(newFakeRepo(), "secret")

	_, err := svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &RegisterRequest{Username: "alice", Password: "wrong"})
	assert.Error(t, err)

	_, err = svc.Login(context.Background(), &RegisterRequest{Username: "nobody", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateTokenRejectsForgedSecret(t *testing.T) {
	repo := newFakeRepo()
	issuer := NewService(repo, "secret-a")
	verifier := NewService(repo, "secret-b")

	_, err := issuer.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)
	res, err := issuer.Login(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)

	_, _, err = verifier.ValidateToken(res.AccessToken)
	assert.Error(t, err)

	_, _, err = verifier.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestLogoutMarksOffline(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "secret")

	u, err := svc.Register(context.Background(), &RegisterRequest{Username: "alice", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), u.ID))
	assert.False(t, repo.online[u.ID])
}
