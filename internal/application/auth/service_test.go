package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-auth-api/internal/domain"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockConfirmationStore struct{ mock.Mock }

func (m *mockConfirmationStore) Put(ctx context.Context, c *domain.ConfirmationToken) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockConfirmationStore) Consume(ctx context.Context, token string, now time.Time) error {
	return m.Called(ctx, token, now).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockHasher struct{ mock.Mock }

func (m *mockHasher) Hash(raw string) (string, error) {
	args := m.Called(raw)
	return args.String(0), args.Error(1)
}
func (m *mockHasher) Matches(raw, hash string) bool {
	return m.Called(raw, hash).Bool(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(subject, role string, extra map[string]string) (string, error) {
	args := m.Called(subject, role, extra)
	return args.String(0), args.Error(1)
}

// --- builder ---

func newService(us *mockUserStore, cs *mockConfirmationStore, ml *mockMailer, h *mockHasher, sg *mockSigner) Service {
	return NewService(ServiceDeps{
		UserRepo:         us,
		ConfirmationRepo: cs,
		Mailer:           ml,
		Hasher:           h,
		Signer:           sg,
		ConfirmTokenTTL:  15 * time.Minute,
		ConfirmBaseURL:   "http://localhost:3000/v1/auth/confirm",
	})
}

func registerReq() domain.RegisterRequest {
	return domain.RegisterRequest{
		FirstName: "Jan",
		LastName:  "Kowalski",
		Email:     "a@x.com",
		Password:  "password123",
	}
}

// --- Register ---

func TestRegister_InvalidEmail(t *testing.T) {
	svc := newService(nil, nil, nil, nil, nil)

	req := registerReq()
	req.Email = "not-an-email"
	_, err := svc.Register(context.Background(), req)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidEmail))
}

func TestRegister_MissingFields(t *testing.T) {
	svc := newService(nil, nil, nil, nil, nil)

	req := registerReq()
	req.Password = ""
	_, err := svc.Register(context.Background(), req)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestRegister_EmailTaken(t *testing.T) {
	us := &mockUserStore{}
	h := &mockHasher{}
	h.On("Hash", "password123").Return("hashed", nil)
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).
		Return(domain.ErrEmailTaken)

	svc := newService(us, nil, nil, h, nil)
	_, err := svc.Register(context.Background(), registerReq())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmailTaken))
}

func TestRegister_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockConfirmationStore{}
	ml := &mockMailer{}
	h := &mockHasher{}

	h.On("Hash", "password123").Return("hashed", nil)

	var created *domain.User
	us.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		created = u
		return u.Email == "a@x.com" && !u.Enabled && u.Role == domain.RoleUser && u.PasswordHash == "hashed"
	})).Return(nil)

	var issued *domain.ConfirmationToken
	cs.On("Put", mock.Anything, mock.MatchedBy(func(c *domain.ConfirmationToken) bool {
		issued = c
		return c.ExpiresAt-c.CreatedAt == int64((15*time.Minute).Seconds()) && c.ConfirmedAt == nil
	})).Return(nil)

	ml.On("SendEmail", "a@x.com", mock.Anything, mock.MatchedBy(func(body string) bool {
		return issued != nil && strings.Contains(body, issued.Token) && strings.Contains(body, "Jan")
	})).Return(nil)

	svc := newService(us, cs, ml, h, nil)
	token, err := svc.Register(context.Background(), registerReq())

	require.NoError(t, err)
	require.NotNil(t, created)
	require.NotNil(t, issued)
	assert.Equal(t, issued.Token, token)
	assert.Equal(t, created.UserID, issued.UserID)
	us.AssertExpectations(t)
	cs.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestRegister_MailDispatchFailure(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockConfirmationStore{}
	ml := &mockMailer{}
	h := &mockHasher{}

	h.On("Hash", "password123").Return("hashed", nil)
	us.On("Create", mock.Anything, mock.Anything).Return(nil)
	cs.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).
		Return(domain.ErrDispatchFailure)

	svc := newService(us, cs, ml, h, nil)
	_, err := svc.Register(context.Background(), registerReq())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDispatchFailure))
}

// --- Confirm ---

func TestConfirm_HappyPath(t *testing.T) {
	cs := &mockConfirmationStore{}
	cs.On("Consume", mock.Anything, "tok1", mock.AnythingOfType("time.Time")).Return(nil)

	svc := newService(nil, cs, nil, nil, nil)
	msg, err := svc.Confirm(context.Background(), "tok1")

	require.NoError(t, err)
	assert.Equal(t, "Confirmed", msg)
}

func TestConfirm_PropagatesTokenErrors(t *testing.T) {
	for _, want := range []error{domain.ErrTokenNotFound, domain.ErrAlreadyConfirmed, domain.ErrTokenExpired} {
		cs := &mockConfirmationStore{}
		cs.On("Consume", mock.Anything, "tok1", mock.Anything).Return(want)

		svc := newService(nil, cs, nil, nil, nil)
		_, err := svc.Confirm(context.Background(), "tok1")

		require.Error(t, err)
		assert.True(t, errors.Is(err, want))
	}
}

// --- Authenticate ---

func TestAuthenticate_UnknownEmail_UniformFailure(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrUserNotFound)

	svc := newService(us, nil, nil, nil, nil)
	_, err := svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "x@x.com", Password: "pw"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	us := &mockUserStore{}
	h := &mockHasher{}
	us.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com", PasswordHash: "hashed", Enabled: true}, nil)
	h.On("Matches", "wrong", "hashed").Return(false)

	svc := newService(us, nil, nil, h, nil)
	_, err := svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "a@x.com", Password: "wrong"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestAuthenticate_DisabledAccount_SameFailureShape(t *testing.T) {
	us := &mockUserStore{}
	h := &mockHasher{}
	us.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com", PasswordHash: "hashed", Enabled: false}, nil)
	h.On("Matches", "pw123", "hashed").Return(true)

	svc := newService(us, nil, nil, h, nil)
	_, err := svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "a@x.com", Password: "pw123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestAuthenticate_StorageFailurePropagates(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrStorageFailure)

	svc := newService(us, nil, nil, nil, nil)
	_, err := svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "a@x.com", Password: "pw"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorageFailure))
	assert.False(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestAuthenticate_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	h := &mockHasher{}
	sg := &mockSigner{}
	us.On("GetByEmail", mock.Anything, "a@x.com").
		Return(&domain.User{UserID: "u1", Email: "a@x.com", PasswordHash: "hashed", Role: domain.RoleUser, Enabled: true}, nil)
	h.On("Matches", "pw123", "hashed").Return(true)
	sg.On("Sign", "a@x.com", domain.RoleUser, map[string]string(nil)).Return("signed-token", nil)

	svc := newService(us, nil, nil, h, sg)
	token, err := svc.Authenticate(context.Background(), domain.AuthenticateRequest{Email: "a@x.com", Password: "pw123"})

	require.NoError(t, err)
	assert.Equal(t, "signed-token", token)
	sg.AssertExpectations(t)
}

// --- concurrent consume ---

// fakeConfirmationStore implements the consume state machine behind a mutex,
// the way the DynamoDB conditional write behaves: first unexpired consume
// wins, every later one observes AlreadyConfirmed.
type fakeConfirmationStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.ConfirmationToken
}

func newFakeConfirmationStore() *fakeConfirmationStore {
	return &fakeConfirmationStore{tokens: map[string]*domain.ConfirmationToken{}}
}

func (f *fakeConfirmationStore) Put(_ context.Context, c *domain.ConfirmationToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[c.Token] = c
	return nil
}

func (f *fakeConfirmationStore) Consume(_ context.Context, token string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.tokens[token]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if c.Consumed() {
		return domain.ErrAlreadyConfirmed
	}
	if c.Expired(now) {
		return domain.ErrTokenExpired
	}
	ts := now.Unix()
	c.ConfirmedAt = &ts
	return nil
}

func TestConfirm_ConcurrentConsume_ExactlyOneWinner(t *testing.T) {
	store := newFakeConfirmationStore()
	now := time.Now()
	require.NoError(t, store.Put(context.Background(), &domain.ConfirmationToken{
		Token:     "tok1",
		UserID:    "u1",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(15 * time.Minute).Unix(),
	}))

	svc := newService(nil, nil, nil, nil, nil).(*service)
	svc.confirmationRepo = store

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Confirm(context.Background(), "tok1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyConfirmed):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)
}

func TestConfirm_ExpiredToken_NeverConsumable(t *testing.T) {
	store := newFakeConfirmationStore()
	now := time.Now()
	require.NoError(t, store.Put(context.Background(), &domain.ConfirmationToken{
		Token:     "tok1",
		UserID:    "u1",
		CreatedAt: now.Add(-16 * time.Minute).Unix(),
		ExpiresAt: now.Add(-time.Second).Unix(),
	}))

	svc := newService(nil, nil, nil, nil, nil).(*service)
	svc.confirmationRepo = store

	_, err := svc.Confirm(context.Background(), "tok1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))

	// Still unconsumed and still unusable.
	_, err = svc.Confirm(context.Background(), "tok1")
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
}
