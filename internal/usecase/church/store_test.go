package church

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/worker"
)

type MockChurchRepo struct {
	mock.Mock
}

func (m *MockChurchRepo) GetMembershipByUser(ctx context.Context, userID string) (*domain.Membership, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}

func (m *MockChurchRepo) GetChurch(ctx context.Context, churchID string) (*domain.Church, error) {
	args := m.Called(ctx, churchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Church), args.Error(1)
}

func (m *MockChurchRepo) FindChurchByInviteCode(ctx context.Context, code string) (*domain.Church, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Church), args.Error(1)
}

func (m *MockChurchRepo) InsertChurch(ctx context.Context, church domain.Church) (domain.Church, error) {
	args := m.Called(ctx, church)
	if err := args.Error(1); err != nil {
		return domain.Church{}, err
	}
	return church, nil
}

func (m *MockChurchRepo) UpdateChurch(ctx context.Context, churchID, name, description string) error {
	return m.Called(ctx, churchID, name, description).Error(0)
}

func (m *MockChurchRepo) InsertMember(ctx context.Context, ms domain.Membership) (domain.Membership, error) {
	args := m.Called(ctx, ms)
	return ms, args.Error(1)
}

func (m *MockChurchRepo) DeleteMember(ctx context.Context, churchID, userID string) error {
	return m.Called(ctx, churchID, userID).Error(0)
}

func (m *MockChurchRepo) ListMembers(ctx context.Context, churchID string) ([]domain.Membership, error) {
	args := m.Called(ctx, churchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Membership), args.Error(1)
}

func (m *MockChurchRepo) ListDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type profileStub struct {
	mu    sync.Mutex
	code  map[string]string
	calls []string
}

func (p *profileStub) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.Profile{UserID: userID, ChurchCode: p.code[userID]}, nil
}

func (p *profileStub) UpdatePreferences(ctx context.Context, userID string, prefs domain.Preferences) error {
	return nil
}

func (p *profileStub) SetChurchCode(ctx context.Context, userID, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.code == nil {
		p.code = make(map[string]string)
	}
	p.code[userID] = code
	p.calls = append(p.calls, userID+"="+code)
	return nil
}

var anything = mock.Anything

func newStore(repo *MockChurchRepo, profiles *profileStub) *Store {
	return NewStore(repo, profiles, worker.Inline{Log: zerolog.Nop()}, zerolog.Nop())
}

func testChurch() *domain.Church {
	return &domain.Church{ID: "c1", Name: "Grace", InviteCode: "ABC234", CreatedBy: "leader"}
}

func TestJoinUnknownCodeLeavesStateUntouched(t *testing.T) {
	repo := &MockChurchRepo{}
	repo.On("FindChurchByInviteCode", anything, "NOPE22").Return(nil, nil)
	s := newStore(repo, &profileStub{})
	s.Reset("u1")

	_, err := s.JoinChurch(context.Background(), "  nope22 ")
	require.ErrorIs(t, err, domain.ErrChurchNotFound)
	require.False(t, s.HasChurch())
	require.Empty(t, s.Members())
	repo.AssertNotCalled(t, "InsertMember", anything, anything)
}

func TestJoinChurchAsMember(t *testing.T) {
	repo := &MockChurchRepo{}
	profiles := &profileStub{}
	joined := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.On("FindChurchByInviteCode", anything, "ABC234").Return(testChurch(), nil)
	repo.On("InsertMember", anything, mock.MatchedBy(func(m domain.Membership) bool {
		return m.ChurchID == "c1" && m.UserID == "u1" && m.Role == domain.MemberRoleMember
	})).Return(domain.Membership{}, nil)
	repo.On("ListMembers", anything, "c1").Return([]domain.Membership{
		{ChurchID: "c1", UserID: "u1", Role: domain.MemberRoleMember, JoinedAt: joined.Add(time.Hour)},
		{ChurchID: "c1", UserID: "leader", Role: domain.MemberRoleLeader, JoinedAt: joined},
	}, nil)
	repo.On("ListDisplayNames", anything, []string{"u1", "leader"}).Return(map[string]string{"u1": "Ann Lee", "leader": "Pastor"}, nil)

	s := newStore(repo, profiles)
	s.Reset("u1")
	church, err := s.JoinChurch(context.Background(), "abc234")
	require.NoError(t, err)
	require.Equal(t, "c1", church.ID)

	require.True(t, s.HasChurch())
	require.False(t, s.IsLeader())
	require.Equal(t, domain.MemberRoleMember, s.Role())

	members := s.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "leader", members[0].UserID)
	assert.Equal(t, "PA", members[0].Initials)
	assert.Equal(t, "AL", members[1].Initials)

	assert.Equal(t, "ABC234", s.ProfileCode())
	assert.Equal(t, []string{"u1=ABC234"}, profiles.calls)
	repo.AssertExpectations(t)
}

func TestJoinUniqueViolationSurfacesAlreadyMember(t *testing.T) {
	repo := &MockChurchRepo{}
	repo.On("FindChurchByInviteCode", anything, "ABC234").Return(testChurch(), nil)
	repo.On("InsertMember", anything, anything).Return(domain.Membership{}, domain.ErrAlreadyMember)

	s := newStore(repo, &profileStub{})
	s.Reset("u1")
	_, err := s.JoinChurch(context.Background(), "ABC234")
	require.ErrorIs(t, err, domain.ErrAlreadyMember)
	require.False(t, s.HasChurch())
}

func TestCreateChurchRetriesCodeCollisions(t *testing.T) {
	repo := &MockChurchRepo{}
	repo.On("InsertChurch", anything, mock.MatchedBy(func(c domain.Church) bool { return c.InviteCode != "GOOD22" })).
		Return(domain.Church{}, domain.ErrInviteCodeTaken)
	repo.On("InsertChurch", anything, mock.MatchedBy(func(c domain.Church) bool { return c.InviteCode == "GOOD22" })).
		Return(domain.Church{}, nil)
	repo.On("InsertMember", anything, mock.MatchedBy(func(m domain.Membership) bool { return m.Role == domain.MemberRoleLeader })).
		Return(domain.Membership{}, nil)
	repo.On("ListMembers", anything, anything).Return([]domain.Membership{{UserID: "u1", Role: domain.MemberRoleLeader}}, nil)
	repo.On("ListDisplayNames", anything, anything).Return(map[string]string{"u1": "Ann"}, nil)

	codes := []string{"TAKEN2", "TAKEN3", "GOOD22"}
	s := newStore(repo, &profileStub{})
	s.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	s.Reset("u1")

	church, err := s.CreateChurch(context.Background(), " Grace ", "")
	require.NoError(t, err)
	require.Equal(t, "GOOD22", church.InviteCode)
	require.Equal(t, "Grace", church.Name)
	require.NotEmpty(t, church.ID)
	require.True(t, s.IsLeader())
	repo.AssertNumberOfCalls(t, "InsertChurch", 3)
}

func TestCreateChurchGivesUpAfterThreeCollisions(t *testing.T) {
	repo := &MockChurchRepo{}
	repo.On("InsertChurch", anything, anything).Return(domain.Church{}, domain.ErrInviteCodeTaken)

	s := newStore(repo, &profileStub{})
	s.Reset("u1")
	_, err := s.CreateChurch(context.Background(), "Grace", "")
	require.ErrorIs(t, err, domain.ErrInviteCodeExhausted)
	repo.AssertNumberOfCalls(t, "InsertChurch", CodeAttempts)
	require.False(t, s.HasChurch())
}

func TestCreateChurchLeaderInsertFailure(t *testing.T) {
	repo := &MockChurchRepo{}
	repo.On("InsertChurch", anything, anything).Return(domain.Church{}, nil)
	repo.On("InsertMember", anything, anything).Return(domain.Membership{}, errors.New("boom"))

	s := newStore(repo, &profileStub{})
	s.Reset("u1")
	_, err := s.CreateChurch(context.Background(), "Grace", "")
	require.Error(t, err)
	require.False(t, s.HasChurch())
}

func TestCreateChurchValidatesName(t *testing.T) {
	s := newStore(&MockChurchRepo{}, &profileStub{})
	s.Reset("u1")
	_, err := s.CreateChurch(context.Background(), "   ", "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func loadedStore(t *testing.T, repo *MockChurchRepo, profiles *profileStub, role domain.MemberRole) *Store {
	t.Helper()
	repo.On("GetMembershipByUser", anything, "u1").Return(&domain.Membership{ChurchID: "c1", UserID: "u1", Role: role}, nil)
	repo.On("GetChurch", anything, "c1").Return(testChurch(), nil)
	repo.On("ListMembers", anything, "c1").Return([]domain.Membership{
		{ChurchID: "c1", UserID: "u1", Role: role},
		{ChurchID: "c1", UserID: "u2", Role: domain.MemberRoleMember},
	}, nil)
	repo.On("ListDisplayNames", anything, anything).Return(map[string]string{"u1": "Ann", "u2": ""}, nil)
	s := newStore(repo, profiles)
	s.Reset("u1")
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestLoadReconcilesDriftedCode(t *testing.T) {
	repo := &MockChurchRepo{}
	profiles := &profileStub{code: map[string]string{"u1": "OLD999"}}
	s := loadedStore(t, repo, profiles, domain.MemberRoleLeader)

	require.False(t, s.Loading())
	require.Equal(t, "ABC234", s.ProfileCode())
	require.Equal(t, []string{"u1=ABC234"}, profiles.calls)
	require.False(t, s.Reconcile())

	members := s.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "?", members[1].Initials)
}

func TestAlreadyMemberPrecondition(t *testing.T) {
	repo := &MockChurchRepo{}
	s := loadedStore(t, repo, &profileStub{code: map[string]string{"u1": "ABC234"}}, domain.MemberRoleMember)

	_, err := s.JoinChurch(context.Background(), "ZZZ222")
	require.ErrorIs(t, err, domain.ErrAlreadyMember)
	_, err = s.CreateChurch(context.Background(), "Other", "")
	require.ErrorIs(t, err, domain.ErrAlreadyMember)
	repo.AssertNotCalled(t, "FindChurchByInviteCode", anything, anything)
}

func TestLeaveChurchClearsState(t *testing.T) {
	repo := &MockChurchRepo{}
	profiles := &profileStub{code: map[string]string{"u1": "ABC234"}}
	s := loadedStore(t, repo, profiles, domain.MemberRoleMember)
	repo.On("DeleteMember", anything, "c1", "u1").Return(nil)

	require.NoError(t, s.LeaveChurch(context.Background()))
	require.False(t, s.HasChurch())
	require.Empty(t, s.ProfileCode())
	require.Equal(t, []string{"u1="}, profiles.calls)

	require.ErrorIs(t, s.LeaveChurch(context.Background()), domain.ErrNoChurch)
}

func TestRemoveMember(t *testing.T) {
	repo := &MockChurchRepo{}
	profiles := &profileStub{code: map[string]string{"u1": "ABC234", "u2": "ABC234"}}
	s := loadedStore(t, repo, profiles, domain.MemberRoleLeader)
	repo.On("DeleteMember", anything, "c1", "u2").Return(nil)

	require.NoError(t, s.RemoveMember(context.Background(), "u2"))
	members := s.Members()
	require.Len(t, members, 1)
	require.Equal(t, "u1", members[0].UserID)
	require.Equal(t, []string{"u2="}, profiles.calls)
}

func TestUpdateChurch(t *testing.T) {
	repo := &MockChurchRepo{}
	s := loadedStore(t, repo, &profileStub{code: map[string]string{"u1": "ABC234"}}, domain.MemberRoleLeader)
	repo.On("UpdateChurch", anything, "c1", "Grace City", "Downtown").Return(nil)

	require.NoError(t, s.UpdateChurch(context.Background(), "Grace City", " Downtown "))
	require.Equal(t, "Grace City", s.Church().Name)
	require.Equal(t, "Downtown", s.Church().Description)
}

func TestResetDropsChurch(t *testing.T) {
	repo := &MockChurchRepo{}
	s := loadedStore(t, repo, &profileStub{code: map[string]string{"u1": "ABC234"}}, domain.MemberRoleLeader)

	s.Reset("u9")
	require.Nil(t, s.Church())
	require.Empty(t, s.Members())
	require.True(t, s.Loading())

	s.Reset("")
	_, err := s.JoinChurch(context.Background(), "ABC234")
	require.ErrorIs(t, err, domain.ErrNotSignedIn)
}
