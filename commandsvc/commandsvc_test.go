package commandsvc

import (
	"context"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/games"
	"github.com/lefinal/minigame-host/portal"
	"github.com/lefinal/minigame-host/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
	"time"
)

const timeout = 3 * time.Second

// registryStub mocks Registry.
type registryStub struct {
	mock.Mock
}

func (stub *registryStub) AddTemplate(ctx context.Context, template games.Template) error {
	return stub.Called(ctx, template).Error(0)
}

func (stub *registryStub) CreateMatch(ctx context.Context, templateName string) (games.MatchStatus, error) {
	args := stub.Called(ctx, templateName)
	return args.Get(0).(games.MatchStatus), args.Error(1)
}

func (stub *registryStub) AddPlayer(ctx context.Context, player games.Player, target string) (games.MatchStatus, error) {
	args := stub.Called(ctx, player, target)
	return args.Get(0).(games.MatchStatus), args.Error(1)
}

func (stub *registryStub) RemovePlayer(ctx context.Context, player games.PlayerID) error {
	return stub.Called(ctx, player).Error(0)
}

func (stub *registryStub) MatchByName(ctx context.Context, name string) (games.MatchStatus, error) {
	args := stub.Called(ctx, name)
	return args.Get(0).(games.MatchStatus), args.Error(1)
}

func (stub *registryStub) Start(ctx context.Context, matchID games.MatchID) error {
	return stub.Called(ctx, matchID).Error(0)
}

func (stub *registryStub) Stop(ctx context.Context, matchID games.MatchID) error {
	return stub.Called(ctx, matchID).Error(0)
}

func (stub *registryStub) Quickstart(ctx context.Context, matchID games.MatchID) error {
	return stub.Called(ctx, matchID).Error(0)
}

func (stub *registryStub) RecordKill(ctx context.Context, killer games.PlayerID, victim games.PlayerID) error {
	return stub.Called(ctx, killer, victim).Error(0)
}

// templateStoreStub mocks TemplateStore.
type templateStoreStub struct {
	mock.Mock
}

func (stub *templateStoreStub) Save(template games.Template) error {
	return stub.Called(template).Error(0)
}

// statsStoreStub mocks StatsStore.
type statsStoreStub struct {
	mock.Mock
}

func (stub *statsStoreStub) PlayerStats(ctx context.Context, player games.PlayerID) (store.PlayerStats, error) {
	args := stub.Called(ctx, player)
	return args.Get(0).(store.PlayerStats), args.Error(1)
}

func (stub *statsStoreStub) Leaderboard(ctx context.Context, limit int) ([]store.PlayerStats, error) {
	args := stub.Called(ctx, limit)
	leaderboard, _ := args.Get(0).([]store.PlayerStats)
	return leaderboard, args.Error(1)
}

func TestNewCommandService(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	registry := &registryStub{}
	templates := &templateStoreStub{}
	stats := &statsStoreStub{}
	s := NewCommandService(logger, portalStub, registry, templates, stats).(*commandService)
	require.NotNil(t, s, "should not be nil")
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Equal(t, registry, s.registry, "should set correct registry")
	assert.Equal(t, templates, s.templates, "should set correct template store")
	assert.Equal(t, stats, s.stats, "should set correct stats store")
}

// commandServiceSuite tests commandService.
type commandServiceSuite struct {
	suite.Suite
	portalStub *portal.Stub
	registry   *registryStub
	templates  *templateStoreStub
	stats      *statsStoreStub
	service    *commandService
	matchID    games.MatchID
}

func (suite *commandServiceSuite) SetupTest() {
	logger := zap.New(zapcore.NewNopCore())
	suite.portalStub = portal.NewStub(logger)
	suite.registry = &registryStub{}
	suite.templates = &templateStoreStub{}
	suite.stats = &statsStoreStub{}
	suite.service = NewCommandService(logger, suite.portalStub, suite.registry,
		suite.templates, suite.stats).(*commandService)
	suite.matchID = games.NewMatchID()
}

// TestSubscribeOnRun assures that we subscribe to all command topics.
func (suite *commandServiceSuite) TestSubscribeOnRun() {
	topics := []portal.Topic{topicJoin, topicLeave, topicCreate, topicStart, topicStop, topicQuickstart, topicKill,
		topicTemplates, topicStats, topicLeaderboard}
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, cancelRun := context.WithCancel(timeout)
	var subscribed sync.WaitGroup
	subscribed.Add(len(topics))
	for _, topic := range topics {
		suite.portalStub.On("Subscribe", mock.Anything, topic).
			Run(func(_ mock.Arguments) { subscribed.Done() }).
			Return(portal.NewSelfClosingMockNewsletter(runCtx)).Once()
	}
	defer suite.portalStub.AssertExpectations(suite.T())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		err := suite.service.Run(runCtx)
		suite.Nil(err, "should not fail")
	}()
	go func() {
		subscribed.Wait()
		cancelRun()
	}()
	select {
	case <-timeout.Done():
		suite.Fail("timeout", "should return after all subscribed")
	case <-runDone:
	}
}

// handle runs the service, sends the payload to the given topic and waits until
// a result was published. It returns the published event.CommandResult.
func (suite *commandServiceSuite) handle(topic portal.Topic, payload any) event.CommandResult {
	return suite.handleWithResponse(topic, payload, topicResults).(event.CommandResult)
}

// handleWithResponse runs the service, sends the payload to the given topic and
// waits until a response was published to the response topic. It returns the
// published payload.
func (suite *commandServiceSuite) handleWithResponse(topic portal.Topic, payload any, responseTopic portal.Topic) any {
	var wg sync.WaitGroup
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, cancelRun := context.WithCancel(timeout)
	// Setup.
	receive := make(chan event.Event[any])
	suite.portalStub.On("Subscribe", mock.Anything, topic).
		Return(portal.NewSelfClosingReceivingMockNewsletter(runCtx, receive)).Once()
	suite.portalStub.On("Subscribe", mock.Anything, mock.Anything).
		Return(portal.NewSelfClosingMockNewsletter(runCtx))
	results := make(chan any, 1)
	suite.portalStub.On("Publish", mock.Anything, responseTopic, mock.Anything).
		Run(func(args mock.Arguments) { results <- args.Get(2) }).Once()
	// Handle.
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.service.Run(runCtx)
		suite.Nil(err, "should not fail")
	}()
	// Send request.
	select {
	case <-timeout.Done():
		suite.FailNow("timeout", "should have picked up event within timeout")
	case receive <- event.Event[any]{Payload: payload}:
	}
	var result any
	select {
	case <-timeout.Done():
		suite.FailNow("timeout", "should have published result within timeout")
	case result = <-results:
	}
	cancelRun()
	wg.Wait()
	suite.portalStub.AssertExpectations(suite.T())
	suite.registry.AssertExpectations(suite.T())
	return result
}

func (suite *commandServiceSuite) TestJoin() {
	suite.registry.On("AddPlayer", mock.Anything, games.Player{
		ID:   "p1",
		Name: "Alice",
		Tier: games.TierPrivileged1,
	}, "arena").Return(games.MatchStatus{Name: "arena-1"}, nil).Once()
	result := suite.handle(topicJoin, event.JoinRequest{
		RequestID: "r1",
		Player:    event.PlayerPayload{ID: "p1", Name: "Alice", Tier: 1},
		Target:    "arena",
	})
	suite.Equal(event.CommandResult{
		RequestID: "r1",
		Command:   commandJoin,
		Success:   true,
		Match:     "arena-1",
	}, result)
}

func (suite *commandServiceSuite) TestJoinDefaultsName() {
	suite.registry.On("AddPlayer", mock.Anything, games.Player{ID: "p1", Name: "p1"}, "").
		Return(games.MatchStatus{Name: "arena-1"}, nil).Once()
	result := suite.handle(topicJoin, event.JoinRequest{Player: event.PlayerPayload{ID: "p1"}})
	suite.True(result.Success, "should succeed")
}

func (suite *commandServiceSuite) TestJoinMissingPlayerID() {
	result := suite.handle(topicJoin, event.JoinRequest{RequestID: "r1"})
	suite.False(result.Success, "should fail")
	suite.Require().NotNil(result.Error, "should include error")
	suite.Equal(string(errors.ErrBadRequest), result.Error.Code, "should return bad request")
	suite.registry.AssertNotCalled(suite.T(), "AddPlayer", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *commandServiceSuite) TestJoinInvalidTier() {
	for _, tier := range []int{-1, 4, 99} {
		result := suite.handle(topicJoin, event.JoinRequest{
			RequestID: "r1",
			Player:    event.PlayerPayload{ID: "p1", Tier: tier},
		})
		suite.False(result.Success, "should fail for tier %d", tier)
		suite.Require().NotNil(result.Error, "should include error")
		suite.Equal(string(errors.ErrBadRequest), result.Error.Code, "should return bad request")
	}
	suite.registry.AssertNotCalled(suite.T(), "AddPlayer", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *commandServiceSuite) TestJoinFail() {
	suite.registry.On("AddPlayer", mock.Anything, mock.Anything, "arena-1").
		Return(games.MatchStatus{}, errors.NewMatchFullError("arena-1", 4)).Once()
	result := suite.handle(topicJoin, event.JoinRequest{
		RequestID: "r1",
		Player:    event.PlayerPayload{ID: "p1", Name: "Alice"},
		Target:    "arena-1",
	})
	suite.False(result.Success, "should fail")
	suite.Require().NotNil(result.Error, "should include error")
	suite.Equal(string(errors.KindMatchFull), result.Error.Kind, "should include kind")
}

func (suite *commandServiceSuite) TestLeave() {
	suite.registry.On("RemovePlayer", mock.Anything, games.PlayerID("p1")).Return(nil).Once()
	result := suite.handle(topicLeave, event.LeaveRequest{RequestID: "r1", PlayerID: "p1"})
	suite.Equal(event.CommandResult{RequestID: "r1", Command: commandLeave, Success: true}, result)
}

func (suite *commandServiceSuite) TestCreate() {
	suite.registry.On("CreateMatch", mock.Anything, "castle").
		Return(games.MatchStatus{Name: "castle-1"}, nil).Once()
	result := suite.handle(topicCreate, event.CreateRequest{RequestID: "r1", Template: "castle"})
	suite.True(result.Success, "should succeed")
	suite.Equal("castle-1", result.Match, "should include match name")
}

func (suite *commandServiceSuite) TestStart() {
	suite.registry.On("MatchByName", mock.Anything, "arena-1").
		Return(games.MatchStatus{ID: suite.matchID, Name: "arena-1"}, nil).Once()
	suite.registry.On("Start", mock.Anything, suite.matchID).Return(nil).Once()
	result := suite.handle(topicStart, event.MatchRequest{RequestID: "r1", Match: "arena-1"})
	suite.Equal(event.CommandResult{
		RequestID: "r1",
		Command:   commandStart,
		Success:   true,
		Match:     "arena-1",
	}, result)
}

func (suite *commandServiceSuite) TestStartUnknownMatch() {
	suite.registry.On("MatchByName", mock.Anything, "arena-1").
		Return(games.MatchStatus{}, errors.NewUnknownMatchError("arena-1")).Once()
	result := suite.handle(topicStart, event.MatchRequest{RequestID: "r1", Match: "arena-1"})
	suite.False(result.Success, "should fail")
	suite.Require().NotNil(result.Error, "should include error")
	suite.Equal(string(errors.KindUnknownMatch), result.Error.Kind, "should include kind")
	suite.registry.AssertNotCalled(suite.T(), "Start", mock.Anything, mock.Anything)
}

func (suite *commandServiceSuite) TestStop() {
	suite.registry.On("MatchByName", mock.Anything, "arena-1").
		Return(games.MatchStatus{ID: suite.matchID, Name: "arena-1"}, nil).Once()
	suite.registry.On("Stop", mock.Anything, suite.matchID).Return(nil).Once()
	result := suite.handle(topicStop, event.MatchRequest{Match: "arena-1"})
	suite.True(result.Success, "should succeed")
}

func (suite *commandServiceSuite) TestQuickstart() {
	suite.registry.On("MatchByName", mock.Anything, "arena-1").
		Return(games.MatchStatus{ID: suite.matchID, Name: "arena-1"}, nil).Once()
	suite.registry.On("Quickstart", mock.Anything, suite.matchID).Return(errors.Error{
		Code: errors.ErrBadRequest,
		Kind: errors.KindMatchPhaseViolation,
	}).Once()
	result := suite.handle(topicQuickstart, event.MatchRequest{Match: "arena-1"})
	suite.False(result.Success, "should fail")
	suite.Require().NotNil(result.Error, "should include error")
	suite.Equal(string(errors.KindMatchPhaseViolation), result.Error.Kind, "should include kind")
}

func (suite *commandServiceSuite) TestKill() {
	suite.registry.On("RecordKill", mock.Anything, games.PlayerID("k"), games.PlayerID("v")).Return(nil).Once()
	result := suite.handle(topicKill, event.KillReport{RequestID: "r1", KillerID: "k", VictimID: "v"})
	suite.Equal(event.CommandResult{RequestID: "r1", Command: commandKill, Success: true}, result)
}

func (suite *commandServiceSuite) TestKillInternalErrorHidesDetails() {
	suite.registry.On("RecordKill", mock.Anything, games.PlayerID(""), games.PlayerID("v")).
		Return(errors.NewInternalError("sad life", errors.Details{"secret": true})).Once()
	result := suite.handle(topicKill, event.KillReport{VictimID: "v"})
	suite.False(result.Success, "should fail")
	suite.Require().NotNil(result.Error, "should include error")
	suite.Equal(string(errors.ErrInternal), result.Error.Code, "should return internal")
	suite.Nil(result.Error.Details, "should hide details")
}

func (suite *commandServiceSuite) TestTemplate() {
	template := games.Template{
		Name:           "arena",
		MinPlayers:     2,
		MaxPlayers:     4,
		WaitingSpawn:   &games.Point{X: 1},
		RoundSpawn:     &games.Point{X: 2},
		SpectatorSpawn: &games.Point{X: 3},
	}
	suite.registry.On("AddTemplate", mock.Anything, template).Return(nil).Once()
	suite.templates.On("Save", template).Return(nil).Once()
	result := suite.handle(topicTemplates, event.TemplateRequest{RequestID: "r1", Template: template})
	suite.Equal(event.CommandResult{RequestID: "r1", Command: commandTemplate, Success: true}, result)
	suite.templates.AssertExpectations(suite.T())
}

func (suite *commandServiceSuite) TestTemplateRejected() {
	suite.registry.On("AddTemplate", mock.Anything, mock.Anything).Return(errors.Error{
		Code: errors.ErrBadRequest,
		Kind: errors.KindIncompleteTemplate,
	}).Once()
	result := suite.handle(topicTemplates, event.TemplateRequest{RequestID: "r1"})
	suite.False(result.Success, "should fail")
	suite.Require().NotNil(result.Error, "should include error")
	suite.Equal(string(errors.KindIncompleteTemplate), result.Error.Kind, "should include kind")
	suite.templates.AssertNotCalled(suite.T(), "Save", mock.Anything)
}

func (suite *commandServiceSuite) TestStats() {
	stats := store.PlayerStats{PlayerID: "p1", Wins: 3, GamesPlayed: 4}
	suite.stats.On("PlayerStats", mock.Anything, games.PlayerID("p1")).Return(stats, nil).Once()
	response := suite.handleWithResponse(topicStats, event.StatsRequest{RequestID: "r1", PlayerID: "p1"}, topicPlayerStats("p1"))
	suite.Equal(event.StatsResponse{RequestID: "r1", Stats: stats}, response)
	suite.stats.AssertExpectations(suite.T())
}

func (suite *commandServiceSuite) TestStatsFail() {
	suite.stats.On("PlayerStats", mock.Anything, games.PlayerID("p1")).
		Return(store.PlayerStats{}, errors.NewInternalError("sad life", nil)).Once()
	result := suite.handle(topicStats, event.StatsRequest{RequestID: "r1", PlayerID: "p1"})
	suite.False(result.Success, "should fail")
	suite.Equal(commandStats, result.Command, "should set command")
}

func (suite *commandServiceSuite) TestLeaderboardDefaultLimit() {
	leaderboard := []store.PlayerStats{{PlayerID: "p1", Wins: 3}, {PlayerID: "p2", Wins: 1}}
	suite.stats.On("Leaderboard", mock.Anything, defaultLeaderboardLimit).Return(leaderboard, nil).Once()
	response := suite.handleWithResponse(topicLeaderboard, event.StatsRequest{RequestID: "r1"}, topicLeaderboardResult)
	suite.Equal(event.StatsResponse{RequestID: "r1", Stats: leaderboard}, response)
	suite.stats.AssertExpectations(suite.T())
}

func TestCommandService(t *testing.T) {
	suite.Run(t, new(commandServiceSuite))
}

// TestRunWithoutStats assures that stats topics are not subscribed to if no
// StatsStore is set.
func TestRunWithoutStats(t *testing.T) {
	portalStub := &portal.Stub{}
	s := NewCommandService(zap.New(zapcore.NewNopCore()), portalStub, &registryStub{}, &templateStoreStub{}, nil)
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runCtx, cancelRun := context.WithCancel(timeout)
	cancelRun()
	portalStub.On("Subscribe", mock.Anything, mock.Anything).Return(portal.NewSelfClosingMockNewsletter(runCtx))
	err := s.Run(runCtx)
	require.NoError(t, err, "should not fail")
	portalStub.AssertNumberOfCalls(t, "Subscribe", 8)
	portalStub.AssertNotCalled(t, "Subscribe", mock.Anything, topicStats)
}
