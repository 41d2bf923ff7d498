package games

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/environment"
	"github.com/stretchr/testify/mock"
)

// provisionerStub mocks Provisioner. Successful provisions return an instance
// derived from the match id.
type provisionerStub struct {
	mock.Mock
}

func (stub *provisionerStub) Provision(ctx context.Context, matchID string, templateName string) (environment.Instance, error) {
	err := stub.Called(ctx, matchID, templateName).Error(1)
	if err != nil {
		return environment.Instance{}, err
	}
	return environment.Instance{
		MatchID:  matchID,
		Template: templateName,
		Name:     fmt.Sprintf("%s%s_1", environment.DefaultInstancePrefix, matchID),
		Dir:      "/instances/" + matchID,
	}, nil
}

func (stub *provisionerStub) Release(matchID string) error {
	return stub.Called(matchID).Error(0)
}

// statsStub mocks Stats.
type statsStub struct {
	mock.Mock
}

func (stub *statsStub) RecordWin(ctx context.Context, player PlayerID) error {
	return stub.Called(ctx, player).Error(0)
}

func (stub *statsStub) RecordLoss(ctx context.Context, player PlayerID) error {
	return stub.Called(ctx, player).Error(0)
}

func (stub *statsStub) RecordKill(ctx context.Context, player PlayerID) error {
	return stub.Called(ctx, player).Error(0)
}

// loadoutsStub mocks Loadouts.
type loadoutsStub struct {
	mock.Mock
}

func (stub *loadoutsStub) ApplyLoadout(player PlayerID) {
	stub.Called(player)
}

func (stub *loadoutsStub) ActivateAbilities(player PlayerID) {
	stub.Called(player)
}

// sentMessage is a message recorded by messengerRecorder.
type sentMessage struct {
	recipients   []PlayerID
	message      MessageKey
	placeholders Placeholders
}

// messengerRecorder records all broadcasts.
type messengerRecorder struct {
	sent []sentMessage
}

func (r *messengerRecorder) Broadcast(recipients []PlayerID, message MessageKey, placeholders Placeholders) {
	r.sent = append(r.sent, sentMessage{
		recipients:   append([]PlayerID{}, recipients...),
		message:      message,
		placeholders: placeholders,
	})
}

// received returns all messages with the given key the player received.
func (r *messengerRecorder) received(player PlayerID, message MessageKey) []sentMessage {
	received := make([]sentMessage, 0)
	for _, sent := range r.sent {
		if sent.message != message {
			continue
		}
		for _, recipient := range sent.recipients {
			if recipient == player {
				received = append(received, sent)
				break
			}
		}
	}
	return received
}

// last returns the last message with the given key.
func (r *messengerRecorder) last(message MessageKey) (sentMessage, bool) {
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].message == message {
			return r.sent[i], true
		}
	}
	return sentMessage{}, false
}

// avatarsRecorder records avatar state.
type avatarsRecorder struct {
	positions  map[PlayerID]Point
	instances  map[PlayerID]string
	spectators map[PlayerID]bool
	inLobby    map[PlayerID]bool
	cleared    map[PlayerID]int
	countdowns map[PlayerID][]int
}

func newAvatarsRecorder() *avatarsRecorder {
	return &avatarsRecorder{
		positions:  make(map[PlayerID]Point),
		instances:  make(map[PlayerID]string),
		spectators: make(map[PlayerID]bool),
		inLobby:    make(map[PlayerID]bool),
		cleared:    make(map[PlayerID]int),
		countdowns: make(map[PlayerID][]int),
	}
}

func (r *avatarsRecorder) Teleport(player PlayerID, instance string, point Point) {
	r.positions[player] = point
	r.instances[player] = instance
	r.inLobby[player] = false
}

func (r *avatarsRecorder) ClearInventory(player PlayerID) {
	r.cleared[player]++
}

func (r *avatarsRecorder) SetSpectator(player PlayerID, spectator bool) {
	r.spectators[player] = spectator
}

func (r *avatarsRecorder) ReturnToLobby(player PlayerID) {
	r.inLobby[player] = true
	delete(r.positions, player)
	delete(r.instances, player)
}

func (r *avatarsRecorder) ShowCountdown(player PlayerID, seconds int) {
	r.countdowns[player] = append(r.countdowns[player], seconds)
}
