package games

import (
	"context"
	"github.com/lefinal/minigame-host/errors"
	"go.uber.org/zap"
)

// pendingMatch is a match whose environment is being provisioned for a joining
// player. Players that need a new match of the same template meanwhile wait
// for it instead of creating their own one.
type pendingMatch struct {
	template Template
	// joiners is the number of players waiting for the match including the one
	// that triggered the creation. It is capped at Template.MaxPlayers.
	joiners int
	// done is closed after the match was registered or creation failed.
	done chan struct{}
	// err is the creation error. Only read it after done is closed.
	err error
}

// pendingFor returns a pending match with room for another joiner. If the
// template name is empty, matches of every template are considered.
//
// Must only be called from the loop.
func (s *Service) pendingFor(templateName string) *pendingMatch {
	for _, p := range s.creating {
		if p.joiners < p.template.MaxPlayers && (templateName == "" || p.template.Name == templateName) {
			return p
		}
	}
	return nil
}

// finishCreating forgets the pending match and wakes up all waiting players.
//
// Must only be called from the loop.
func (s *Service) finishCreating(p *pendingMatch, err error) {
	for i, other := range s.creating {
		if other == p {
			s.creating = append(s.creating[:i], s.creating[i+1:]...)
			break
		}
	}
	p.err = err
	close(p.done)
}

// awaitPending blocks until the pending match was created or the
// context.Context is done.
func (s *Service) awaitPending(ctx context.Context, p *pendingMatch) error {
	select {
	case <-p.done:
		if p.err != nil {
			return errors.Wrap(p.err, "create match", errors.Details{"template": p.template.Name})
		}
		return nil
	case <-ctx.Done():
		s.loop.Post(func() {
			p.joiners--
		})
		return errors.NewContextAbortedError("wait for match creation")
	}
}

// matchFor resolves the join target on the loop and calls admit with the match
// to use. The target may be a match name, a template name or empty for quick
// join. If a new match is needed and another caller is already creating one of
// a suitable template, the caller waits for it and matchmaking is repeated.
// Otherwise, a new match is created and admitted directly after registration.
//
// The optional check runs on the loop before resolving the target.
func (s *Service) matchFor(ctx context.Context, target string, check func() error, admit func(m *Match) error) error {
	for {
		var pending *pendingMatch
		creating := false
		err := s.do(ctx, func() error {
			if check != nil {
				if err := check(); err != nil {
					return err
				}
			}
			m, templateName, err := s.resolveJoinTarget(target)
			if err != nil {
				return err
			}
			if m != nil {
				return admit(m)
			}
			filter := templateName
			if target == "" {
				filter = ""
			}
			if p := s.pendingFor(filter); p != nil {
				p.joiners++
				pending = p
				return nil
			}
			pending = &pendingMatch{
				template: s.templates[templateName],
				joiners:  1,
				done:     make(chan struct{}),
			}
			s.creating = append(s.creating, pending)
			creating = true
			return nil
		})
		if err != nil || pending == nil {
			return err
		}
		if creating {
			return s.createFor(ctx, pending, admit)
		}
		s.logger.Debug("waiting for match creation", zap.String("template", pending.template.Name))
		err = s.awaitPending(ctx, pending)
		if err != nil {
			return err
		}
	}
}

// createFor creates the pending match and admits with it. Waiting players are
// released in any case.
func (s *Service) createFor(ctx context.Context, p *pendingMatch, admit func(m *Match) error) error {
	created, createErr := s.CreateMatch(ctx, p.template.Name)
	finished := false
	err := s.do(ctx, func() error {
		finished = true
		s.finishCreating(p, createErr)
		if createErr != nil {
			return errors.Wrap(createErr, "create match", nil)
		}
		m := s.matchByID(created.ID)
		if m == nil {
			return errors.NewUnknownMatchError(created.Name)
		}
		err := admit(m)
		if err != nil {
			s.reclaimIfEmpty(m)
			return err
		}
		return nil
	})
	if !finished {
		s.loop.Post(func() {
			s.finishCreating(p, createErr)
		})
	}
	return err
}

// reclaimIfEmpty stops the waiting match if nobody is in it and another waiting
// match of the same template is left for joining players.
//
// Must only be called from the loop.
func (s *Service) reclaimIfEmpty(m *Match) {
	if m.stopped || m.phase != PhaseWaiting || m.memberCount() > 0 {
		return
	}
	for _, other := range s.waiting {
		if other != m && !other.stopped && other.template.Name == m.template.Name {
			m.logger.Debug("reclaiming empty waiting match")
			s.stop(m)
			return
		}
	}
}
