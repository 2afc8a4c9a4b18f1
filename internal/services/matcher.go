package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/repos"
)

// MatcherService decides which known screen a live observation represents.
type MatcherService interface {
	Identify(ctx context.Context, siteID string, obs types.Observation) (*types.Screen, error)
}

type matcherService struct {
	db      *gorm.DB
	log     *logger.Logger
	screens repos.ScreenRepo
}

func NewMatcherService(db *gorm.DB, log *logger.Logger, screens repos.ScreenRepo) MatcherService {
	return &matcherService{
		db:      db,
		log:     log.With("service", "MatcherService"),
		screens: screens,
	}
}

// Identify loads the site's screens and matches the observation against every
// candidate. Returns (nil, nil) when nothing matches; an ambiguous tie is an
// error the caller must see, never a silent pick.
func (s *matcherService) Identify(ctx context.Context, siteID string, obs types.Observation) (*types.Screen, error) {
	if siteID == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	candidates, err := s.screens.ListBySite(ctx, nil, siteID)
	if err != nil {
		return nil, pkgerr.Transient("document", "list_screens", err)
	}
	screen, err := Match(obs, candidates)
	if err != nil {
		return nil, err
	}
	if screen == nil {
		s.log.Debug("no screen matched observation", "site_id", siteID, "observation_url", obs.URL)
	}
	return screen, nil
}

// Match checks every candidate rather than returning the first hit: a
// candidate passes only if the URL pattern matches, the title pattern (when
// present) matches, all positive indicators are present and all negative
// indicators are absent. Survivors are scored by indicator specificity and
// the single highest scorer wins. Any tie at the top is ambiguous.
func Match(obs types.Observation, candidates []*types.Screen) (*types.Screen, error) {
	type scored struct {
		screen *types.Screen
		score  int
	}
	var passing []scored

	for _, cand := range candidates {
		if cand == nil {
			continue
		}
		sig, err := cand.DecodeSignature()
		if err != nil {
			// A screen with an undecodable signature cannot match anything.
			continue
		}
		if !sig.MatchURL(obs.URL) {
			continue
		}
		if !sig.MatchTitle(obs.Title) {
			continue
		}
		if !allPresent(obs, sig.Indicators) {
			continue
		}
		if anyPresent(obs, sig.NegativeIndicators) {
			continue
		}
		passing = append(passing, scored{screen: cand, score: sig.Specificity()})
	}

	if len(passing) == 0 {
		return nil, nil
	}

	best := passing[0]
	tied := []*types.Screen{best.screen}
	for _, p := range passing[1:] {
		switch {
		case p.score > best.score:
			best = p
			tied = []*types.Screen{p.screen}
		case p.score == best.score:
			tied = append(tied, p.screen)
		}
	}

	if len(tied) > 1 {
		ids := make([]string, 0, len(tied))
		for _, t := range tied {
			ids = append(ids, t.ID.String())
		}
		return nil, fmt.Errorf("%w: candidates %v", pkgerr.ErrAmbiguousMatch, ids)
	}
	return best.screen, nil
}

func allPresent(obs types.Observation, indicators []string) bool {
	for _, ind := range indicators {
		if !obs.Has(ind) {
			return false
		}
	}
	return true
}

func anyPresent(obs types.Observation, indicators []string) bool {
	for _, ind := range indicators {
		if obs.Has(ind) {
			return true
		}
	}
	return false
}
