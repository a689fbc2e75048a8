/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 64 << 10

type gameAPI struct {
	cfg     *Config
	store   *GameStore
	boards  *BoardGenerator
	advisor *HintAdvisor
}

type newGameRequest struct {
	AITeam *string `json:"aiTeam"`
}

type revealRequest struct {
	Index *int `json:"index"`
}

// hintRequest only reads team and revealed; any words or types a client
// sends along are ignored in favour of the stored board.
type hintRequest struct {
	Team     string `json:"team"`
	Revealed []bool `json:"revealed"`
}

// decodeBody treats an empty body as io.EOF so callers can decide whether
// one is required.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return err
	default:
		return &ValidationError{Field: "body", Err: err}
	}
}

func (a *gameAPI) serveNewGame(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		var req newGameRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			serveError(a.cfg, w, r, "GAMES", "new game", err, errs)

			return
		}

		var aiTeam *Role
		if req.AITeam != nil {
			team, err := parseTeam(*req.AITeam)
			if err != nil {
				serveError(a.cfg, w, r, "GAMES", "new game", err, errs)

				return
			}
			aiTeam = &team
		}

		board, err := a.boards.Generate(r.Context())
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "new game", err, errs)

			return
		}

		game, err := a.store.Create(board, aiTeam)
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "new game", err, errs)

			return
		}

		written, err := writeJSON(a.cfg, w, http.StatusCreated, fullView(game))
		if err != nil {
			errs <- err

			return
		}

		logf(a.cfg, "GAMES: Created game %s (%s starts, %s) for %s in %s",
			game.ID,
			game.StartingPlayer,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func (a *gameAPI) serveOperative(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")

		game, err := a.store.Get(id)
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "game "+id, err, errs)

			return
		}

		if _, err := writeJSON(a.cfg, w, http.StatusOK, operativeView(game)); err != nil {
			errs <- err
		}
	}
}

func (a *gameAPI) serveSpymaster(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")

		team, err := parseTeam(ps.ByName("team"))
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "spymaster view of "+id, err, errs)

			return
		}

		game, err := a.store.Get(id)
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "spymaster view of "+id, err, errs)

			return
		}

		view, err := spymasterView(game, team)
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "spymaster view of "+id, err, errs)

			return
		}

		if _, err := writeJSON(a.cfg, w, http.StatusOK, view); err != nil {
			errs <- err
		}
	}
}

func (a *gameAPI) serveReveal(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")

		var req revealRequest
		if err := decodeBody(w, r, &req); err != nil || req.Index == nil {
			if err == nil || errors.Is(err, io.EOF) {
				err = &ValidationError{Field: "index", Err: ErrInvalidIndex}
			}
			serveError(a.cfg, w, r, "GAMES", "reveal in "+id, err, errs)

			return
		}

		game, err := a.store.Reveal(id, *req.Index)
		if err != nil {
			serveError(a.cfg, w, r, "GAMES", "reveal in "+id, err, errs)

			return
		}

		logf(a.cfg, "GAMES: Revealed card %d (%q) in %s for %s", *req.Index, game.Words[*req.Index], id, realIP(r))

		if _, err := writeJSON(a.cfg, w, http.StatusOK, operativeView(game)); err != nil {
			errs <- err
		}
	}
}

func (a *gameAPI) serveHint(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		id := ps.ByName("id")

		var req hintRequest
		if err := decodeBody(w, r, &req); err != nil {
			if errors.Is(err, io.EOF) {
				err = &ValidationError{Field: "team", Err: ErrInvalidTeam}
			}
			serveError(a.cfg, w, r, "HINTS", "hint for "+id, err, errs)

			return
		}

		team, err := parseTeam(req.Team)
		if err != nil {
			serveError(a.cfg, w, r, "HINTS", "hint for "+id, err, errs)

			return
		}

		game, err := a.store.Get(id)
		if err != nil {
			serveError(a.cfg, w, r, "HINTS", "hint for "+id, err, errs)

			return
		}

		hint, err := a.advisor.Suggest(r.Context(), game, team, mergeRevealed(game.Revealed, req.Revealed))
		if err != nil {
			serveError(a.cfg, w, r, "HINTS", "hint for "+id, err, errs)

			return
		}

		if _, err := writeJSON(a.cfg, w, http.StatusOK, hint); err != nil {
			errs <- err

			return
		}

		logf(a.cfg, "HINTS: Suggested %q for %d to %s in %s for %s in %s",
			hint.Clue,
			hint.Count,
			team,
			id,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// mergeRevealed ORs a client's reveal state into the stored one. Reveals are
// one-way, so this can only shrink the set of cards a hint considers.
func mergeRevealed(stored, client []bool) []bool {
	merged := make([]bool, len(stored))
	copy(merged, stored)

	if len(client) != len(stored) {
		return merged
	}

	for i, v := range client {
		merged[i] = merged[i] || v
	}

	return merged
}

// registerGameRoutes sets up:
//   - POST $path/new                    → generate and store a board, full record
//   - GET  $path/:id                    → operative view
//   - GET  $path/:id/spymaster/:team    → masked spymaster view
//   - POST $path/:id/reveal             → flip one card
//   - POST $path/:id/hint               → suggested clue for a team
//   - GET  $path/:id/qr                 → PNG QR code for the operative link
//   - GET  $path/:id/spymaster/:team/qr → PNG QR code for a spymaster link
func registerGameRoutes(cfg *Config, path string, mux *httprouter.Router, a *gameAPI, errs chan<- error) {
	base := cfg.prefix + path

	newGame := a.serveNewGame(errs)

	// httprouter won't register a static "new" segment next to ":id", so
	// POST $path/:id dispatches on the id itself.
	mux.POST(base+"/:id", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("id") != "new" {
			_, _ = writeJSON(cfg, w, http.StatusNotFound, errorResponse{Error: "not found"})

			return
		}
		newGame(w, r, ps)
	})

	// Unmasked types are only returned at creation; reads get the operative view.
	mux.GET(base+"/:id", a.serveOperative(errs))
	mux.GET(base+"/:id/spymaster/:team", a.serveSpymaster(errs))
	mux.POST(base+"/:id/reveal", a.serveReveal(errs))
	mux.POST(base+"/:id/hint", a.serveHint(errs))

	mux.GET(base+"/:id/qr", serveQR(cfg, a.store, errs))
	mux.GET(base+"/:id/spymaster/:team/qr", serveQR(cfg, a.store, errs))
}
