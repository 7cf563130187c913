package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/AdamBeresnev/dojo-brackets/internal/export"
	"github.com/AdamBeresnev/dojo-brackets/internal/httputil"
	"github.com/AdamBeresnev/dojo-brackets/internal/live"
	"github.com/AdamBeresnev/dojo-brackets/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(app.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: app.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "No route for "+r.URL.Path, nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", app.metrics.Handler())

	r.Route("/tournaments", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			tournaments, err := app.tournaments.ListTournaments(r.Context())
			if err != nil {
				httputil.InternalServerError(w, "Failed to list tournaments", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, tournaments)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Name string `json:"name"`
			}
			if !decodeJSON(w, r, &body) {
				return
			}
			tournament, err := app.tournaments.CreateTournament(r.Context(), body.Name)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, tournament)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				tournament, err := app.tournaments.GetTournament(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournament)
			})

			r.Get("/registrations", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				regs, err := app.registrations.List(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, regs)
			})

			r.Post("/registrations", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				var in service.RegistrationInput
				if !decodeJSON(w, r, &in) {
					return
				}
				reg, err := app.registrations.Create(r.Context(), id, in)
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, reg)
			})

			r.Get("/brackets", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				views, err := app.matches.GetBrackets(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, views)
			})

			// Regeneration deletes the existing brackets and every recorded result in them, so
			// callers must pass ?confirm=replace once brackets exist.
			r.Post("/brackets/generate", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				summary, err := app.generation.Generate(r.Context(), id, generateOptions(r))
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, summary)
			})

			r.Get("/brackets/generate/stream", app.generateStream)

			r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				standings, err := app.standings.TournamentStandings(r.Context(), id)
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, standings)
			})

			r.Post("/standings/publish", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				res, err := app.standings.Publish(r.Context(), id)
				if errors.Is(err, export.ErrExportDisabled) {
					httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Code: bracket.KindInternal, Message: err.Error()})
					return
				}
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, res)
			})

			r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				app.hub.ServeRoom(w, r, live.RoomFor(id))
			})
		})
	})

	r.Route("/registrations/{id}", func(r chi.Router) {
		r.Post("/approve", app.registrationStatus(app.registrations.Approve))
		r.Post("/reject", app.registrationStatus(app.registrations.Reject))

		r.Put("/category", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var body struct {
				Age    string `json:"categoryAge"`
				Weight string `json:"categoryWeight"`
				Belt   string `json:"categoryBelt"`
			}
			if !decodeJSON(w, r, &body) {
				return
			}
			change, err := app.registrations.MoveCategory(r.Context(), id, bracket.NewKey(body.Age, body.Weight, body.Belt))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, change)
		})
	})

	r.Route("/brackets/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			view, err := app.matches.GetBracket(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, view)
		})

		r.Post("/lock", app.bracketState(app.matches.LockBracket))
		r.Post("/unlock", app.bracketState(app.matches.UnlockBracket))

		r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			standings, err := app.standings.BracketStandings(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, standings)
		})
	})

	r.Route("/matches/{id}", func(r chi.Router) {
		r.Put("/scores", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var body struct {
				ScoreA int `json:"scoreA"`
				ScoreB int `json:"scoreB"`
			}
			if !decodeJSON(w, r, &body) {
				return
			}
			update, err := app.matches.UpdateScores(r.Context(), id, body.ScoreA, body.ScoreB)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, update)
		})

		r.Post("/result", app.matchResult(app.matches.RecordResult))
		r.Post("/override", app.matchResult(app.matches.OverrideResult))
	})

	return r
}

func (app *application) allowedOrigins() []string {
	if len(app.cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return app.cfg.CORSAllowedOrigins
}

func (app *application) registrationStatus(fn func(ctx context.Context, id uuid.UUID) (*service.RegistrationChange, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		change, err := fn(r.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, change)
	}
}

func (app *application) bracketState(fn func(ctx context.Context, id uuid.UUID) (*bracket.Bracket, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		b, err := fn(r.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, b)
	}
}

func (app *application) matchResult(fn func(ctx context.Context, id uuid.UUID, res bracket.Result) (*service.MatchUpdate, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var res bracket.Result
		if !decodeJSON(w, r, &res) {
			return
		}
		if res.WinnerID == uuid.Nil {
			httputil.BadRequest(w, "winnerId is required", nil)
			return
		}
		update, err := fn(r.Context(), id, res)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, update)
	}
}

func generateOptions(r *http.Request) service.GenerateOptions {
	return service.GenerateOptions{ReplaceExisting: r.URL.Query().Get("confirm") == "replace"}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httputil.BadRequest(w, "Invalid JSON body", err)
		return false
	}
	return true
}
