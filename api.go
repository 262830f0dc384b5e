/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/protocol"
)

const maxBodySize = 64 * 1024

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type partyReply struct {
	Message string            `json:"message,omitempty"`
	Party   []*catalog.Entity `json:"party"`
	Version uint64            `json:"version"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return w.Write(append(data, '\n'))
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	_, _ = writeJSON(cfg, w, protocol.Status(err), apiError{
		Error: protocol.Describe(err),
		Code:  protocol.Code(err),
	})
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrInvalidPayload, err)
	}

	return data, nil
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

type apiFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error)

type mutationFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (protocol.Notice, error)

// apiHandle wraps fn with the error reply and the access log line shared by
// every API route.
func apiHandle(cfg *Config, errs chan<- error, name string, fn apiFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		reply, err := fn(w, r, p)
		if err != nil {
			writeError(cfg, w, err)

			logf(cfg, "SERVE: %s rejected for %s: %v", name, realIP(r), err)

			return
		}

		written, err := writeJSON(cfg, w, http.StatusOK, reply)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: %s (%s) to %s in %s",
			name,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// mutation runs fn as an external caller and replies with the resulting
// party.
func (s *server) mutation(fn mutationFunc) apiFunc {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (any, error) {
		n, err := fn(w, r, p)
		if err != nil {
			return nil, err
		}

		return partyReply{
			Message: n.Message,
			Party:   s.handler.Party(),
			Version: s.store.Version(),
		}, nil
	}
}

func registerAPI(cfg *Config, s *server, mux *httprouter.Router) {
	h := s.handler

	change := func(name string, fn mutationFunc) httprouter.Handle {
		next := apiHandle(cfg, s.errs, name, s.mutation(fn))

		return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			if !sameOrigin(r) {
				_, _ = writeJSON(cfg, w, http.StatusForbidden, apiError{
					Error: "cross-origin request refused",
					Code:  "forbidden_origin",
				})

				logf(cfg, "SERVE: %s refused for %s from origin %s", name, realIP(r), r.Header.Get("Origin"))

				return
			}

			next(w, r, p)
		}
	}

	mux.GET(cfg.prefix+"/api/characters", apiHandle(cfg, s.errs, "Character list", func(_ http.ResponseWriter, _ *http.Request, _ httprouter.Params) (any, error) {
		return map[string][]catalog.Entity{"characters": s.catalog.All()}, nil
	}))

	mux.GET(cfg.prefix+"/api/character/:name", apiHandle(cfg, s.errs, "Character", func(_ http.ResponseWriter, _ *http.Request, p httprouter.Params) (any, error) {
		return s.catalog.Find(p.ByName("name"))
	}))

	mux.GET(cfg.prefix+"/api/party", apiHandle(cfg, s.errs, "Party", func(_ http.ResponseWriter, _ *http.Request, _ httprouter.Params) (any, error) {
		return partyReply{Party: h.Party(), Version: s.store.Version()}, nil
	}))

	mux.PUT(cfg.prefix+"/api/party/:slot", change("Party add", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (protocol.Notice, error) {
		slot, err := protocol.ParseSlot(p.ByName("slot"))
		if err != nil {
			return protocol.Notice{}, err
		}

		body, err := readBody(w, r)
		if err != nil {
			return protocol.Notice{}, err
		}

		req, err := protocol.DecodeSelect(body)
		if err != nil {
			return protocol.Notice{}, err
		}

		return h.Add("", protocol.AddRequest{CharacterName: req.CharacterName, Slot: slot})
	}))

	mux.DELETE(cfg.prefix+"/api/party/:slot", change("Party remove", func(_ http.ResponseWriter, _ *http.Request, p httprouter.Params) (protocol.Notice, error) {
		slot, err := protocol.ParseSlot(p.ByName("slot"))
		if err != nil {
			return protocol.Notice{}, err
		}

		return h.Remove("", protocol.RemoveRequest{Slot: slot})
	}))

	mux.POST(cfg.prefix+"/api/party/move", change("Party move", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (protocol.Notice, error) {
		body, err := readBody(w, r)
		if err != nil {
			return protocol.Notice{}, err
		}

		req, err := protocol.DecodeMove(body)
		if err != nil {
			return protocol.Notice{}, err
		}

		return h.Move("", req)
	}))

	mux.PUT(cfg.prefix+"/api/party", change("Party replace", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (protocol.Notice, error) {
		body, err := readBody(w, r)
		if err != nil {
			return protocol.Notice{}, err
		}

		req, err := protocol.DecodeReplace(body)
		if err != nil {
			return protocol.Notice{}, err
		}

		return h.Replace("", req)
	}))

	mux.POST(cfg.prefix+"/api/party/random", change("Party random", func(_ http.ResponseWriter, _ *http.Request, _ httprouter.Params) (protocol.Notice, error) {
		return h.Randomize("", newRand())
	}))

	mux.DELETE(cfg.prefix+"/api/party", change("Party reset", func(_ http.ResponseWriter, _ *http.Request, _ httprouter.Params) (protocol.Notice, error) {
		return h.Reset("")
	}))
}
