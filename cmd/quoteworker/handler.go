package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/quote-relay/internal/catalog"
	"github.com/rickgao/quote-relay/internal/model"
	"github.com/rickgao/quote-relay/internal/refdata"
)

// engine is the worker surface exposed over HTTP.
type engine interface {
	Status() model.Status
	Healthy() bool
	GetQuoteNow(ctx context.Context, ticker string) (model.Quote, error)
	Subscribe(room string, tickers []string) ([]string, error)
	Unsubscribe(room string, tickers []string) []string
	OnDisconnect(room string)
}

// symbolLookup serves display metadata.
type symbolLookup interface {
	Lookup(ctx context.Context, symbol string) (model.SymbolInfo, error)
}

type tickersRequest struct {
	Tickers []string `json:"tickers"`
}

// newHandler creates the HTTP status and control routes.
func newHandler(eng engine, lookup symbolLookup, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		st := eng.Status()
		resp := map[string]any{
			"status": "healthy",
			"state":  st.State,
		}
		code := http.StatusOK
		if !eng.Healthy() {
			resp["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Status())
	})

	mux.HandleFunc("GET /quotes", func(w http.ResponseWriter, r *http.Request) {
		tickers := queryTickers(r)
		if len(tickers) == 0 {
			writeError(w, http.StatusBadRequest, "tickers is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		quotes := make([]model.Quote, 0, len(tickers))
		unavailable := []string{}
		for _, t := range tickers {
			q, err := eng.GetQuoteNow(ctx, t)
			if err != nil {
				unavailable = append(unavailable, t)
				continue
			}
			quotes = append(quotes, q)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"quotes":      quotes,
			"unavailable": unavailable,
		})
	})

	mux.HandleFunc("GET /symbols/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		t, err := catalog.Normalize(r.PathValue("ticker"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		info, err := lookup.Lookup(r.Context(), t)
		switch {
		case errors.Is(err, refdata.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, refdata.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case err != nil:
			logger.Warn("symbol lookup failed", "ticker", t, "error", err)
			writeError(w, http.StatusInternalServerError, "lookup failed")
		default:
			writeJSON(w, http.StatusOK, info)
		}
	})

	mux.HandleFunc("POST /rooms/{room}/subscribe", func(w http.ResponseWriter, r *http.Request) {
		var req tickersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		accepted, err := eng.Subscribe(r.PathValue("room"), req.Tickers)
		resp := map[string]any{"accepted": accepted}
		if err != nil {
			resp["error"] = err.Error()
			if len(accepted) == 0 {
				writeJSON(w, http.StatusBadRequest, resp)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /rooms/{room}/unsubscribe", func(w http.ResponseWriter, r *http.Request) {
		var req tickersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		removed := eng.Unsubscribe(r.PathValue("room"), req.Tickers)
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	})

	mux.HandleFunc("DELETE /rooms/{room}", func(w http.ResponseWriter, r *http.Request) {
		eng.OnDisconnect(r.PathValue("room"))
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// queryTickers accepts ?tickers=A&tickers=B and ?tickers=A,B.
func queryTickers(r *http.Request) []string {
	var out []string
	for _, v := range r.URL.Query()["tickers"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
