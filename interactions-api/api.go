package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/meridian-labs/meridian-go/internal/platform/httpserver"
	"github.com/meridian-labs/meridian-go/internal/source"
)

// interactionsAPI exposes the customer engagement dataset over HTTP in the
// shapes the external acquisition mode consumes: accounts as CSV,
// interactions as JSON.
type interactionsAPI struct {
	logger *slog.Logger
	src    source.DataSource
}

func newInteractionsAPI(logger *slog.Logger, src source.DataSource) *interactionsAPI {
	return &interactionsAPI{logger: logger, src: src}
}

func (api *interactionsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /accounts", api.handleAccounts)
	mux.HandleFunc("GET /interactions", api.handleInteractions)
}

func (api *interactionsAPI) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := api.src.FetchAccounts(r.Context())
	if err != nil {
		api.logger.Error("accounts fetch failed", "error", err)
		httpserver.WriteJSON(w, http.StatusBadGateway, map[string]any{"error": "accounts_unavailable"})
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := accounts.WriteCSV(w); err != nil {
		api.logger.Error("accounts encode failed", "error", err)
	}
}

func (api *interactionsAPI) handleInteractions(w http.ResponseWriter, r *http.Request) {
	interactions, err := api.src.FetchInteractions(r.Context())
	if err != nil {
		api.logger.Error("interactions fetch failed", "error", err)
		httpserver.WriteJSON(w, http.StatusBadGateway, map[string]any{"error": "interactions_unavailable"})
		return
	}

	records := make([]source.InteractionRecord, 0, interactions.Len())
	for _, row := range interactions.Rows {
		record, err := interactionRecord(interactions.Columns, row)
		if err != nil {
			api.logger.Error("interactions row malformed", "error", err)
			httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "interactions_malformed"})
			return
		}
		records = append(records, record)
	}
	httpserver.WriteJSON(w, http.StatusOK, records)
}

func interactionRecord(columns []string, row []string) (source.InteractionRecord, error) {
	var record source.InteractionRecord
	for i, col := range columns {
		switch col {
		case "customer_id":
			record.CustomerID = row[i]
		case "support_tickets":
			n, err := strconv.Atoi(row[i])
			if err != nil {
				return source.InteractionRecord{}, err
			}
			record.SupportTickets = n
		case "logins_last_month":
			n, err := strconv.Atoi(row[i])
			if err != nil {
				return source.InteractionRecord{}, err
			}
			record.LoginsLastMonth = n
		}
	}
	return record, nil
}
