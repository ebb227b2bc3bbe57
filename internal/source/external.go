package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/table"
)

type ExternalConfig struct {
	AccountsURL     string
	InteractionsURL string
	Timeout         time.Duration
}

func (c ExternalConfig) Validate() error {
	if strings.TrimSpace(c.AccountsURL) == "" {
		return errors.New("accounts url is required")
	}
	if strings.TrimSpace(c.InteractionsURL) == "" {
		return errors.New("interactions url is required")
	}
	return nil
}

// External downloads the published dataset over HTTP: accounts as CSV,
// interactions as the JSON the interactions API serves. Network and
// upstream failures surface as domain.ErrDataUnavailable.
type External struct {
	cfg    ExternalConfig
	client *http.Client
}

func NewExternal(cfg ExternalConfig) (*External, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &External{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (e *External) Name() string { return "external" }

func (e *External) FetchAccounts(ctx context.Context) (*table.Table, error) {
	body, err := e.get(ctx, e.cfg.AccountsURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tbl, err := table.ReadCSV(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode accounts: %v", domain.ErrDataUnavailable, err)
	}
	return tbl, nil
}

// InteractionRecord is the wire shape of one interactions API entry.
type InteractionRecord struct {
	CustomerID      string `json:"customer_id"`
	SupportTickets  int    `json:"support_tickets"`
	LoginsLastMonth int    `json:"logins_last_month"`
}

func (e *External) FetchInteractions(ctx context.Context) (*table.Table, error) {
	body, err := e.get(ctx, e.cfg.InteractionsURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var records []InteractionRecord
	dec := json.NewDecoder(io.LimitReader(body, 64<<20))
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode interactions: %v", domain.ErrDataUnavailable, err)
	}

	tbl := table.New(InteractionColumns...)
	for _, record := range records {
		row := []string{
			record.CustomerID,
			strconv.Itoa(record.SupportTickets),
			strconv.Itoa(record.LoginsLastMonth),
		}
		if err := tbl.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func (e *External) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrDataUnavailable, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: fetch %s: status %d", domain.ErrDataUnavailable, url, resp.StatusCode)
	}
	return resp.Body, nil
}
