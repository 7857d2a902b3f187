// Package catalog is a client for the public Pokémon API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pokemon-arena/internal/battle"
	"pokemon-arena/internal/config"
)

// Catalog errors.
var (
	ErrNotFound        = errors.New("not found in pokémon catalog")
	ErrUnavailable     = errors.New("pokémon catalog unavailable")
	ErrRandomExhausted = errors.New("failed to pick a random pokémon")
)

// Client talks to the Pokémon API.
type Client struct {
	baseURL    string
	http       *http.Client
	maxID      int
	attempts   int
	workers    int
	pageSize   int
	retryDelay time.Duration
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg config.CatalogConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       httpClient,
		maxID:      cfg.MaxID,
		attempts:   cfg.BotAttempts,
		workers:    cfg.HydrateWorkers,
		pageSize:   cfg.PageSize,
		retryDelay: 100 * time.Millisecond,
	}
	if c.maxID < 1 {
		c.maxID = 1010
	}
	if c.attempts < 1 {
		c.attempts = 6
	}
	if c.workers < 1 {
		c.workers = 4
	}
	if c.pageSize < 1 {
		c.pageSize = 12
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}

// Pokemon fetches one Pokémon by numeric id or name.
func (c *Client) Pokemon(ctx context.Context, idOrName string) (*Pokemon, error) {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if key == "" {
		return nil, ErrNotFound
	}
	var p Pokemon
	if err := c.getJSON(ctx, "/pokemon/"+url.PathEscape(key), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns one page of the global listing.
func (c *Client) List(ctx context.Context, offset, limit int) (*Page, error) {
	offset, limit = c.window(offset, limit)

	var data struct {
		Count   int             `json:"count"`
		Results []NamedResource `json:"results"`
	}
	path := fmt.Sprintf("/pokemon?limit=%d&offset=%d", limit, offset)
	if err := c.getJSON(ctx, path, &data); err != nil {
		return nil, err
	}

	page := &Page{Total: data.Count, Results: make([]Ref, 0, len(data.Results))}
	for _, r := range data.Results {
		page.Results = append(page.Results, Ref{ID: IDFromURL(r.URL), Name: r.Name, URL: r.URL})
	}
	return page, nil
}

type membership struct {
	Pokemon []struct {
		Pokemon NamedResource `json:"pokemon"`
	} `json:"pokemon"`
}

func pageOf(m membership, offset, limit int, typ string) *Page {
	total := len(m.Pokemon)
	page := &Page{Total: total, Results: []Ref{}}
	if offset >= total {
		return page
	}
	end := min(offset+limit, total)
	for _, e := range m.Pokemon[offset:end] {
		ref := Ref{ID: IDFromURL(e.Pokemon.URL), Name: e.Pokemon.Name, URL: e.Pokemon.URL}
		if typ != "" {
			ref.Types = []string{typ}
		}
		page.Results = append(page.Results, ref)
	}
	return page
}

// ByType returns one page of the Pokémon having the type.
func (c *Client) ByType(ctx context.Context, typ string, offset, limit int) (*Page, error) {
	offset, limit = c.window(offset, limit)
	typ = strings.ToLower(strings.TrimSpace(typ))

	var m membership
	if err := c.getJSON(ctx, "/type/"+url.PathEscape(typ), &m); err != nil {
		return nil, err
	}
	return pageOf(m, offset, limit, typ), nil
}

// ByAbility returns one page of the Pokémon having the ability.
func (c *Client) ByAbility(ctx context.Context, ability string, offset, limit int) (*Page, error) {
	offset, limit = c.window(offset, limit)
	ability = strings.ToLower(strings.TrimSpace(ability))

	var m membership
	if err := c.getJSON(ctx, "/ability/"+url.PathEscape(ability), &m); err != nil {
		return nil, err
	}
	return pageOf(m, offset, limit, ""), nil
}

func (c *Client) window(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = c.pageSize
	}
	return offset, limit
}

// RandomPokemon picks a uniformly random id in [1, maxID] and fetches it,
// trying a fresh id up to the configured number of attempts.
func (c *Client) RandomPokemon(ctx context.Context, rng battle.Rand) (*Pokemon, error) {
	var picked *Pokemon

	op := func() error {
		id := rng.IntN(c.maxID) + 1
		p, err := c.Pokemon(ctx, strconv.Itoa(id))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if p.Sprites == nil {
			return fmt.Errorf("pokémon %d has no sprites", id)
		}
		picked = p
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Dur("retry_in", wait).Msg("Random pokémon pick failed")
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRandomExhausted, err)
	}
	return picked, nil
}

// Hydrate fetches details for refs with a bounded number of concurrent
// requests. Items that fail to load come back with Hydrated false; only
// cancellation of ctx aborts the whole batch.
func (c *Client) Hydrate(ctx context.Context, refs []Ref) ([]Summary, error) {
	out := make([]Summary, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, ref := range refs {
		out[i] = ref.Summary()
		if ref.ID == 0 {
			continue
		}

		g.Go(func() error {
			p, err := c.Pokemon(gctx, strconv.Itoa(ref.ID))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn().Err(err).Int("pokemon_id", ref.ID).Msg("Hydrate failed")
				return nil
			}
			out[i].Name = p.Name
			out[i].Image = p.Image()
			out[i].Types = p.TypeNames()
			out[i].Abilities = p.AbilityNames()
			out[i].Hydrated = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
