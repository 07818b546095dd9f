// Package httpsource implements source.Source over an aggregator that
// publishes its metadata and rounds as JSON over HTTP.
//
// Expected endpoints, relative to the base URL:
//
//	GET /metadata       {"decimals": 8, "description": "ETH / USD", "version": 4}
//	GET /rounds/latest  {"roundId": "12", "answer": "3021", "startedAt": 1, "updatedAt": 2, "answeredInRound": "12"}
//	GET /rounds/{id}    same shape; 404 when the round does not exist
//
// Integers may be JSON numbers or decimal strings.
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/feed-registry-server/internal/httpclient"
	"github.com/stacklok/feed-registry-server/internal/source"
)

// ErrMalformedResponse is returned when the upstream body is not the expected JSON.
var ErrMalformedResponse = errors.New("malformed source response")

// Source reads an HTTP aggregator.
type Source struct {
	baseURL string
	client  httpclient.Client
}

var _ source.Source = (*Source)(nil)

type options struct {
	client  httpclient.Client
	timeout time.Duration
}

// Option configures a Source.
type Option func(*options) error

// WithClient sets the HTTP client.
func WithClient(c httpclient.Client) Option {
	return func(o *options) error {
		if c == nil {
			return fmt.Errorf("client cannot be nil")
		}
		o.client = c
		return nil
	}
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
		o.timeout = d
		return nil
	}
}

// New creates a Source for baseURL.
func New(baseURL string, opts ...Option) (*Source, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.client == nil {
		o.client = httpclient.NewDefaultClient(o.timeout)
	}
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), client: o.client}, nil
}

// Decimals implements source.Source.
func (s *Source) Decimals(ctx context.Context) (uint8, error) {
	meta, err := s.get(ctx, "/metadata")
	if err != nil {
		return 0, err
	}
	d := meta.Get("decimals")
	if !d.Exists() || d.Uint() > 255 {
		return 0, fmt.Errorf("%w: decimals", ErrMalformedResponse)
	}
	return uint8(d.Uint()), nil
}

// Description implements source.Source.
func (s *Source) Description(ctx context.Context) (string, error) {
	meta, err := s.get(ctx, "/metadata")
	if err != nil {
		return "", err
	}
	return meta.Get("description").String(), nil
}

// Version implements source.Source.
func (s *Source) Version(ctx context.Context) (uint64, error) {
	meta, err := s.get(ctx, "/metadata")
	if err != nil {
		return 0, err
	}
	return meta.Get("version").Uint(), nil
}

// LatestAnswer implements source.Source.
func (s *Source) LatestAnswer(ctx context.Context) (*big.Int, error) {
	rd, err := s.LatestRoundData(ctx)
	if errors.Is(err, source.ErrNoData) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return rd.Answer, nil
}

// LatestTimestamp implements source.Source.
func (s *Source) LatestTimestamp(ctx context.Context) (uint64, error) {
	rd, err := s.LatestRoundData(ctx)
	if errors.Is(err, source.ErrNoData) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rd.UpdatedAt, nil
}

// LatestRound implements source.Source.
func (s *Source) LatestRound(ctx context.Context) (*big.Int, error) {
	rd, err := s.LatestRoundData(ctx)
	if errors.Is(err, source.ErrNoData) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return rd.RoundID, nil
}

// GetAnswer implements source.Source.
func (s *Source) GetAnswer(ctx context.Context, round *big.Int) (*big.Int, error) {
	rd, err := s.GetRoundData(ctx, round)
	if errors.Is(err, source.ErrNoData) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return rd.Answer, nil
}

// GetTimestamp implements source.Source.
func (s *Source) GetTimestamp(ctx context.Context, round *big.Int) (uint64, error) {
	rd, err := s.GetRoundData(ctx, round)
	if errors.Is(err, source.ErrNoData) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rd.UpdatedAt, nil
}

// LatestRoundData implements source.Source.
func (s *Source) LatestRoundData(ctx context.Context) (source.RoundData, error) {
	return s.round(ctx, "/rounds/latest")
}

// GetRoundData implements source.Source.
func (s *Source) GetRoundData(ctx context.Context, round *big.Int) (source.RoundData, error) {
	if round == nil || round.Sign() < 0 {
		return source.RoundData{}, source.ErrNoData
	}
	return s.round(ctx, "/rounds/"+round.String())
}

func (s *Source) round(ctx context.Context, path string) (source.RoundData, error) {
	body, err := s.get(ctx, path)
	if httpclient.StatusCode(err) == http.StatusNotFound {
		return source.RoundData{}, fmt.Errorf("%w: %s", source.ErrNoData, path)
	}
	if err != nil {
		return source.RoundData{}, err
	}

	roundID, err := bigField(body, "roundId")
	if err != nil {
		return source.RoundData{}, err
	}
	answer, err := bigField(body, "answer")
	if err != nil {
		return source.RoundData{}, err
	}
	answeredIn := roundID
	if body.Get("answeredInRound").Exists() {
		if answeredIn, err = bigField(body, "answeredInRound"); err != nil {
			return source.RoundData{}, err
		}
	}
	return source.RoundData{
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       body.Get("startedAt").Uint(),
		UpdatedAt:       body.Get("updatedAt").Uint(),
		AnsweredInRound: answeredIn,
	}, nil
}

func (s *Source) get(ctx context.Context, path string) (gjson.Result, error) {
	data, err := s.client.Get(ctx, s.baseURL+path)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: %s is not valid JSON", ErrMalformedResponse, path)
	}
	return gjson.ParseBytes(data), nil
}

func bigField(body gjson.Result, name string) (*big.Int, error) {
	f := body.Get(name)
	if !f.Exists() {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, name)
	}
	v, ok := new(big.Int).SetString(f.String(), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an integer", ErrMalformedResponse, name)
	}
	return v, nil
}
