package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"EnergyDash/internal/domain/models"
	"EnergyDash/internal/domain/repository"
	pkghttp "EnergyDash/pkg/http"
)

// ErrPurchaseUpstream marks transport or protocol failures talking to the
// simulator's purchase endpoint.
var ErrPurchaseUpstream = errors.New("purchase upstream failure")

// HTTPPurchaseClient forwards purchases to {baseURL}/purchase.
type HTTPPurchaseClient struct {
	client  *pkghttp.Client
	baseURL string
}

// NewHTTPPurchaseClient creates a purchase client.
func NewHTTPPurchaseClient(client *pkghttp.Client, baseURL string) *HTTPPurchaseClient {
	return &HTTPPurchaseClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *HTTPPurchaseClient) Purchase(ctx context.Context, req models.PurchaseRequest) (models.PurchaseResult, error) {
	var res models.PurchaseResult
	if err := p.client.PostJSON(ctx, p.baseURL+"/purchase", req, &res); err != nil {
		return models.PurchaseResult{}, fmt.Errorf("%w: %w", ErrPurchaseUpstream, err)
	}
	return res, nil
}

var _ repository.PurchaseClient = (*HTTPPurchaseClient)(nil)
