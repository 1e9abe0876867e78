package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a gateway.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// RemoteOrderRequest describes a gateway-side order the client will pay against.
type RemoteOrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// RemoteOrder is the gateway response handed back to the client checkout widget.
type RemoteOrder struct {
	ID          string
	Provider    string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
	CreatedAt   time.Time
	Raw         map[string]any
}

// Gateway creates remote orders on one payment service provider.
type Gateway interface {
	CreateRemoteOrder(ctx context.Context, req RemoteOrderRequest) (RemoteOrder, error)
}

// Manager routes remote order creation to a gateway by currency.
type Manager struct {
	gateways        map[string]Gateway
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the gateway used for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to gateway mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied gateways. INR routes to razorpay when it is
// registered.
func NewManager(gateways map[string]Gateway, opts ...ManagerOption) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	registered := make(map[string]Gateway, len(gateways))
	for k, v := range gateways {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{gateways: registered}
	if _, ok := registered[ProviderRazorpay]; ok {
		m.defaultProvider = ProviderRazorpay
		m.currencyRoutes = map[string]string{"INR": ProviderRazorpay}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(currency string) (string, Gateway, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency != "" {
		if key, ok := m.currencyRoutes[currency]; ok {
			key = strings.ToLower(key)
			if g, ok := m.gateways[key]; ok {
				return key, g, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if g, ok := m.gateways[def]; ok {
			return def, g, nil
		}
	}
	if len(m.gateways) == 1 {
		for key, g := range m.gateways {
			return key, g, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateRemoteOrder delegates to the gateway resolved for the request currency.
func (m *Manager) CreateRemoteOrder(ctx context.Context, req RemoteOrderRequest) (RemoteOrder, error) {
	key, gateway, err := m.resolve(req.Currency)
	if err != nil {
		return RemoteOrder{}, err
	}
	if req.AmountMinor <= 0 {
		return RemoteOrder{}, errors.New("payments: amount must be positive")
	}
	order, err := gateway.CreateRemoteOrder(ctx, req)
	if err != nil {
		return RemoteOrder{}, err
	}
	order.Provider = key
	return order, nil
}
