package providers

import (
	"strings"

	"github.com/gebeyahq/gebeya/internal/payment/domain"
)

// Registry resolves a payment provider name to its configured client.
type Registry struct {
	clients map[string]domain.Client
}

func NewRegistry(clients ...domain.Client) *Registry {
	registry := &Registry{clients: map[string]domain.Client{}}
	for _, client := range clients {
		if client == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(client.Provider()))
		if provider == "" {
			continue
		}
		registry.clients[provider] = client
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	_, ok := r.clients[provider]
	return ok
}

func (r *Registry) Client(provider string) (domain.Client, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	client, ok := r.clients[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return client, nil
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
