package domain

import "errors"

var (
	// ErrConfiguration means provider credentials are missing or unusable.
	// It fails fast and is never retried or surfaced as a transient fault.
	ErrConfiguration = errors.New("provider_configuration_missing")

	// ErrTransport is a retryable network-level fault talking to a provider.
	ErrTransport = errors.New("provider_transport_error")

	// ErrProviderRejected is a terminal business decline from the provider.
	ErrProviderRejected = errors.New("provider_rejected")

	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidProvider  = errors.New("invalid_provider")

	ErrMissingSignature = errors.New("missing_signature")
	ErrInvalidSignature = errors.New("invalid_signature")

	ErrInvalidPayload = errors.New("invalid_payload")

	// ErrMissingOrderRef marks a webhook that verified but carries no usable
	// order reference. Deliveries like this are acknowledged, never retried.
	ErrMissingOrderRef = errors.New("missing_order_reference")

	ErrOrderNotFound   = errors.New("order_not_found")
	ErrProductNotFound = errors.New("product_not_found")

	// ErrProductUnavailable means the product was already sold to someone
	// else; single-copy items cannot be checked out twice.
	ErrProductUnavailable = errors.New("product_unavailable")

	ErrInvalidRequest = errors.New("invalid_request")

	// ErrDuplicateOrder marks a unique-constraint collision inserting an
	// order, surfaced as a typed conflict instead of a raw driver error.
	ErrDuplicateOrder = errors.New("duplicate_order")

	// ErrAlreadyProcessed means the order already sits in a terminal state
	// consistent with the delivered event; reapplying would be a no-op.
	ErrAlreadyProcessed = errors.New("order_already_processed")

	// ErrInvalidTransition marks an event that contradicts a terminal order
	// state, e.g. a success webhook for an order that already failed.
	ErrInvalidTransition = errors.New("invalid_order_transition")
)
