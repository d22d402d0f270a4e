package ports

import "github.com/aretw0/patchbay/pkg/domain"

// Provider contributes node types to the registry. Built-in types and
// externally discovered plugins register through the same interface.
type Provider interface {
	// Name identifies the provider in logs and listings.
	Name() string

	// KnownTypes lists the identifiers this provider can describe or instantiate.
	KnownTypes() []string

	// Describe reports the node description for identifier, or false if the
	// provider does not recognize it.
	Describe(identifier string) (domain.NodeDescription, bool)

	// Instantiate creates a live unit for identifier, or returns false.
	Instantiate(identifier string) (Unit, bool)
}
