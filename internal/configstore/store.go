// Package configstore abstracts the external opaque key-value
// configuration store the Property Binder reads and writes: paths of the form "⟨instance⟩/⟨property⟩".
package configstore

import "context"

// Store is the external configuration backend. Every property of every
// Controller Session is stored at the instance level; the binder never
// writes defaults.
type Store interface {
	// Get returns the raw stored value for key and true, or ("", false, nil)
	// if the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key unconditionally.
	Set(ctx context.Context, key, value string) error
	// Delete removes key, if present.
	Delete(ctx context.Context, key string) error
}

// Key builds the store's "⟨instance⟩/⟨property⟩" path.
func Key(instance, property string) string {
	return instance + "/" + property
}
