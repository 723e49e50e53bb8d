package identity

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests and local mode.
type MemoryDirectory struct {
	mu       sync.RWMutex
	slugs    map[string]QRSlug
	owners   map[string]Owner
	contacts map[string]Contact
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		slugs:    make(map[string]QRSlug),
		owners:   make(map[string]Owner),
		contacts: make(map[string]Contact),
	}
}

func (d *MemoryDirectory) AddSlug(s QRSlug) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slugs[s.Slug] = s
}

func (d *MemoryDirectory) AddOwner(o Owner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[o.ID] = o
}

func (d *MemoryDirectory) AddContact(c Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[c.ID] = c
}

func (d *MemoryDirectory) SlugBySlug(_ context.Context, slug string) (QRSlug, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.slugs[slug]
	if !ok {
		return QRSlug{}, ErrNotFound
	}
	return s, nil
}

func (d *MemoryDirectory) OwnerByID(_ context.Context, ownerID string) (Owner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.owners[ownerID]
	if !ok {
		return Owner{}, ErrNotFound
	}
	return o, nil
}

func (d *MemoryDirectory) ContactByID(_ context.Context, contactID string) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[contactID]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (d *MemoryDirectory) VerifiedContacts(_ context.Context, ownerID string) ([]Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Contact
	for _, c := range d.contacts {
		if c.OwnerID == ownerID && c.Verified {
			out = append(out, c)
		}
	}
	// Insertion order is not tracked; sort by display order for stable output.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].DisplayOrder < out[j-1].DisplayOrder; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}
