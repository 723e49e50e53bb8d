package identity

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"safescan-platform/internal/calls"
)

func seededDirectory() *MemoryDirectory {
	dir := NewMemoryDirectory()
	dir.AddOwner(Owner{ID: "owner-1", Name: "Asha", Phone: "+919876543210"})
	dir.AddSlug(QRSlug{ID: "slug-row-1", Slug: "abc123", Claimed: true, ClaimedBy: "owner-1"})
	dir.AddSlug(QRSlug{ID: "slug-row-2", Slug: "fresh", Claimed: false})
	dir.AddContact(Contact{ID: "c1", OwnerID: "owner-1", Name: "Ravi", Relationship: "brother", Phone: "+919812345678", Verified: true, DisplayOrder: 1})
	dir.AddContact(Contact{ID: "c2", OwnerID: "owner-1", Name: "Meena", Relationship: "doctor", Phone: "+919811111111", Verified: false, DisplayOrder: 2})
	dir.AddContact(Contact{ID: "c9", OwnerID: "owner-9", Name: "Other", Phone: "+15550001111", Verified: true})
	return dir
}

func TestResolve_ContactMintsFreshIdentity(t *testing.T) {
	r := NewResolver(seededDirectory(), NewMemoryRegistry())

	rid, err := r.Resolve(context.Background(), "abc123", "c1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rid.ID == "" || rid.ID == "c1" {
		t.Fatalf("routing id must be opaque and distinct from the contact id, got %q", rid.ID)
	}
	if rid.Kind != KindContact || rid.TargetPhone != "+919812345678" {
		t.Fatalf("unexpected identity: %+v", rid)
	}

	// Two resolutions of the same contact never share a routing identity.
	rid2, err := r.Resolve(context.Background(), "abc123", "c1")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if rid2.ID == rid.ID {
		t.Fatalf("routing identities must not be reusable across sessions")
	}
}

func TestResolve_OwnerWhenContactRefEmpty(t *testing.T) {
	r := NewResolver(seededDirectory(), NewMemoryRegistry())

	rid, err := r.Resolve(context.Background(), "abc123", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rid.Kind != KindOwner || rid.TargetPhone != "+919876543210" {
		t.Fatalf("unexpected identity: %+v", rid)
	}
}

func TestResolve_FailureMapping(t *testing.T) {
	r := NewResolver(seededDirectory(), NewMemoryRegistry())

	for _, tc := range []struct {
		name       string
		slug       string
		contactRef string
	}{
		{"unknown slug", "nope", "c1"},
		{"unclaimed slug", "fresh", "c1"},
		{"unverified foreign contact", "abc123", "c9"},
		{"unknown contact", "abc123", "missing"},
	} {
		_, err := r.Resolve(context.Background(), tc.slug, tc.contactRef)
		if calls.KindOf(err) != calls.KindInvalidSession {
			t.Fatalf("%s: expected invalid_session, got %v", tc.name, err)
		}
	}
}

func TestResolveTarget_DirectReferences(t *testing.T) {
	r := NewResolver(seededDirectory(), NewMemoryRegistry())

	rid, err := r.ResolveTarget(context.Background(), "", "c1")
	if err != nil {
		t.Fatalf("contact target: %v", err)
	}
	if rid.Kind != KindContact || rid.TargetPhone != "+919812345678" || rid.OwnerID != "owner-1" {
		t.Fatalf("unexpected identity: %+v", rid)
	}

	// Contact wins when both references are present.
	rid, err = r.ResolveTarget(context.Background(), "owner-1", "c1")
	if err != nil {
		t.Fatalf("both refs: %v", err)
	}
	if rid.Kind != KindContact {
		t.Fatalf("expected contact to take precedence, got %+v", rid)
	}

	rid, err = r.ResolveTarget(context.Background(), "owner-1", "")
	if err != nil {
		t.Fatalf("owner target: %v", err)
	}
	if rid.Kind != KindOwner || rid.TargetPhone != "+919876543210" {
		t.Fatalf("unexpected identity: %+v", rid)
	}

	for _, tc := range []struct {
		name      string
		ownerID   string
		contactID string
	}{
		{"no refs", "", ""},
		{"unknown owner", "ghost", ""},
		{"unknown contact", "", "ghost"},
	} {
		if _, err := r.ResolveTarget(context.Background(), tc.ownerID, tc.contactID); calls.KindOf(err) != calls.KindInvalidSession {
			t.Fatalf("%s: expected invalid_session, got %v", tc.name, err)
		}
	}
}

func TestTarget_ExpiredIdentityIsInvalid(t *testing.T) {
	reg := NewMemoryRegistry()
	base := time.Unix(1700000000, 0)
	reg.now = func() time.Time { return base }

	r := NewResolver(seededDirectory(), reg)
	rid, err := r.Resolve(context.Background(), "abc123", "c1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := r.Target(context.Background(), rid.ID); err != nil {
		t.Fatalf("target while live: %v", err)
	}

	reg.now = func() time.Time { return base.Add(DefaultIdentityTTL + time.Second) }
	_, err = r.Target(context.Background(), rid.ID)
	if calls.KindOf(err) != calls.KindInvalidSession {
		t.Fatalf("expected invalid_session after expiry, got %v", err)
	}
}

type stubPresence bool

func (s stubPresence) IsOnline(string) bool { return bool(s) }

func TestScan_NeverLeaksPhoneNumbers(t *testing.T) {
	r := NewResolver(seededDirectory(), NewMemoryRegistry())

	res, err := r.Scan(context.Background(), "abc123", stubPresence(true))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Status != ScanStatusClaimed || !res.OwnerOnline {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Contacts) != 1 || res.Contacts[0].ID != "c1" {
		t.Fatalf("expected only the verified contact, got %+v", res.Contacts)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	phonePattern := regexp.MustCompile(`\+?\d{10,}`)
	if phonePattern.Match(raw) {
		t.Fatalf("scan response contains a phone-number-shaped value: %s", raw)
	}
}

func TestScan_UnknownAndUnclaimed(t *testing.T) {
	r := NewResolver(seededDirectory(), NewMemoryRegistry())

	res, err := r.Scan(context.Background(), "nope", nil)
	if err != nil || res.Status != ScanStatusInvalid {
		t.Fatalf("expected invalid, got %+v err=%v", res, err)
	}

	res, err = r.Scan(context.Background(), "fresh", nil)
	if err != nil || res.Status != ScanStatusUnclaimed {
		t.Fatalf("expected unclaimed, got %+v err=%v", res, err)
	}
}

func TestRoutingIdentity_PhoneNeverSerializes(t *testing.T) {
	rid := RoutingIdentity{ID: "r1", Kind: KindContact, OwnerID: "o", TargetPhone: "+919812345678"}
	raw, err := json.Marshal(rid)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if regexp.MustCompile(`\d{6,}`).Match(raw) {
		t.Fatalf("routing identity JSON leaks the phone: %s", raw)
	}
}
