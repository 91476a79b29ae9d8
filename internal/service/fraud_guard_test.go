package service

import (
	"errors"
	"testing"

	"github.com/stamp-next/internal/models"
)

func TestFraudGuardGeofence(t *testing.T) {
	guard := NewFraudGuard(nil, nil, FraudOptions{GeofenceRadiusMeters: 150}, nil)
	lat, lng := models.NewCoordinate(shopLat), models.NewCoordinate(shopLng)
	merchant := &models.Merchant{ID: 1, Latitude: &lat, Longitude: &lng}

	if v := guard.checkGeofence(merchant, nearGeo); !v.Allowed() || v.DistanceMeters <= 0 {
		t.Fatalf("near scan should pass, got %+v", v)
	}
	if v := guard.checkGeofence(merchant, farGeo); !errors.Is(v.Reason, ErrOutOfRange) {
		t.Fatalf("far scan should be out of range, got %+v", v)
	}
	if v := guard.checkGeofence(merchant, nil); !errors.Is(v.Reason, ErrOutOfRange) {
		t.Fatalf("missing scan geo should be out of range, got %+v", v)
	}

	merchant.GeofenceRadiusMeters = 5000
	if v := guard.checkGeofence(merchant, farGeo); !v.Allowed() {
		t.Fatalf("merchant radius override should allow far scan, got %+v", v)
	}

	if v := guard.checkGeofence(&models.Merchant{ID: 2}, farGeo); !v.Allowed() || !v.DegradedTrust {
		t.Fatalf("merchant without location should degrade trust, got %+v", v)
	}
}

func TestIssuerActorType(t *testing.T) {
	cases := map[string]string{
		"customer:7": "customer",
		"staff:3":    "staff",
		" staff:3 ":  "staff",
		"system":     "",
		"robot:1":    "",
		"":           "",
	}
	for issuedBy, want := range cases {
		if got := issuerActorType(issuedBy); got != want {
			t.Fatalf("issuerActorType(%q) = %q, want %q", issuedBy, got, want)
		}
	}
}
