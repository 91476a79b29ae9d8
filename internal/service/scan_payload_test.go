package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stamp-next/internal/constants"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestParseScanPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload ScanPayload
		allowed []string
		want    string
		wantErr error
	}{
		{
			name:    "join with geo",
			payload: ScanPayload{Kind: "JOIN", Token: "tok", Latitude: floatPtr(1), Longitude: floatPtr(2)},
			want:    constants.ScanKindJoin,
		},
		{
			name:    "stamp without tx id",
			payload: ScanPayload{Kind: "stamp", Token: "tok"},
			want:    constants.ScanKindStamp,
		},
		{
			name:    "redeem not allowed on customer route",
			payload: ScanPayload{Kind: "redeem", Token: "tok"},
			allowed: []string{constants.ScanKindJoin, constants.ScanKindStamp},
			wantErr: ErrScanPayloadInvalid,
		},
		{
			name:    "unknown kind",
			payload: ScanPayload{Kind: "coupon", Token: "tok"},
			wantErr: ErrScanPayloadInvalid,
		},
		{
			name:    "missing token",
			payload: ScanPayload{Kind: "join", Token: " "},
			wantErr: ErrScanPayloadInvalid,
		},
		{
			name:    "oversized token",
			payload: ScanPayload{Kind: "join", Token: strings.Repeat("t", maxEncodedToken+1)},
			wantErr: ErrScanPayloadInvalid,
		},
		{
			name:    "latitude without longitude",
			payload: ScanPayload{Kind: "join", Token: "tok", Latitude: floatPtr(1)},
			wantErr: ErrScanPayloadInvalid,
		},
		{
			name:    "latitude out of range",
			payload: ScanPayload{Kind: "join", Token: "tok", Latitude: floatPtr(91), Longitude: floatPtr(0)},
			wantErr: ErrScanPayloadInvalid,
		},
		{
			name:    "bad tx id",
			payload: ScanPayload{Kind: "stamp", Token: "tok", TxID: "has space"},
			wantErr: ErrScanPayloadInvalid,
		},
	}
	for _, tc := range cases {
		request, err := ParseScanPayload(tc.payload, tc.allowed...)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if request.Kind() != tc.want {
			t.Fatalf("%s: expected kind %s, got %s", tc.name, tc.want, request.Kind())
		}
	}
}

func TestParseScanPayloadKeepsFields(t *testing.T) {
	request, err := ParseScanPayload(ScanPayload{
		Kind:      "stamp",
		Token:     " tok ",
		TxID:      " pos-1 ",
		Latitude:  floatPtr(31.2304),
		Longitude: floatPtr(121.4737),
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	stamp, ok := request.(StampScan)
	if !ok {
		t.Fatalf("expected StampScan, got %T", request)
	}
	if stamp.Token != "tok" || stamp.TxID != "pos-1" {
		t.Fatalf("unexpected fields: %+v", stamp)
	}
	if stamp.Geo == nil || stamp.Geo.Latitude.String() != "31.2304000" {
		t.Fatalf("unexpected geo: %+v", stamp.Geo)
	}
}
