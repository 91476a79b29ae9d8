package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestBuiltinRolesSeparateCustomerAndStaff(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	first, err := svc.SyncRolePolicies(nil)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(first.Added) != 11 || len(first.Removed) != 0 {
		t.Fatalf("unexpected first sync result: %+v", first)
	}
	// 重复同步应保持幂等
	second, err := svc.SyncRolePolicies(nil)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if len(second.Added) != 0 || len(second.Removed) != 0 {
		t.Fatalf("second sync should be a no-op, got %+v", second)
	}

	cases := []struct {
		actorType string
		path      string
		method    string
		want      bool
	}{
		{"customer", "/api/v1/scans", "post", true},
		{"customer", "/api/v1/memberships/12/state", "GET", true},
		{"customer", "/api/v1/merchant/scans", "POST", false},
		{"customer", "/api/v1/merchant/memberships/12/redeem", "POST", false},
		{"staff", "/api/v1/merchant/scans", "POST", true},
		{"staff", "/api/v1/merchant/memberships/12/redeem", "POST", true},
		{"staff", "/api/v1/merchant/memberships/12/state", "GET", true},
		{"staff", "/api/v1/scans", "POST", false},
		{"staff", "/api/v1/merchant/memberships/12/state", "DELETE", false},
	}
	for _, tc := range cases {
		allowed, err := svc.EnforceActor(tc.actorType, 1, tc.path, tc.method)
		if err != nil {
			t.Fatalf("enforce %s %s %s failed: %v", tc.actorType, tc.method, tc.path, err)
		}
		if allowed != tc.want {
			t.Fatalf("enforce %s %s %s want %v got %v", tc.actorType, tc.method, tc.path, tc.want, allowed)
		}
	}
}

func TestEnforceActorRejectsUnknownType(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.EnforceActor("admin", 1, "/api/v1/scans", "POST"); err == nil {
		t.Fatalf("expected error for unknown actor type")
	}
}

func TestDirectSubjectPolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.SyncRolePolicies(nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if _, err := svc.enforcer.AddPolicy(SubjectForActor("staff", 9), "/merchant/reports", "GET"); err != nil {
		t.Fatalf("add direct policy failed: %v", err)
	}
	allowed, err := svc.EnforceActor("staff", 9, "/api/v1/merchant/reports", "GET")
	if err != nil || !allowed {
		t.Fatalf("direct subject policy should allow, allowed=%v err=%v", allowed, err)
	}
	allowed, err = svc.EnforceActor("staff", 10, "/api/v1/merchant/reports", "GET")
	if err != nil || allowed {
		t.Fatalf("other staff should be denied, allowed=%v err=%v", allowed, err)
	}
}

func TestSyncRolePoliciesAppliesAndRevokesExtraGrants(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	extra := []Policy{{Subject: "staff", Object: "/api/v1/merchant/exports", Action: "get"}}
	result, err := svc.SyncRolePolicies(extra)
	if err != nil {
		t.Fatalf("sync with extra failed: %v", err)
	}
	if len(result.Added) != 12 {
		t.Fatalf("want 12 added policies, got %d", len(result.Added))
	}
	allowed, err := svc.EnforceActor("staff", 1, "/api/v1/merchant/exports", "GET")
	if err != nil || !allowed {
		t.Fatalf("extra grant should allow, allowed=%v err=%v", allowed, err)
	}

	result, err = svc.SyncRolePolicies(nil)
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0].Object != "/merchant/exports" || result.Removed[0].Action != "GET" {
		t.Fatalf("unexpected removed policies: %+v", result.Removed)
	}
	allowed, err = svc.EnforceActor("staff", 1, "/api/v1/merchant/exports", "GET")
	if err != nil || allowed {
		t.Fatalf("revoked grant should deny, allowed=%v err=%v", allowed, err)
	}
}

func TestSyncRolePoliciesRejectsInvalidExtra(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if _, err := svc.SyncRolePolicies([]Policy{{Subject: "admin", Object: "/x", Action: "GET"}}); err == nil {
		t.Fatalf("expected error for unknown subject")
	}
	if _, err := svc.SyncRolePolicies([]Policy{{Subject: "staff", Object: "/x", Action: " "}}); err == nil {
		t.Fatalf("expected error for blank action")
	}
}

func TestNormalizeHelpers(t *testing.T) {
	if got := NormalizeObject("api/v1/merchant/scans"); got != "/merchant/scans" {
		t.Fatalf("unexpected object: %s", got)
	}
	if got := NormalizeObject(" /api/v1/memberships/:id/state "); got != "/memberships/:id/state" {
		t.Fatalf("unexpected object: %s", got)
	}
	if got := NormalizeObject("/api/v1"); got != "/" {
		t.Fatalf("unexpected root object: %s", got)
	}
	if got, _ := RoleForActorType(" Staff "); got != "role:staff" {
		t.Fatalf("unexpected role: %s", got)
	}
	if _, err := RoleForActorType("   "); err == nil {
		t.Fatalf("expected error for blank actor type")
	}
}
