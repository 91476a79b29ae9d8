package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/provider"
	"github.com/stamp-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRouterTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	previous := models.DB
	models.DB = db
	t.Cleanup(func() {
		models.DB = previous
		_ = sqlDB.Close()
	})
	return db
}

type routerFixture struct {
	engine   *gin.Engine
	cfg      *config.Config
	merchant *models.Merchant
	program  *models.LoyaltyProgram
	customer *models.Customer
	staffJWT string
	custJWT  string
}

func newRouterFixture(t *testing.T, threshold int) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupRouterTestDB(t)

	cfg := config.Default()
	cfg.Redis.Enabled = false
	cfg.Queue.Enabled = false
	cfg.Auth.Secret = "router-auth-secret"
	cfg.Auth.Issuer = "identity"
	cfg.Token.Secret = "router-qr-secret"
	cfg.RateLimit.ScanMaxRequests = 50

	merchant := &models.Merchant{Name: "Corner Cafe"}
	require.NoError(t, db.Create(merchant).Error)
	program := &models.LoyaltyProgram{
		MerchantID:      merchant.ID,
		Name:            "Coffee card",
		RewardThreshold: threshold,
		Status:          constants.ProgramStatusActive,
	}
	require.NoError(t, db.Create(program).Error)
	customer := &models.Customer{DisplayName: "Ann", Email: "ann@example.com", Status: constants.CustomerStatusActive}
	require.NoError(t, db.Create(customer).Error)

	container := provider.NewContainer(cfg)
	f := &routerFixture{
		engine:   SetupRouter(cfg, container),
		cfg:      cfg,
		merchant: merchant,
		program:  program,
		customer: customer,
	}
	var err error
	f.staffJWT, _, err = service.SignActorToken(cfg.Auth.Secret, cfg.Auth.Issuer,
		service.Actor{ID: 7, Type: constants.ActorTypeStaff, MerchantID: merchant.ID}, time.Hour)
	require.NoError(t, err)
	f.custJWT, _, err = service.SignActorToken(cfg.Auth.Secret, cfg.Auth.Issuer,
		service.Actor{ID: customer.ID, Type: constants.ActorTypeCustomer}, time.Hour)
	require.NoError(t, err)
	return f
}

func (f *routerFixture) do(t *testing.T, method, path, bearer string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "body=%s", w.Body.String())
	return decodeEnvelope(t, w)
}

func decodeData(t *testing.T, resp envelope, out interface{}) {
	t.Helper()
	require.Equal(t, 0, resp.StatusCode, "msg=%s data=%s", resp.Msg, resp.Data)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func reasonOf(t *testing.T, resp envelope) string {
	t.Helper()
	var data struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(resp.Data, &data)
	return data.Reason
}

func TestScanLifecycleOverHTTP(t *testing.T) {
	f := newRouterFixture(t, 1)

	var joinToken service.IssuedToken
	decodeData(t, f.do(t, http.MethodPost, "/api/v1/merchant/tokens", f.staffJWT, gin.H{
		"purpose":    "join",
		"program_id": f.program.ID,
	}), &joinToken)
	require.NotEmpty(t, joinToken.Token)

	var joined service.ScanResult
	decodeData(t, f.do(t, http.MethodPost, "/api/v1/scans", f.custJWT, gin.H{
		"kind":  "join",
		"token": joinToken.Token,
	}), &joined)
	require.NotZero(t, joined.MembershipID)
	require.NotNil(t, joined.State)
	assert.Equal(t, constants.MembershipStatusInactive, joined.State.Status)
	membershipPath := fmt.Sprintf("/api/v1/memberships/%d", joined.MembershipID)
	merchantPath := fmt.Sprintf("/api/v1/merchant/memberships/%d", joined.MembershipID)

	// 同一入会码不能再次使用
	resp := f.do(t, http.MethodPost, "/api/v1/scans", f.custJWT, gin.H{"kind": "join", "token": joinToken.Token})
	assert.NotEqual(t, 0, resp.StatusCode)

	var stampToken service.IssuedToken
	decodeData(t, f.do(t, http.MethodPost, membershipPath+"/tokens", f.custJWT, gin.H{"purpose": "stamp"}), &stampToken)

	var stamped service.ScanResult
	decodeData(t, f.do(t, http.MethodPost, "/api/v1/merchant/scans", f.staffJWT, gin.H{
		"kind":  "stamp",
		"token": stampToken.Token,
	}), &stamped)
	require.NotNil(t, stamped.State)
	assert.Equal(t, constants.MembershipStatusRedeemable, stamped.State.Status)
	require.NotNil(t, stamped.State.VoucherCode)

	var state service.MembershipState
	decodeData(t, f.do(t, http.MethodGet, membershipPath+"/state", f.custJWT, nil), &state)
	assert.Equal(t, constants.MembershipStatusRedeemable, state.Status)
	assert.Equal(t, 1, state.CycleStampCount)

	var listed []service.MembershipState
	decodeData(t, f.do(t, http.MethodGet, "/api/v1/memberships", f.custJWT, nil), &listed)
	require.Len(t, listed, 1)

	var stamps []map[string]interface{}
	decodeData(t, f.do(t, http.MethodGet, membershipPath+"/stamps?page=1&page_size=10", f.custJWT, nil), &stamps)
	assert.Len(t, stamps, 1)

	resp = f.do(t, http.MethodPost, merchantPath+"/redeem", f.staffJWT, gin.H{"code": "WRONG-CODE"})
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, "code_mismatch", reasonOf(t, resp))

	var redeemed service.MembershipState
	decodeData(t, f.do(t, http.MethodPost, merchantPath+"/redeem", f.staffJWT, gin.H{"code": *stamped.State.VoucherCode}), &redeemed)
	assert.Equal(t, constants.MembershipStatusRedeemed, redeemed.Status)

	var redemptions []struct {
		Channel string `json:"channel"`
	}
	decodeData(t, f.do(t, http.MethodGet, merchantPath+"/redemptions", f.staffJWT, nil), &redemptions)
	require.Len(t, redemptions, 1)
	assert.Equal(t, constants.RedeemChannelManual, redemptions[0].Channel)

	resp = f.do(t, http.MethodPost, merchantPath+"/redeem", f.staffJWT, gin.H{"code": *stamped.State.VoucherCode})
	assert.Equal(t, "no_pending_reward", reasonOf(t, resp))
}

func TestScanRoutesSeparateActors(t *testing.T) {
	f := newRouterFixture(t, 3)

	// 顾客令牌访问商户接口在鉴权阶段被拒绝
	resp := f.do(t, http.MethodPost, "/api/v1/merchant/scans", f.custJWT, gin.H{"kind": "stamp", "token": "x"})
	assert.Equal(t, 401, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/scans", f.staffJWT, gin.H{"kind": "join", "token": "x"})
	assert.Equal(t, 401, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/scans", "", gin.H{"kind": "join", "token": "x"})
	assert.Equal(t, 401, resp.StatusCode)

	// 顾客入口不接受核销码
	resp = f.do(t, http.MethodPost, "/api/v1/scans", f.custJWT, gin.H{"kind": "redeem", "token": "x"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "scan_payload_invalid", reasonOf(t, resp))

	resp = f.do(t, http.MethodPost, "/api/v1/scans", f.custJWT, gin.H{"kind": "join", "token": "not-a-token"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "token_invalid", reasonOf(t, resp))

	resp = f.do(t, http.MethodGet, "/api/v1/memberships/abc/state", f.custJWT, nil)
	assert.Equal(t, 400, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/memberships/999/state", f.custJWT, nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "membership_not_found", reasonOf(t, resp))

	resp = f.do(t, http.MethodPost, "/api/v1/merchant/tokens", f.staffJWT, gin.H{"purpose": "redeem", "membership_id": 1})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "token_request_invalid", reasonOf(t, resp))
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newRouterFixture(t, 3)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	f.do(t, http.MethodGet, "/api/v1/memberships", f.custJWT, nil)

	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, f.cfg.Metrics.Path, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stamp_http_requests_total")
}
