package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/provider"
	"github.com/stamp-next/internal/service"

	"github.com/joho/godotenv"
)

// seedOutput 演示数据与可直接调用接口的令牌
type seedOutput struct {
	MerchantID    uint      `json:"merchant_id"`
	ProgramID     uint      `json:"program_id"`
	CustomerID    uint      `json:"customer_id"`
	StaffToken    string    `json:"staff_token"`
	CustomerToken string    `json:"customer_token"`
	JoinQRToken   string    `json:"join_qr_token"`
	JoinExpiresAt time.Time `json:"join_expires_at"`
}

func main() {
	_ = godotenv.Load()

	var (
		merchantName string
		programName  string
		threshold    int
		staffID      uint
		latitude     float64
		longitude    float64
		withLocation bool
		actorTTL     time.Duration
	)
	flag.StringVar(&merchantName, "merchant", "Demo Coffee", "演示商户名称")
	flag.StringVar(&programName, "program", "Buy 5 get 1 free", "集章计划名称")
	flag.IntVar(&threshold, "threshold", 5, "集满印章数")
	flag.UintVar(&staffID, "staff-id", 1, "演示店员 ID")
	flag.Float64Var(&latitude, "lat", 31.2304, "门店纬度")
	flag.Float64Var(&longitude, "lng", 121.4737, "门店经度")
	flag.BoolVar(&withLocation, "with-location", false, "是否登记门店坐标（开启后扫码需上报位置）")
	flag.DurationVar(&actorTTL, "actor-ttl", 24*time.Hour, "演示身份令牌有效期")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	seed := models.DemoSeed{
		MerchantName:    merchantName,
		ProgramName:     programName,
		RewardText:      "One free drink",
		RewardThreshold: threshold,
		CustomerName:    "Demo Customer",
	}
	if withLocation {
		seed.Latitude = &latitude
		seed.Longitude = &longitude
	}
	demo, err := models.InitDemoData(seed)
	if err != nil {
		stdLog.Fatalf("Failed to seed demo data: %v", err)
	}

	// 队列与缓存不参与演示数据初始化
	cfg.Queue.Enabled = false
	cfg.Redis.Enabled = false
	container := provider.NewContainer(cfg)

	staff := service.Actor{ID: staffID, Type: constants.ActorTypeStaff, MerchantID: demo.Merchant.ID}
	customer := service.Actor{ID: demo.Customer.ID, Type: constants.ActorTypeCustomer}

	out := seedOutput{
		MerchantID: demo.Merchant.ID,
		ProgramID:  demo.Program.ID,
		CustomerID: demo.Customer.ID,
	}
	if out.StaffToken, _, err = service.SignActorToken(cfg.Auth.Secret, cfg.Auth.Issuer, staff, actorTTL); err != nil {
		stdLog.Fatalf("Failed to sign staff token: %v", err)
	}
	if out.CustomerToken, _, err = service.SignActorToken(cfg.Auth.Secret, cfg.Auth.Issuer, customer, actorTTL); err != nil {
		stdLog.Fatalf("Failed to sign customer token: %v", err)
	}
	joinToken, err := container.ScanService.IssueJoinToken(context.Background(), staff, demo.Program.ID, 0)
	if err != nil {
		stdLog.Fatalf("Failed to issue join token: %v", err)
	}
	out.JoinQRToken = joinToken.Token
	out.JoinExpiresAt = joinToken.ExpiresAt

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		stdLog.Fatalf("Failed to print seed output: %v", err)
	}
}
