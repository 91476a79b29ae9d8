package models

import (
	"strings"

	"github.com/stamp-next/internal/logger"
)

// DemoSeed 演示数据参数
type DemoSeed struct {
	MerchantName    string
	Latitude        *float64
	Longitude       *float64
	ProgramName     string
	RewardText      string
	RewardThreshold int
	CustomerName    string
	CustomerEmail   string
}

// DemoData 演示数据结果
type DemoData struct {
	Merchant *Merchant
	Program  *LoyaltyProgram
	Customer *Customer
}

// InitDemoData 初始化演示商户、集章计划与顾客（已存在时直接返回）
func InitDemoData(seed DemoSeed) (*DemoData, error) {
	name := strings.TrimSpace(seed.MerchantName)
	if name == "" {
		name = "Demo Coffee"
	}
	threshold := seed.RewardThreshold
	if threshold <= 0 {
		threshold = 5
	}

	var merchant Merchant
	result := DB.Where("name = ?", name).Limit(1).Find(&merchant)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		merchant = Merchant{Name: name}
		if seed.Latitude != nil && seed.Longitude != nil {
			lat := NewCoordinate(*seed.Latitude)
			lng := NewCoordinate(*seed.Longitude)
			merchant.Latitude = &lat
			merchant.Longitude = &lng
		}
		if err := DB.Create(&merchant).Error; err != nil {
			return nil, err
		}
		logger.Infow("demo_merchant_created", "merchant_id", merchant.ID, "name", merchant.Name)
	}

	programName := strings.TrimSpace(seed.ProgramName)
	if programName == "" {
		programName = "Buy 5 get 1 free"
	}
	var program LoyaltyProgram
	result = DB.Where("merchant_id = ? AND name = ?", merchant.ID, programName).Limit(1).Find(&program)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		program = LoyaltyProgram{
			MerchantID:        merchant.ID,
			Name:              programName,
			RewardDescription: strings.TrimSpace(seed.RewardText),
			RewardThreshold:   threshold,
			Status:            "active",
		}
		if err := DB.Create(&program).Error; err != nil {
			return nil, err
		}
		logger.Infow("demo_program_created", "program_id", program.ID, "threshold", program.RewardThreshold)
	}

	email := strings.ToLower(strings.TrimSpace(seed.CustomerEmail))
	if email == "" {
		email = "demo.customer@example.com"
	}
	var customer Customer
	result = DB.Where("email = ?", email).Limit(1).Find(&customer)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		customer = Customer{
			DisplayName: strings.TrimSpace(seed.CustomerName),
			Email:       email,
			Status:      "active",
		}
		if err := DB.Create(&customer).Error; err != nil {
			return nil, err
		}
		logger.Infow("demo_customer_created", "customer_id", customer.ID)
	}

	return &DemoData{Merchant: &merchant, Program: &program, Customer: &customer}, nil
}
