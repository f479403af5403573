package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"vitalgate/internal/client"
)

// 对运行中的实例跑一遍完整接入链路：
// 注册设备 -> 上报 -> 幂等重放 -> 最新读数 -> 历史分页 -> 错误路径
func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "API base URL")
	masterKey := flag.String("master-key", "dev-master-key-123", "Master API key")
	patientID := flag.String("patient", "smoke_p1", "Patient ID to write to")
	deviceID := flag.String("device", "smoke_dev1", "Device ID to register")
	flag.Parse()

	logger := zap.NewNop()
	c := client.New(*baseURL, *masterKey, logger)

	fmt.Printf("Running smoke flow against %s\n\n", *baseURL)

	// 1. 注册设备
	reg, err := c.RegisterDevice(&client.RegisterDeviceInput{
		DeviceID:  *deviceID,
		Type:      "multi",
		PatientID: *patientID,
	})
	if err != nil {
		log.Fatalf("❌ Step 1 register failed: %v", err)
	}
	fmt.Printf("✅ Step 1 register: status=%s key=%s\n", reg.Status, reg.APIKey)

	// 2. 用签发的设备 key 上报
	c.SetAPIKey(reg.APIKey)
	token := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	hr := 72
	spo2 := 98
	temp := 36.6
	res, err := c.IngestVital(*patientID, &client.VitalInput{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DeviceID:  *deviceID,
		HeartRate: &hr,
		BP:        &client.BP{Systolic: 120, Diastolic: 80},
		SpO2:      &spo2,
		Temp:      &temp,
	}, token)
	if err != nil {
		log.Fatalf("❌ Step 2 ingest failed: %v", err)
	}
	if res.Status != "stored" {
		log.Fatalf("❌ Step 2 expected stored, got: %s", res.Status)
	}
	fmt.Printf("✅ Step 2 ingest: vital_id=%s\n", res.VitalID)

	// 3. 幂等重放：同一 token 不重复入库
	res, err = c.IngestVital(*patientID, &client.VitalInput{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DeviceID:  *deviceID,
		HeartRate: &hr,
	}, token)
	if err != nil {
		log.Fatalf("❌ Step 3 replay failed: %v", err)
	}
	if res.Status != "duplicate_ignored" {
		log.Fatalf("❌ Step 3 expected duplicate_ignored, got: %s", res.Status)
	}
	fmt.Println("✅ Step 3 replay: duplicate_ignored")

	// 4. 最新读数
	latest, err := c.Latest(*patientID)
	if err != nil {
		log.Fatalf("❌ Step 4 latest failed: %v", err)
	}
	if latest.HeartRate == nil || *latest.HeartRate != hr {
		log.Fatalf("❌ Step 4 unexpected latest reading: %+v", latest)
	}
	fmt.Printf("✅ Step 4 latest: timestamp=%s heart_rate=%d\n", latest.Timestamp, *latest.HeartRate)

	// 5. 历史分页
	page, err := c.History(*patientID, &client.HistoryOptions{PageSize: 5})
	if err != nil {
		log.Fatalf("❌ Step 5 history failed: %v", err)
	}
	if page.Total < 1 || len(page.Results) < 1 {
		log.Fatalf("❌ Step 5 expected at least one reading, got total=%d", page.Total)
	}
	fmt.Printf("✅ Step 5 history: total=%d page_size=%d\n", page.Total, page.PageSize)

	// 6. 错误路径：伪造 key 必须被拒
	bogus := client.New(*baseURL, "key_bogus", logger)
	_, err = bogus.RegisterDevice(&client.RegisterDeviceInput{
		DeviceID:  *deviceID,
		Type:      "multi",
		PatientID: *patientID,
	})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_api_key" {
		log.Fatalf("❌ Step 6 expected invalid_api_key, got: %v", err)
	}
	fmt.Println("✅ Step 6 bogus key rejected")

	fmt.Println("\nAll smoke steps passed")
}
