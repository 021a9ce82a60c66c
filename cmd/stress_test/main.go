// Command stress_test hammers a running server with concurrent draws
// against one chemical lot and checks that row locking kept the
// quantity conserved: with an initial stock of N units and M unit-sized
// draw requests, exactly N must succeed.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	initialStock  = 20
	totalRequests = 50
)

type transferPayload struct {
	RequestID        string      `json:"request_id"`
	ItemType         string      `json:"item_type"`
	ItemID           string      `json:"item_id"`
	From             locationRef `json:"from"`
	To               locationRef `json:"to"`
	Quantity         string      `json:"quantity"`
	DestinationBoxID string      `json:"destination_box_id"`
}

type locationRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func main() {
	baseURL := getenv("BASE_URL", "http://localhost:8080")
	chemicalID := getenv("CHEMICAL_ID", "stress-chem")
	fromWarehouse := getenv("FROM_WAREHOUSE", "W1")
	toKit := getenv("TO_KIT", "K1")
	boxID := getenv("TO_BOX", "B1")
	actor := getenv("ACTOR", "stress-user")

	client := &http.Client{Timeout: 10 * time.Second}

	var successCount atomic.Int32
	var depletedCount atomic.Int32
	var otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			payload := transferPayload{
				RequestID:        uuid.NewString(),
				ItemType:         "chemical",
				ItemID:           chemicalID,
				From:             locationRef{Type: "warehouse", ID: fromWarehouse},
				To:               locationRef{Type: "kit", ID: toKit},
				Quantity:         "1",
				DestinationBoxID: boxID,
			}
			body, _ := json.Marshal(payload)

			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/transfers", bytes.NewReader(body))
			if err != nil {
				log.Fatalf("build request: %v", err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-User-ID", actor)

			resp, err := client.Do(req)
			if err != nil {
				otherCount.Add(1)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusCreated:
				successCount.Add(1)
			case http.StatusUnprocessableEntity:
				depletedCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	depleted := depletedCount.Load()
	other := otherCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", depleted)
	fmt.Printf("Other Failures:   %d\n", other)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && depleted == totalRequests-initialStock && other == 0 {
		fmt.Printf("PASS: Exactly %d draws succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d insufficient, got %d/%d (%d other)\n",
			initialStock, totalRequests-initialStock, success, depleted, other)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
