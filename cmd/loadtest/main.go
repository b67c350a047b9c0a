package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type createOrderReq struct {
	Amount int    `json:"amount"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:5000", "server base url")
	total := flag.Int("n", 50, "total create-order requests")
	concurrency := flag.Int("c", 20, "max concurrency")
	amount := flag.Int("amount", 100, "donation amount in rupees")
	idemKey := flag.String("idem", "", "send the same Idempotency-Key on every request")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	// 1) 支付分组限流：默认 10 次 / 10 分钟，超出部分应为 429
	fmt.Printf("start create-order test: n=%d concurrency=%d amount=%d\n", *total, *concurrency, *amount)
	results := run(client, *baseURL, *total, *concurrency, *amount, *idemKey)
	printSummary("create_order", results)

	// 2) 非法金额：应全部 400 或 429，不会产生 pending 记录
	fmt.Println("\nstart validation test: amount=600000, 5 requests")
	results2 := run(client, *baseURL, 5, 5, 600000, "")
	printSummary("validation", results2)
}

func run(client *http.Client, baseURL string, total, concurrency, amount int, idemKey string) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			req := createOrderReq{
				Amount: amount,
				Name:   fmt.Sprintf("Donor %d", idx+1),
				Email:  fmt.Sprintf("donor%d@example.com", idx+1),
			}
			if idemKey != "" {
				// 同一个幂等键按邮箱隔离，所以这里固定邮箱
				req.Email = "donor@example.com"
			}
			results[idx] = createOnce(client, baseURL, req, idemKey)
		}(i)
	}

	wg.Wait()
	return results
}

func createOnce(client *http.Client, baseURL string, req createOrderReq, idemKey string) Result {
	b, _ := json.Marshal(req)
	url := fmt.Sprintf("%s/api/payment/create-order", baseURL)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		httpReq.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}

	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}
