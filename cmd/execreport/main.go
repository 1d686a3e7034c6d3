package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"trade-executor-go/posttrade"
)

func main() {
	journalPath := flag.String("journal", "/var/lib/executor/executions.jsonl", "执行回报日志路径")
	sinceStr := flag.String("since", "", "仅统计此时间之后的记录 (RFC3339)")
	flag.Parse()

	var since time.Time
	if *sinceStr != "" {
		var err error
		since, err = time.Parse(time.RFC3339, *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 since 参数失败: %v\n", err)
			os.Exit(1)
		}
	}

	stats, records, err := posttrade.Replay(*journalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取执行回报失败: %v\n", err)
		os.Exit(1)
	}

	if !since.IsZero() {
		stats = posttrade.Stats{}
		for _, rec := range records {
			if time.Unix(rec.Timestamp, 0).Before(since) {
				continue
			}
			stats.Records++
			if rec.Synthetic {
				stats.Synthetic++
				continue
			}
			switch rec.Side {
			case "buy":
				stats.BoughtVol += rec.Volume
			case "sell":
				stats.SoldVol += rec.Volume
			}
			stats.Turnover += rec.Price * rec.Volume
			stats.FeesPaid += rec.Fee * rec.Price * rec.Volume
		}
	}

	fmt.Printf("records:    %d (synthetic %d)\n", stats.Records, stats.Synthetic)
	fmt.Printf("bought:     %.8f\n", stats.BoughtVol)
	fmt.Printf("sold:       %.8f\n", stats.SoldVol)
	fmt.Printf("turnover:   %.2f\n", stats.Turnover)
	fmt.Printf("fees paid:  %.4f\n", stats.FeesPaid)
}
