package posttrade

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"trade-executor-go/position"
)

// Stats 执行回报的累计统计。
type Stats struct {
	Records   int     `json:"records"`
	Synthetic int     `json:"synthetic"`
	BoughtVol float64 `json:"bought_volume"`
	SoldVol   float64 `json:"sold_volume"`
	Turnover  float64 `json:"turnover"` // 价 x 量累计
	FeesPaid  float64 `json:"fees_paid"`
}

// Journal 执行回报日志：逐条追加 JSON 行并累计统计，供盘后核算。
type Journal struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	stats Stats
}

// OpenJournal 打开（或续写）回报日志文件。
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open execution journal: %w", err)
	}
	return &Journal{f: f, w: bufio.NewWriter(f)}, nil
}

// Record 追加一条执行回报。
func (j *Journal) Record(rec position.ExecutionRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flush execution journal: %w", err)
	}

	j.stats.Records++
	if rec.Synthetic {
		j.stats.Synthetic++
		return nil
	}
	switch rec.Side {
	case "buy":
		j.stats.BoughtVol += rec.Volume
	case "sell":
		j.stats.SoldVol += rec.Volume
	}
	j.stats.Turnover += rec.Price * rec.Volume
	j.stats.FeesPaid += rec.Fee * rec.Price * rec.Volume
	return nil
}

// Stats 返回当前进程内累计的统计快照。
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// Close 刷盘并关闭日志文件。
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.f.Close()
}

// Replay 读取日志文件并重算统计，供盘后独立核算。
func Replay(path string) (Stats, []position.ExecutionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, nil, fmt.Errorf("open execution journal: %w", err)
	}
	defer f.Close()

	var stats Stats
	var records []position.ExecutionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec position.ExecutionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return stats, records, fmt.Errorf("decode execution record: %w", err)
		}
		records = append(records, rec)
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
	if err := scanner.Err(); err != nil {
		return stats, records, fmt.Errorf("scan execution journal: %w", err)
	}
	return stats, records, nil
}
