package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"

	"trade-executor-go/config"
	"trade-executor-go/gateway"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	assetFilter := flag.String("asset", "", "只显示指定资产（例如 ZEUR）")
	showFees := flag.Bool("fees", false, "同时显示费率表")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	creds, err := gateway.LoadCredentials(cfg.Gateway.KeyPath)
	if err != nil {
		log.Fatalf("load credentials: %v", err)
	}
	client := &gateway.KrakenRESTClient{
		BaseURL:    cfg.Gateway.BaseURL,
		Creds:      creds,
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    gateway.NewDecayCounter(),
		Policy:     gateway.DefaultRetryPolicy(),
	}

	ctx := context.Background()
	balances, err := client.Balance(ctx)
	if err != nil {
		log.Fatalf("fetch balances: %v", err)
	}

	filter := strings.ToUpper(strings.TrimSpace(*assetFilter))
	assets := make([]string, 0, len(balances))
	for asset := range balances {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	shown := 0
	for _, asset := range assets {
		if filter != "" && strings.ToUpper(asset) != filter {
			continue
		}
		fmt.Printf("%s balance=%.8f\n", asset, balances[asset])
		shown++
	}
	if filter != "" && shown == 0 {
		fmt.Printf("no balances matched asset %s\n", filter)
	}

	if *showFees {
		fees, err := client.TradeVolume(ctx)
		if err != nil {
			log.Fatalf("fetch fee schedule: %v", err)
		}
		pairs := make([]string, 0, len(fees.Taker))
		for pair := range fees.Taker {
			pairs = append(pairs, pair)
		}
		sort.Strings(pairs)
		for _, pair := range pairs {
			fmt.Printf("%s taker=%.4f%% maker=%.4f%%\n",
				pair, fees.Taker[pair]*100, fees.Maker[pair]*100)
		}
	}
}
