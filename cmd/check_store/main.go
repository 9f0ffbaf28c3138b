package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/config"
	"foreclosure-auction-scraper/internal/models"
	"foreclosure-auction-scraper/internal/schedule"
	"foreclosure-auction-scraper/internal/services"
)

// checkStore pings the store, counts the jurisdiction's records and prints
// the upcoming auction dates. It returns false when the store is unreachable.
func checkStore(ctx context.Context, out io.Writer, store services.PingableStore, resolver *schedule.AuctionDateResolver, j models.Jurisdiction, now time.Time, months int) bool {
	fmt.Fprintln(out, "=== Testing Auction Store Connectivity ===")

	if err := store.Ping(ctx); err != nil {
		fmt.Fprintf(out, "❌ Failed to reach store: %v\n", err)
		return false
	}
	fmt.Fprintln(out, "✅ Store reachable")

	records, err := store.ListAuctions(ctx, j.County, j.State)
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to list %s County, %s: %v\n", j.County, j.State, err)
		return false
	}
	fmt.Fprintf(out, "✅ %s County, %s has %d auction records\n", j.County, j.State, len(records))

	fmt.Fprintf(out, "\n=== Next %d Auction Dates (%s) ===\n", months, resolver.Strategy())
	year, month := now.Year(), int(now.Month())
	for i := 0; i < months; i++ {
		month++
		if month > 12 {
			month = 1
			year++
		}
		res, err := resolver.ResolveDetailed(year, month)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", models.MonthKey(year, month), err)
			continue
		}
		line := fmt.Sprintf("%s: %s", models.MonthKey(year, month), res.Date.Format("Mon 2006-01-02"))
		if res.Shifted {
			line += fmt.Sprintf(" (first Monday %s is %s)", res.FirstMonday.Format("01-02"), res.Holiday)
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out, "\n=== Auction Store Check Complete ===")
	return true
}

func main() {
	months := flag.Int("months", 12, "number of upcoming auction dates to print")
	profile := flag.String("profile", os.Getenv("AWS_PROFILE"), "AWS shared config profile")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if *profile != "" {
		fmt.Printf("Using AWS Profile: %s\n", *profile)
		opts = append(opts, awsconfig.WithSharedConfigProfile(*profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store, closeStore, err := services.OpenAuctionStore(ctx, cfg, awsCfg, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer func() { _ = closeStore(ctx) }()

	resolver := schedule.NewAuctionDateResolver(nil, cfg.Schedule.ShiftStrategy)
	if !checkStore(ctx, os.Stdout, store, resolver, cfg.Jurisdiction(), time.Now().UTC(), *months) {
		_ = closeStore(ctx)
		os.Exit(1)
	}
}
