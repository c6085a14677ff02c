package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/aurumlab/gsr-backend/internal/config"
	"github.com/aurumlab/gsr-backend/internal/db"
	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/normalize"
	"github.com/aurumlab/gsr-backend/internal/repository"
	"github.com/aurumlab/gsr-backend/internal/series"
	"github.com/aurumlab/gsr-backend/internal/strategy"
)

func main() {
	start := flag.String("start", "", "window start date YYYY-MM-DD (required)")
	end := flag.String("end", "", "window end date YYYY-MM-DD (required)")
	asset := flag.String("asset", "gold", "starting asset: gold|silver")
	amount := flag.Float64("amount", 10000, "starting amount in USD")
	up := flag.Float64("up", 0, "gold->silver ratio threshold (0 = never)")
	down := flag.Float64("down", 0, "silver->gold ratio threshold (0 = never)")
	csvPath := flag.String("csv", "", "read prices from this CSV instead of the configured store")
	exportPath := flag.String("export", "", "write the price window to this CSV file")
	flag.Parse()

	if *start == "" || *end == "" {
		fmt.Fprintln(os.Stderr, "-start and -end are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	records, err := loadRecords(ctx, *csvPath, *start, *end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load prices: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "no price data between %s and %s\n", *start, *end)
		os.Exit(1)
	}

	params := models.StrategyParams{
		StartDate:   *start,
		EndDate:     *end,
		StartAsset:  models.Asset(*asset),
		StartAmount: *amount,
	}
	if *up > 0 {
		params.UpThreshold = up
	}
	if *down > 0 {
		params.DownThreshold = down
	}

	out, err := strategy.Simulate(records, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}

	printOutcome(records, params, out)

	if *exportPath != "" {
		if err := exportCSV(*exportPath, records); err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nExported %d rows to %s\n", len(records), *exportPath)
	}
}

// loadRecords reads the price window either from a CSV file or from the
// store the environment points at. No remote fetching here: the CLI
// simulates over the data you already have.
func loadRecords(ctx context.Context, csvPath, start, end string) ([]models.PriceRecord, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		records, dropped, err := normalize.ReadCSV(f)
		if err != nil {
			return nil, err
		}
		if dropped > 0 {
			fmt.Printf("Dropped %d unusable rows from %s\n", dropped, csvPath)
		}
		return series.Slice(series.SortDedupe(records), start, end), nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var store series.BlobStore
	if cfg.UsePostgres() {
		pool, err := db.Connect(cfg.DSN())
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		pg, err := repository.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, err
		}
		store = pg
	} else {
		sq, err := repository.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer sq.Close()
		store = sq
	}

	cached := series.NewCache(store).Load(ctx)
	return series.Slice(cached, start, end), nil
}

func printOutcome(records []models.PriceRecord, params models.StrategyParams, out *strategy.Outcome) {
	first := out.Points[0]
	last := out.Points[len(out.Points)-1]

	fmt.Printf("Simulated %d days, %s..%s, %s %.2f USD\n",
		len(out.Points), first.Date, last.Date, params.StartAsset, params.StartAmount)
	fmt.Printf("Thresholds: up %s, down %s\n",
		thresholdLabel(params.UpThreshold), thresholdLabel(params.DownThreshold))

	if len(out.Switches) == 0 {
		fmt.Println("\nNo switches fired")
	} else {
		fmt.Printf("\n%d switches:\n", len(out.Switches))
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Date", "Direction", "Ratio", "Units", "Value")
		for _, sw := range out.Switches {
			table.Append(
				sw.Date,
				string(sw.Direction),
				fmt.Sprintf("%.2f", sw.Ratio),
				fmt.Sprintf("%.6f", sw.Units),
				fmt.Sprintf("$%.2f", sw.Value),
			)
		}
		table.Render()
	}

	fmt.Println()
	summary := tablewriter.NewWriter(os.Stdout)
	summary.Header("Portfolio", "Final value", "Return")
	summary.Append("strategy", fmt.Sprintf("$%.2f", last.PortfolioValue), fmt.Sprintf("%+.2f%%", last.PortfolioPct))
	summary.Append("hold gold", fmt.Sprintf("$%.2f", last.GoldOnlyValue), fmt.Sprintf("%+.2f%%", last.GoldPct))
	summary.Append("hold silver", fmt.Sprintf("$%.2f", last.SilverOnlyValue), fmt.Sprintf("%+.2f%%", last.SilverPct))
	summary.Render()

	fmt.Printf("\nEnds holding %.6f units of %s\n", last.HeldUnits, last.HeldAsset)
}

func thresholdLabel(v *float64) string {
	if v == nil {
		return "off"
	}
	return fmt.Sprintf("%.2f", *v)
}

func exportCSV(path string, records []models.PriceRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return normalize.WriteCSV(f, records)
}
