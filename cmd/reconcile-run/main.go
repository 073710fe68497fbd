package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/workflow"
)

func main() {
	brokerID := flag.String("broker-id", "", "Optional: reconcile only one broker (uuid string). If empty, reconciles all active brokers.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if strings.TrimSpace(*brokerID) != "" {
		summary, err := workflow.ReconcileBroker(ctx, db, logger, strings.TrimSpace(*brokerID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		if len(summary.Errors) > 0 {
			os.Exit(1)
		}
		return
	}

	ids, err := models.ListActiveBrokerIds(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list brokers: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no active brokers found")
		return
	}

	failed := 0
	for _, id := range ids {
		summary, err := workflow.ReconcileBroker(ctx, db, logger, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "broker %s: reconcile failed: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("broker %s: processed=%d created=%d completed=%d flagged=%d errors=%d\n",
			summary.BrokerId, summary.Processed, summary.Created, summary.Completed, summary.Flagged, len(summary.Errors))
		if len(summary.Errors) > 0 {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
