package main

import (
	"context"
	"copin/internal/codec"
	"copin/internal/engine"
	"copin/internal/session"
	"copin/types"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

var errIncompleteLink = errors.New("shared link is missing required settings")

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintln(fs.Output(), usage) }
	return fs
}

// run replays a shared backtest link once from the terminal.
func run(ctx context.Context, args []string) error {
	fs := newFlagSet("run")
	query := fs.String("q", "", "shared link query string")
	protocolName := fs.String("protocol", "", "protocol of the link, defaults to the configured one")
	csvPath := fs.String("csv", "", "write multi-account rows to this CSV file")
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	protocol := types.Protocol(a.cfg.Backtest.DefaultProtocol)
	if *protocolName != "" {
		protocol = types.Protocol(*protocolName)
	}
	if _, ok := types.LookupProtocol(protocol); !ok {
		return fmt.Errorf("unknown protocol %s", protocol)
	}
	params := codec.DecodeQuery(*query, protocol)
	if params.Empty() {
		return errIncompleteLink
	}

	if len(params.Accounts) > 1 {
		return runBatch(ctx, a, protocol, params, *csvPath)
	}

	store := session.NewStore("cli", session.NewState(nil))
	stopSpinner := startSpinner("Backtesting " + params.Accounts[0])
	fired, result, err := a.engine.NewAutoSubmitter().Run(ctx, store, protocol, params, true)
	stopSpinner()
	if err != nil {
		return err
	}
	if !fired {
		return errIncompleteLink
	}
	settings := store.State().Current().Settings
	engine.PrintSummary(os.Stdout, engine.SingleSummary(*settings, *result))
	fmt.Printf("Positions:             %d\n", len(result.SimulatorPositions))
	return nil
}

func runBatch(ctx context.Context, a *app, protocol types.Protocol, params codec.Params, csvPath string) error {
	values := params.FormValues()
	batch := engine.NewBatch()

	stopSpinner := startSpinner(fmt.Sprintf("Backtesting %d accounts", len(params.Accounts)))
	err := a.engine.SubmitBatch(ctx, batch, protocol, *values, params.Accounts, "")
	stopSpinner()
	if err != nil {
		return err
	}

	table, err := a.engine.BatchTable(ctx, protocol, batch.Snapshot())
	if err != nil {
		return err
	}
	if err := table.SetSort(types.SortSpec{Column: "roi", Direction: types.SortDesc}); err != nil {
		return err
	}
	engine.PrintBatchReport(os.Stdout, engine.GenerateBatchReport(table.Rows()))
	if csvPath != "" {
		if err := engine.WriteTableCSVFile(csvPath, table.Rows()); err != nil {
			return err
		}
		fmt.Println("Rows written to", csvPath)
	}
	return nil
}

// startSpinner shows an indeterminate progress bar until the returned func is called.
func startSpinner(description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("[cyan]"+description+"...[reset]"),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				_ = bar.Finish()
				fmt.Println()
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
