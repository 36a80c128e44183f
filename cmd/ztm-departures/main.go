package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	lib "github.com/transit-panel/ztm-departures"
	"github.com/transit-panel/ztm-departures/config"
	"github.com/transit-panel/ztm-departures/scheduler"
	"github.com/transit-panel/ztm-departures/ztmapi"
)

func main() {
	mode := flag.String("mode", "serve", "serve|oneshot|validate")
	stopName := flag.String("stop", "", "subscription name from config.stops[] (oneshot/validate)")
	stopID := flag.String("stopId", "", "stop complex id (overrides config)")
	stopNr := flag.String("stopNr", "", "stop post number (overrides config)")
	line := flag.String("line", "", "line designator (overrides config)")
	flag.Parse()

	lib.InitLogging()
	if err := config.LoadAppConfig(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	switch *mode {
	case "serve":
		serve()
	case "oneshot":
		oneshot(selectStop(*stopName, *stopID, *stopNr, *line))
	case "validate":
		validate(selectStop(*stopName, *stopID, *stopNr, *line))
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

// selectStop resolves the target subscription from config plus flag
// overrides.
func selectStop(name, stopID, stopNr, line string) config.Stop {
	stop, ok := config.SelectStop(name)
	if stopID != "" {
		stop.StopID = stopID
		ok = true
	}
	if stopNr != "" {
		stop.StopNr = stopNr
	}
	if line != "" {
		stop.Line = line
	}
	if !ok || stop.StopID == "" || stop.StopNr == "" || stop.Line == "" {
		log.Fatal("no stop selected: configure stops[] or pass -stopId, -stopNr and -line")
	}
	return stop
}

func subscriptionOptions() lib.Options {
	cfg := config.Config
	opts := lib.Options{}
	if cfg.API.TimeoutMS > 0 {
		opts.API.Timeout = time.Duration(cfg.API.TimeoutMS) * time.Millisecond
	}
	if cfg.API.StopInfoTTLHours > 0 {
		opts.API.StopInfoTTL = time.Duration(cfg.API.StopInfoTTLHours) * time.Hour
	}
	if cfg.API.TimetableURL != "" {
		opts.API.TimetableEndpoint = cfg.API.TimetableURL
	}
	if cfg.API.StopInfoURL != "" {
		opts.API.StopInfoEndpoint = cfg.API.StopInfoURL
	}
	if cfg.Refresh.IntervalMinutes > 0 {
		opts.Scheduler.Interval = time.Duration(cfg.Refresh.IntervalMinutes) * time.Minute
	}
	if cfg.Refresh.JitterSeconds > 0 {
		opts.Scheduler.JitterMax = time.Duration(cfg.Refresh.JitterSeconds) * time.Second
	}
	if cfg.Refresh.RetrySeconds > 0 {
		opts.Scheduler.RetryDelay = time.Duration(cfg.Refresh.RetrySeconds) * time.Second
	}
	for _, at := range cfg.Refresh.DailyAt {
		t, err := time.Parse("15:04", at)
		if err != nil {
			log.Fatalf("invalid refresh.dailyAt entry %q: %v", at, err)
		}
		opts.Scheduler.DailyTriggers = append(opts.Scheduler.DailyTriggers,
			scheduler.DayClock{Hour: t.Hour(), Minute: t.Minute()})
	}
	return opts
}

func serve() {
	if len(config.Config.Stops) == 0 {
		log.Fatal("no stops configured: add at least one entry to stops[] in config.yml")
	}

	ctx := context.Background()
	opts := subscriptionOptions()
	handles := make([]*lib.ClientHandle, 0, len(config.Config.Stops))
	for _, stop := range config.Config.Stops {
		o := opts
		if stop.Name != "" {
			o.Scheduler.Name = stop.Name
		}
		h, err := lib.Configure(ctx, config.Config.API.Key, stop.StopID, stop.StopNr, stop.Line, o)
		if err != nil {
			log.Fatalf("subscription %s/%s line %s: %v", stop.StopID, stop.StopNr, stop.Line, err)
		}
		handles = append(handles, h)
	}

	lib.StartServer(handles)
	lib.HandleGracefulShutdown()
}

func oneshot(stop config.Stop) {
	opts := subscriptionOptions()
	// no background refreshing in oneshot mode
	opts.Scheduler.Interval = 24 * time.Hour
	opts.Scheduler.DailyTriggers = []scheduler.DayClock{}

	h, err := lib.Configure(context.Background(), config.Config.API.Key, stop.StopID, stop.StopNr, stop.Line, opts)
	if err != nil {
		log.Fatalf("subscription error: %v", err)
	}
	defer h.Shutdown()

	snap, ok := h.Snapshot()
	if !ok {
		log.Fatal("fetch failed: no data")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(snap)
}

func validate(stop config.Stop) {
	if !ztmapi.ValidStopNumber(stop.StopNr) {
		fmt.Println("invalid_stop_nr")
		os.Exit(1)
	}

	client, err := ztmapi.New(config.Config.API.Key, stop.StopID, stop.StopNr, stop.Line, ztmapi.Options{})
	if err != nil {
		log.Fatalf("client error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	status := client.Validate(ctx)
	fmt.Println(status)
	if status != ztmapi.StatusOK {
		os.Exit(1)
	}
}
