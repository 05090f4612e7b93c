// Command specexecd runs one HStoreSite node: it loads a TOML config,
// starts from an empty catalog (no procedures or conflict pairs), builds
// the per-partition storage engine stubs, wires
// the Site orchestrator, starts the restart loop and the status
// collector's metrics endpoint, and blocks until terminated. Grounded on
// tinykv's kv/tinykv-server/main.go wiring sequence (flag parsing ->
// config load -> inner server construction -> serve -> signal handling).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/config"
	"github.com/sdhost/h-store/executor"
	"github.com/sdhost/h-store/logutil"
	"github.com/sdhost/h-store/site"
	"github.com/sdhost/h-store/status"
)

var (
	configPath string
	siteID     uint32
	statusAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "specexecd",
		Short: "runs a speculative-execution partition-executor node",
		RunE:  run,
	}
	flags := root.Flags()
	flags.StringVar(&configPath, "config", "", "path to a TOML config file")
	flags.Uint32Var(&siteID, "site-id", 0, "this node's site id")
	flags.StringVar(&statusAddr, "status-addr", ":9090", "address to serve /metrics and /status on")

	if err := root.Execute(); err != nil {
		logutil.Fatalf("specexecd: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg = config.NewDefaultConfig()
	}
	if err != nil {
		return err
	}
	logutil.SetLevelByString(cfg.LogLevel)
	logutil.Infof("starting specexecd site=%d partitions=%d markov=%v", siteID, cfg.NumPartitions, cfg.Markov.Enable)

	cat := catalog.Catalog{}

	localPartitions := make([]uint32, cfg.NumPartitions)
	engines := make(map[uint32]executor.Engine, cfg.NumPartitions)
	for i := 0; i < cfg.NumPartitions; i++ {
		p := uint32(i)
		localPartitions[i] = p
		engines[p] = newInMemoryEngine()
	}

	s := site.New(site.Options{
		SiteID:          siteID,
		Config:          cfg,
		Catalog:         &cat,
		LocalPartitions: localPartitions,
		Engines:         engines,
	})
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunRestartLoop(ctx)

	collector := status.NewCollector(s)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		collector.Collect()
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		logutil.Infof("listening on %s", statusAddr)
		if err := http.ListenAndServe(statusAddr, mux); err != nil {
			logutil.Errorf("status server stopped: %v", err)
		}
	}()

	waitForSignal()
	logutil.Info("specexecd stopped.")
	return nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigCh
	logutil.Infof("got signal [%s] to exit.", sig)
}
