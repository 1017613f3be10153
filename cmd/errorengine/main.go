// Command errorengine is the primary entrypoint: it wires the bus,
// resolver, registry, evaluator, and orchestrator together, pacing one
// fix at a time off the input bus and publishing each result to the
// output bus and, if enabled, the diagnostics dashboard. Structurally
// follows cmd/udp_server/main.go's sequential-construction,
// goroutine-start, signal-wait shutdown idiom.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cep95-engine/internal/bus"
	"cep95-engine/internal/config"
	"cep95-engine/internal/evaluator"
	"cep95-engine/internal/fix"
	"cep95-engine/internal/orchestrator"
	"cep95-engine/internal/pathloss"
	"cep95-engine/internal/registry"
	"cep95-engine/internal/resolver"
	"cep95-engine/internal/wire"
	"cep95-engine/web"
)

func main() {
	inputAddr := flag.String("input-addr", config.EnvOr("CEP95_INPUT_ADDR", ":9001"), "address to listen on for incoming fixes")
	outputAddr := flag.String("output-addr", config.EnvOr("CEP95_OUTPUT_ADDR", ""), "TCP address to publish results to (host:port)")

	resolverURL := flag.String("resolver-url", config.EnvOr("CEP95_RESOLVER_URL", config.DefaultResolver().URLTemplate), "anchor resolution endpoint, with {} as the anchor id placeholder")
	resolverUser := flag.String("resolver-user", config.EnvOr("CEP95_RESOLVER_USER", config.DefaultResolver().Username), "anchor resolution basic auth username")
	resolverPass := flag.String("resolver-pass", config.EnvOr("CEP95_RESOLVER_PASS", config.DefaultResolver().Password), "anchor resolution basic auth password")

	maxSignificant := flag.Int("max-significant-anchors", config.EnvOrInt("CEP95_MAX_SIGNIFICANT_ANCHORS", config.DefaultCalibration().MaxSignificantAnchors), "max anchors used per estimate")
	ewmaThreshold := flag.Float64("ewma-threshold", config.EnvOrFloat("CEP95_EWMA_THRESHOLD", config.DefaultCalibration().EWMAThreshold), "EWMA health gate for significant-anchor selection")
	lambda := flag.Float64("lambda", config.EnvOrFloat("CEP95_LAMBDA", config.DefaultCalibration().Lambda), "EWMA smoothing factor")
	deltaR := flag.Float64("delta-r", config.EnvOrFloat("CEP95_DELTA_R", config.DefaultCalibration().DeltaR), "max RSSI delta from strongest anchor for health admission, dB")
	tVisMS := flag.Int("t-vis-ms", config.EnvOrInt("CEP95_T_VIS_MS", int(config.DefaultCalibration().TVis.Milliseconds())), "max time since last_seen for health admission, ms")
	studentTDoF := flag.Int("student-t-dof", config.EnvOrInt("CEP95_STUDENT_T_DOF", config.DefaultCalibration().StudentTDoF), "Student-t degrees of freedom for the confidence score")

	dashboardPort := flag.Int("dashboard-port", config.EnvOrInt("CEP95_DASHBOARD_PORT", 0), "diagnostics dashboard HTTP/WebSocket port; 0 to disable")
	dashboardDist := flag.String("dashboard-dist", config.EnvOr("CEP95_DASHBOARD_DIST", ""), "path to the dashboard's static frontend bundle")
	flag.Parse()

	if *inputAddr == "" {
		log.Fatalf("errorengine: -input-addr is required")
	}

	calib := config.DefaultCalibration()
	calib.MaxSignificantAnchors = *maxSignificant
	calib.EWMAThreshold = *ewmaThreshold
	calib.Lambda = *lambda
	calib.DeltaR = *deltaR
	calib.TVis = time.Duration(*tVisMS) * time.Millisecond
	calib.StudentTDoF = *studentTDoF

	res := resolver.New(*resolverURL, *resolverUser, *resolverPass)
	reg := registry.New(res)
	eval := evaluator.New(pathloss.Default(), calib)
	orch := orchestrator.New(reg, eval, calib)

	var dashboard *web.Server
	if *dashboardPort > 0 {
		dashboard = web.NewServer()
		go dashboard.Start(*dashboardPort, *dashboardDist)
	}

	var publisher bus.Publisher
	if *outputAddr != "" {
		pub := bus.NewTCPPublisher([]string{*outputAddr})
		if err := pub.Start(); err != nil {
			log.Fatalf("errorengine: starting output bus: %v", err)
		}
		defer pub.Stop()
		publisher = pub
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &bus.TCPSubscriber{Addr: *inputAddr}
	go func() {
		handler := func(payload []byte) {
			handleFix(ctx, orch, publisher, dashboard, payload)
		}
		if err := sub.Subscribe(ctx, handler); err != nil {
			log.Printf("errorengine: input subscriber exited: %v", err)
		}
	}()

	log.Printf("errorengine: listening for fixes on %s", *inputAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("errorengine: shutting down...")
	cancel()
}

func handleFix(ctx context.Context, orch *orchestrator.Orchestrator, publisher bus.Publisher, dashboard *web.Server, payload []byte) {
	var f fix.Fix
	defer func() {
		if r := recover(); r != nil {
			log.Printf("errorengine: recovered from panic processing fix (tag %q, timestamp %.0f): %v", f.TagID, f.TimestampMS, r)
		}
	}()

	f, unused, err := wire.DecodeInput(payload)
	if err != nil {
		log.Printf("errorengine: dropping malformed fix: %v", err)
		return
	}

	now := float64(time.Now().UnixMilli())
	out, ok := orch.Process(ctx, f, unused, now)
	if !ok {
		return
	}

	if publisher != nil {
		encoded, err := wire.EncodeOutput(out)
		if err != nil {
			log.Printf("errorengine: failed to encode output: %v", err)
		} else if err := publisher.Publish(encoded); err != nil {
			log.Printf("errorengine: failed to publish output: %v", err)
		}
	}

	if dashboard != nil {
		dashboard.Publish(web.DiagnosticRecord{
			Output:        out,
			MessageCounts: orch.MessageCounts(),
		})
	}
}
