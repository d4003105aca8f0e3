// Package orchestrator implements the construction/teardown lifecycle
// of §4.6: load configuration, build the topology oracle, shared
// state, scheduler, and mapper, run the mapper loop to completion, and
// emit the report. Mirrors the original's runtime_initialize/
// runtime_start/runtime_stop/runtime_finalize sequence, but with a
// clean switch over scheduler/mapper type instead of the original's
// fallthrough-prone one.
package orchestrator

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/DonAurelio/nflows/internal/config"
	"github.com/DonAurelio/nflows/internal/costmodel"
	"github.com/DonAurelio/nflows/internal/dag"
	"github.com/DonAurelio/nflows/internal/engine"
	nferrors "github.com/DonAurelio/nflows/internal/errors"
	"github.com/DonAurelio/nflows/internal/report"
	"github.com/DonAurelio/nflows/internal/scheduler"
	"github.com/DonAurelio/nflows/internal/sharedstate"
	"github.com/DonAurelio/nflows/internal/telemetry"
	"github.com/DonAurelio/nflows/internal/topology"
)

// Run loads configPath, builds every component, drives the mapper to
// completion, and writes the report. When report_export_addr is set,
// it also starts an HTTP/3 server exposing the finished report for an
// external dashboard to pull, and returns it so the caller can decide
// how long to keep it alive; the caller is responsible for closing it.
// Otherwise the returned server is nil. Beyond that there is no
// separate teardown step: Go's garbage collector retires the owned
// State/Oracle once Run returns (the original's explicit safe_delete
// sequence has no analog here).
func Run(configPath string, log zerolog.Logger) (*telemetry.Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	graph, err := dag.LoadDOT(cfg.DagFile)
	if err != nil {
		return nil, err
	}

	clockMode, err := topology.ParseClockFrequencyMode(cfg.ClockFrequencyType)
	if err != nil {
		return nil, err
	}

	avail, err := cfg.CoreAvailability()
	if err != nil {
		return nil, err
	}

	latency, err := costmodel.LoadMatrix(cfg.DistanceMatrices.LatencyNs)
	if err != nil {
		return nil, err
	}
	bandwidth, err := costmodel.LoadMatrix(cfg.DistanceMatrices.BandwidthGbps)
	if err != nil {
		return nil, err
	}

	// The distance matrices are square, one row/column per NUMA node;
	// their dimension is the authoritative NUMA node count.
	numaNodes := len(latency)
	if numaNodes == 0 {
		numaNodes = 1
	}
	cores := topology.DiscoverCoresPerNUMANode(len(avail), numaNodes, 2)
	oracle := topology.NewOracle(cores, topology.Config{
		ClockMode:     clockMode,
		StaticHz:      cfg.ClockFrequencyHz,
		ArrayHz:       cfg.ClockFrequenciesHz,
		FlopsPerCycle: cfg.FlopsPerCycle,
	})

	state := sharedstate.New(avail)
	registerCounters(graph, state)

	mode, err := parseMapperType(cfg.MapperType)
	if err != nil {
		return nil, err
	}
	memPolicy, err := topology.ParseMemPolicy(cfg.MapperMemPolicyType)
	if err != nil {
		return nil, err
	}

	env := scheduler.Env{
		Graph:               graph,
		State:               state,
		Oracle:              oracle,
		FlopsPerCycle:       cfg.FlopsPerCycle,
		LatencyNsMatrix:     latency,
		BandwidthGbpsMatrix: bandwidth,
		Params:              cfg.SchedulerParamMap(),
		Simulation:          mode == engine.ModeSimulation,
	}
	sched, err := buildScheduler(cfg.SchedulerType, env)
	if err != nil {
		return nil, err
	}

	mapper := &engine.Mapper{
		Graph:               graph,
		State:               state,
		Oracle:              oracle,
		Scheduler:           sched,
		Mode:                mode,
		FlopsPerCycle:       cfg.FlopsPerCycle,
		LatencyNsMatrix:     latency,
		BandwidthGbpsMatrix: bandwidth,
		MemPolicy:           memPolicy,
		MemBindNUMAIDs:      cfg.MapperMemBindNumaNodeIDs,
		Backoff:             time.Duration(cfg.MapperBackoffMs) * time.Millisecond,
		Log:                 log,
	}

	if err := mapper.Start(); err != nil {
		return nil, err
	}

	doc := report.Document{
		FlopsPerCycle:       cfg.FlopsPerCycle,
		ClockFrequencyType:  cfg.ClockFrequencyType,
		ClockFrequencyHz:    cfg.ClockFrequencyHz,
		ClockFrequenciesHz:  cfg.ClockFrequenciesHz,
		LatencyNsMatrix:     latency,
		BandwidthGbpsMatrix: bandwidth,
		TaskCount:           len(graph.Tasks()),
		EdgeReadCount:       countReads(graph),
		EdgeWriteCount:      countWrites(graph),
		Snapshot:            state.Snapshot(),
	}
	if err := report.Write(cfg.OutFileName, doc); err != nil {
		return nil, err
	}

	if cfg.ReportExportAddr == "" {
		return nil, nil
	}

	reportBytes, err := os.ReadFile(cfg.OutFileName)
	if err != nil {
		return nil, fmt.Errorf("cannot read report for export: %w", err)
	}
	tlsCfg, err := telemetry.SelfSignedTLSConfig([]string{hostOf(cfg.ReportExportAddr)}, 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("cannot build report export TLS config: %w", err)
	}
	srv, err := telemetry.ServeReport(cfg.ReportExportAddr, tlsCfg, reportBytes)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.ReportExportAddr).Msg("report export server failed to start")
		return nil, nil
	}
	log.Info().Str("addr", srv.Addr()).Msg("serving finished report over HTTP/3")
	return srv, nil
}

// hostOf returns the host portion of an addr (host:port), falling
// back to the whole string when it carries no port, for use as the
// self-signed certificate's subject.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// buildScheduler resolves scheduler_type to a concrete policy. Unlike
// the original's switch (which falls through every case because each
// is missing a break), exactly one policy is constructed here.
func buildScheduler(schedulerType string, env scheduler.Env) (scheduler.Scheduler, error) {
	switch schedulerType {
	case "min-min":
		return scheduler.NewMinMin(env), nil
	case "heft":
		return scheduler.NewHEFT(env), nil
	case "fifo":
		return scheduler.NewFIFO(env), nil
	default:
		return nil, nferrors.InvalidConfig("unknown scheduler_type", map[string]interface{}{"scheduler_type": schedulerType})
	}
}

func parseMapperType(s string) (engine.Mode, error) {
	switch s {
	case "bare-metal":
		return engine.ModeBareMetal, nil
	case "simulation":
		return engine.ModeSimulation, nil
	default:
		return 0, nferrors.InvalidConfig("unknown mapper_type", map[string]interface{}{"mapper_type": s})
	}
}

// registerCounters zero-initializes the activity counters for every
// task and edge before the mapper loop starts, matching the original's
// runtime_initialize counter seeding loop (skipping ...->end writes).
func registerCounters(g *dag.Graph, state *sharedstate.State) {
	for _, t := range g.Tasks() {
		state.RegisterTask(t.Name)
		for _, e := range g.Incoming(t.Name) {
			state.RegisterEdgeRead(e.Key())
		}
		for _, e := range g.Outgoing(t.Name) {
			if e.Dst == dag.SinkName {
				continue
			}
			state.RegisterEdgeWrite(e.Key())
		}
	}
}

func countReads(g *dag.Graph) int {
	n := 0
	for _, t := range g.Tasks() {
		n += len(g.Incoming(t.Name))
	}
	return n
}

func countWrites(g *dag.Graph) int {
	n := 0
	for _, t := range g.Tasks() {
		for _, e := range g.Outgoing(t.Name) {
			if e.Dst != dag.SinkName {
				n++
			}
		}
	}
	return n
}
