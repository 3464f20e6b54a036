// Package monitoring turns a running simulation into an HTTP server that can
// be inspected and controlled while it runs.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/netmodel"
	"github.com/sarchlab/flowsim/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"
)

// NetworkStatsReporter reports packet counters of a network.
type NetworkStatsReporter interface {
	Stats() netmodel.Stats
}

type runningTeller interface {
	IsRunning() bool
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	engine      sim.Engine
	flowMonitor *flow.Monitor
	network     NetworkStatsReporter
	portNumber  int
	logger      logrus.FieldLogger

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		logger: logrus.StandardLogger(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.logger.Warnf("Port number %d is assigned to the monitoring server, "+
			"which is not allowed. Using a random port instead.", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger logrus.FieldLogger) *Monitor {
	m.logger = logger
	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.engine = e
}

// RegisterFlowMonitor registers the flow monitor whose records are served.
func (m *Monitor) RegisterFlowMonitor(fm *flow.Monitor) {
	m.flowMonitor = fm
}

// RegisterNetwork registers the network whose counters are served.
func (m *Monitor) RegisterNetwork(n NetworkStatsReporter) {
	m.network = n
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/flows", m.listFlows)
	r.HandleFunc("/api/flow/{id}", m.flowDetails)
	r.HandleFunc("/api/summary", m.summary)
	r.HandleFunc("/api/network", m.networkStats)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("monitoring: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.logger.Infof("Monitoring simulation with %s", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.WithError(err).Error("monitoring server stopped")
		}
	}()

	return url, nil
}

// OpenInBrowser opens the monitor's flow list in the default browser.
func (m *Monitor) OpenInBrowser() error {
	if m.listener == nil {
		return errors.New("monitoring: server is not started")
	}

	port := m.listener.Addr().(*net.TCPAddr).Port

	return browser.OpenURL(fmt.Sprintf("http://localhost:%d/api/flows", port))
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	err := m.server.Shutdown(ctx)
	m.server = nil
	m.listener = nil

	return err
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

type nowRsp struct {
	Now   float64 `json:"now"`
	NowNs int64   `json:"now_ns"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	now := m.engine.Now()
	m.writeJSON(w, nowRsp{Now: now.Seconds(), NowNs: int64(now)})
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	if rt, ok := m.engine.(runningTeller); ok && rt.IsRunning() {
		http.Error(w, "simulation is already running", http.StatusConflict)
		return
	}

	go func() {
		err := m.engine.Run()
		if err != nil {
			m.logger.WithError(err).Error("simulation run failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

type flowRsp struct {
	FlowID           flow.FlowID `json:"flow_id"`
	Key              string      `json:"key"`
	TxPackets        uint64      `json:"tx_packets"`
	RxPackets        uint64      `json:"rx_packets"`
	TxBytes          uint64      `json:"tx_bytes"`
	RxBytes          uint64      `json:"rx_bytes"`
	LostPackets      uint64      `json:"lost_packets"`
	DuplicatePackets uint64      `json:"duplicate_packets"`
	ThroughputBps    float64     `json:"throughput_bps"`
	MeanDelayNs      int64       `json:"mean_delay_ns"`
	MeanJitterNs     int64       `json:"mean_jitter_ns"`
	DeliveryRatio    float64     `json:"delivery_ratio"`
}

func makeFlowRsp(f flow.FlowStats) flowRsp {
	return flowRsp{
		FlowID:           f.FlowID,
		Key:              f.Key.String(),
		TxPackets:        f.TxPackets,
		RxPackets:        f.RxPackets,
		TxBytes:          f.TxBytes,
		RxBytes:          f.RxBytes,
		LostPackets:      f.LostPackets,
		DuplicatePackets: f.DuplicatePackets,
		ThroughputBps:    f.ThroughputBps(),
		MeanDelayNs:      int64(f.MeanDelay()),
		MeanJitterNs:     int64(f.MeanJitter()),
		DeliveryRatio:    f.DeliveryRatio(),
	}
}

func (m *Monitor) listFlows(w http.ResponseWriter, _ *http.Request) {
	if !m.flowMonitorOr503(w) {
		return
	}

	stats := m.flowMonitor.SortedFlowStats()
	rsp := make([]flowRsp, 0, len(stats))

	for _, f := range stats {
		rsp = append(rsp, makeFlowRsp(f))
	}

	m.writeJSON(w, rsp)
}

// flowDetail is the flat record served for a single flow.
type flowDetail struct {
	FlowID            uint32
	Source            string
	Destination       string
	Protocol          string
	SourcePort        uint16
	DestinationPort   uint16
	TxPackets         uint64
	RxPackets         uint64
	TxBytes           uint64
	RxBytes           uint64
	LostPackets       uint64
	DuplicatePackets  uint64
	TimesForwarded    uint64
	DelaySumNs        int64
	JitterSumNs       int64
	LastDelayNs       int64
	TimeFirstTxPacket int64
	TimeLastTxPacket  int64
	TimeFirstRxPacket int64
	TimeLastRxPacket  int64
}

func (m *Monitor) flowDetails(w http.ResponseWriter, r *http.Request) {
	if !m.flowMonitorOr503(w) {
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, "invalid flow id", http.StatusBadRequest)
		return
	}

	f, found := m.flowMonitor.FlowStatsOf(flow.FlowID(id))
	if !found {
		http.Error(w, "Flow not found", http.StatusNotFound)
		return
	}

	detail := &flowDetail{
		FlowID:            uint32(f.FlowID),
		Source:            f.Key.Src.String(),
		Destination:       f.Key.Dst.String(),
		Protocol:          f.Key.Protocol.String(),
		SourcePort:        f.Key.SrcPort,
		DestinationPort:   f.Key.DstPort,
		TxPackets:         f.TxPackets,
		RxPackets:         f.RxPackets,
		TxBytes:           f.TxBytes,
		RxBytes:           f.RxBytes,
		LostPackets:       f.LostPackets,
		DuplicatePackets:  f.DuplicatePackets,
		TimesForwarded:    f.TimesForwarded,
		DelaySumNs:        int64(f.DelaySum),
		JitterSumNs:       int64(f.JitterSum),
		LastDelayNs:       int64(f.LastDelay),
		TimeFirstTxPacket: int64(f.TimeFirstTxPacket),
		TimeLastTxPacket:  int64(f.TimeLastTxPacket),
		TimeFirstRxPacket: int64(f.TimeFirstRxPacket),
		TimeLastRxPacket:  int64(f.TimeLastRxPacket),
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(detail)
	serializer.SetMaxDepth(1)

	buf := new(bytes.Buffer)
	if err := serializer.Serialize(buf); err != nil {
		m.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	m.write(w, buf.Bytes())
}

type summaryRsp struct {
	Flows                  int     `json:"flows"`
	TxPackets              uint64  `json:"tx_packets"`
	RxPackets              uint64  `json:"rx_packets"`
	LostPackets            uint64  `json:"lost_packets"`
	InFlight               int     `json:"in_flight"`
	AggregateThroughputBps float64 `json:"aggregate_throughput_bps"`
	MeanThroughputBps      float64 `json:"mean_throughput_bps"`
	MeanDelayNs            int64   `json:"mean_delay_ns"`
	StdDevDelayNs          int64   `json:"stddev_delay_ns"`
	MeanJitterNs           int64   `json:"mean_jitter_ns"`
	DeliveryRatio          float64 `json:"delivery_ratio"`
}

func (m *Monitor) summary(w http.ResponseWriter, _ *http.Request) {
	if !m.flowMonitorOr503(w) {
		return
	}

	s := flow.Summarize(m.flowMonitor.SortedFlowStats())

	m.writeJSON(w, summaryRsp{
		Flows:                  s.Flows,
		TxPackets:              s.TxPackets,
		RxPackets:              s.RxPackets,
		LostPackets:            s.LostPackets,
		InFlight:               m.flowMonitor.InFlight(),
		AggregateThroughputBps: s.AggregateThroughputBps,
		MeanThroughputBps:      s.MeanThroughputBps,
		MeanDelayNs:            int64(s.MeanDelay),
		StdDevDelayNs:          int64(s.StdDevDelay),
		MeanJitterNs:           int64(s.MeanJitter),
		DeliveryRatio:          s.DeliveryRatio,
	})
}

type networkRsp struct {
	Sent      uint64 `json:"sent"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

func (m *Monitor) networkStats(w http.ResponseWriter, _ *http.Request) {
	if m.network == nil {
		http.Error(w, "no network registered", http.StatusServiceUnavailable)
		return
	}

	s := m.network.Stats()
	m.writeJSON(w, networkRsp{
		Sent:      s.Sent,
		Delivered: s.Delivered,
		Dropped:   s.Dropped,
	})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		b.Lock()
		bars = append(bars, ProgressBar{
			ID:        b.ID,
			Name:      b.Name,
			StartTime: b.StartTime,
			Total:     b.Total,
			Finished:  b.Finished,
		})
		b.Unlock()
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	if err != nil {
		m.serverError(w, err)
		return
	}

	cpuPercent, err := process.CPUPercent()
	if err != nil {
		m.serverError(w, err)
		return
	}

	memorySize, err := process.MemoryInfo()
	if err != nil {
		m.serverError(w, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func profileDuration(r *http.Request) (time.Duration, error) {
	str := r.URL.Query().Get("seconds")
	if str == "" {
		return time.Second, nil
	}

	seconds, err := strconv.ParseFloat(str, 64)
	if err != nil || seconds <= 0 || seconds > 60 {
		return 0, fmt.Errorf("invalid profile duration %q", str)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration, err := profileDuration(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buf := bytes.NewBuffer(nil)

	err = pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.serverError(w, err)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) engineOr503(w http.ResponseWriter) bool {
	if m.engine == nil {
		http.Error(w, "no engine registered", http.StatusServiceUnavailable)
		return false
	}

	return true
}

func (m *Monitor) flowMonitorOr503(w http.ResponseWriter) bool {
	if m.flowMonitor == nil {
		http.Error(w, "no flow monitor registered", http.StatusServiceUnavailable)
		return false
	}

	return true
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		m.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	m.write(w, bytes)
}

func (m *Monitor) write(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		m.logger.WithError(err).Debug("monitoring response not written")
	}
}

func (m *Monitor) serverError(w http.ResponseWriter, err error) {
	m.logger.WithError(err).Error("monitoring request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
