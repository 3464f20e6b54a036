// Package simulation wires the engine, the flow monitor, the network and the
// outputs of one simulation run together.
package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sarchlab/flowsim/datarecording"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/flowexport"
	"github.com/sarchlab/flowsim/idgen"
	"github.com/sarchlab/flowsim/monitoring"
	"github.com/sarchlab/flowsim/netmodel"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sarchlab/flowsim/traffic"
	"github.com/sirupsen/logrus"
)

// ErrNoNetwork is returned when traffic is added before the network exists.
var ErrNoNetwork = errors.New("simulation: network is not built")

// A Simulation provides the service requires to define a simulation.
type Simulation struct {
	id     string
	logger logrus.FieldLogger

	engine      *sim.SerialEngine
	classifier  *flow.Classifier
	flowMonitor *flow.Monitor
	packetIDs   *idgen.Sequential
	network     *netmodel.Network
	sources     []*traffic.CBRSource

	outputPath   string
	recorderLock sync.Mutex
	dataRecorder datarecording.DataRecorder

	monitor     *monitoring.Monitor
	timeBar     *monitoring.ProgressBar
	timeTracker *monitoring.SimTimeTracker

	terminated bool
}

// ID returns the unique id of the run.
func (s *Simulation) ID() string {
	return s.id
}

// GetEngine returns the engine used in the simulation.
func (s *Simulation) GetEngine() sim.Engine {
	return s.engine
}

// GetClassifier returns the flow classifier.
func (s *Simulation) GetClassifier() *flow.Classifier {
	return s.classifier
}

// GetFlowMonitor returns the flow monitor.
func (s *Simulation) GetFlowMonitor() *flow.Monitor {
	return s.flowMonitor
}

// GetNetwork returns the network, or nil if it is not built yet.
func (s *Simulation) GetNetwork() *netmodel.Network {
	return s.network
}

// GetMonitor returns the monitor used in the simulation, or nil when
// monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// GetPacketIDGenerator returns the generator that numbers packets.
func (s *Simulation) GetPacketIDGenerator() idgen.Generator {
	return s.packetIDs
}

// GetSources returns the traffic sources added so far.
func (s *Simulation) GetSources() []*traffic.CBRSource {
	return s.sources
}

// GetDataRecorder returns the data recorder, creating its database on first
// use.
func (s *Simulation) GetDataRecorder() (datarecording.DataRecorder, error) {
	s.recorderLock.Lock()
	defer s.recorderLock.Unlock()

	if s.dataRecorder == nil {
		r, err := datarecording.New(s.outputPath)
		if err != nil {
			return nil, err
		}

		s.dataRecorder = r
	}

	return s.dataRecorder, nil
}

// BuildNetwork creates the network over a topology. The flow monitor
// observes every packet the network carries.
func (s *Simulation) BuildNetwork(
	topo *netmodel.Topology,
	seed uint64,
) *netmodel.Network {
	s.network = netmodel.MakeBuilder().
		WithEngine(s.engine).
		WithSeed(seed).
		WithLogger(s.logger).
		Build(topo)
	s.network.AddProbe(s.flowMonitor)

	if s.monitor != nil {
		s.monitor.RegisterNetwork(s.network)
	}

	return s.network
}

// AddSource installs a traffic source on the network.
func (s *Simulation) AddSource(src *traffic.CBRSource) error {
	if s.network == nil {
		return ErrNoNetwork
	}

	if err := src.Install(s.engine, s.network, s.packetIDs); err != nil {
		return err
	}

	s.sources = append(s.sources, src)

	return nil
}

// Stop sets the time at which Run returns.
func (s *Simulation) Stop(at sim.VTime) {
	s.engine.Stop(at)

	if s.monitor == nil {
		return
	}

	if s.timeBar != nil {
		s.monitor.CompleteProgressBar(s.timeBar)
	}

	s.timeBar = s.monitor.CreateProgressBar("Simulated time", uint64(at))

	if s.timeTracker == nil {
		s.timeTracker = monitoring.NewSimTimeTracker(s.timeBar)
		s.engine.AcceptHook(s.timeTracker)

		return
	}

	s.timeTracker.SetBar(s.timeBar)
}

// Run runs the engine until no event is left or the stop time is reached.
func (s *Simulation) Run() error {
	s.logger.WithField("run", s.id).Info("simulation started")

	start := time.Now()
	err := s.engine.Run()

	entry := s.logger.WithFields(logrus.Fields{
		"run":       s.id,
		"sim_time":  s.engine.Now().Seconds(),
		"wall_time": time.Since(start).Seconds(),
		"in_flight": s.flowMonitor.InFlight(),
	})

	if err != nil {
		entry.WithError(err).Error("simulation aborted")
		return err
	}

	entry.Info("simulation finished")

	return nil
}

// CheckForLostPackets declares lost the packets that are in flight for
// longer than the configured maximum per-hop delay.
func (s *Simulation) CheckForLostPackets() int {
	return s.flowMonitor.CheckForLostPacketsDefault()
}

// Snapshot captures the current flow records.
func (s *Simulation) Snapshot() flowexport.Snapshot {
	return flowexport.TakeSnapshot(s.id, s.engine, s.flowMonitor)
}

// Export writes the current flow records through every exporter.
func (s *Simulation) Export(exporters ...flowexport.Exporter) error {
	return flowexport.ExportAll(s.Snapshot(), exporters...)
}

// ExportToDataRecorder stores the current flow records in the run's
// database.
func (s *Simulation) ExportToDataRecorder() error {
	recorder, err := s.GetDataRecorder()
	if err != nil {
		return err
	}

	return flowexport.NewDBWriter(recorder).Export(s.Snapshot())
}

// Terminate tears the simulation down. It drops every pending event, clears
// the flow records and closes the outputs. Check for lost packets and export
// the results before terminating.
func (s *Simulation) Terminate() error {
	if s.terminated {
		return nil
	}
	s.terminated = true

	s.engine.Destroy()
	s.flowMonitor.Reset()
	s.packetIDs.Reset()

	var errs []error

	s.recorderLock.Lock()
	if s.dataRecorder != nil {
		errs = append(errs, s.dataRecorder.Close())
	}
	s.recorderLock.Unlock()

	if s.monitor != nil {
		if s.timeBar != nil {
			s.monitor.CompleteProgressBar(s.timeBar)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		errs = append(errs, s.monitor.StopServer(ctx))
		cancel()
	}

	return errors.Join(errs...)
}
