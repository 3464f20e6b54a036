package simulation

import (
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/idgen"
	"github.com/sarchlab/flowsim/monitoring"
	"github.com/sarchlab/flowsim/sim"
	"github.com/sirupsen/logrus"
)

// Builder can be used to build a simulation.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	outputFileName string
	maxPerHopDelay time.Duration
	binWidths      flow.HistogramBinWidths
	eventLogging   bool
	logger         logrus.FieldLogger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		monitorOn:      true,
		maxPerHopDelay: flow.DefaultMaxPerHopDelay,
		binWidths:      flow.DefaultHistogramBinWidths,
		logger:         logrus.StandardLogger(),
	}
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithMaxPerHopDelay sets how long a packet may stay in flight before the
// flow monitor declares it lost.
func (b Builder) WithMaxPerHopDelay(d time.Duration) Builder {
	b.maxPerHopDelay = d
	return b
}

// WithHistogramBinWidths sets the bin widths of the per-flow delay, jitter
// and packet size histograms.
func (b Builder) WithHistogramBinWidths(w flow.HistogramBinWidths) Builder {
	b.binWidths = w
	return b
}

// WithEventLogging logs every event at debug level.
func (b Builder) WithEventLogging() Builder {
	b.eventLogging = true
	return b
}

// WithLogger sets the logger used by the simulation and its parts.
func (b Builder) WithLogger(logger logrus.FieldLogger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() error {
	if !b.monitorOn && b.monitorPort != 0 {
		return errors.New("monitor port cannot be set when monitoring is disabled")
	}

	if b.maxPerHopDelay <= 0 {
		return errors.New("max per-hop delay must be positive")
	}

	if err := b.binWidths.Validate(); err != nil {
		return err
	}

	return nil
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	if err := b.parametersMustBeValid(); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:     xid.New().String(),
		logger: b.logger,
	}

	s.outputPath = b.outputFileName
	if s.outputPath == "" {
		s.outputPath = "flowsim_" + s.id
	}

	s.engine = sim.NewSerialEngine()
	if b.eventLogging {
		s.engine.AcceptHook(sim.NewEventLogger(b.logger))
	}

	s.classifier = flow.NewClassifier()
	s.flowMonitor = flow.NewMonitor(s.engine, s.classifier)
	s.flowMonitor.SetMaxPerHopDelay(b.maxPerHopDelay)
	if err := s.flowMonitor.SetHistogramBinWidths(b.binWidths); err != nil {
		return nil, err
	}
	s.flowMonitor.AcceptHook(flow.NewAnomalyLogger(b.logger))

	s.packetIDs = idgen.New()

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithLogger(b.logger)
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterEngine(s.engine)
		s.monitor.RegisterFlowMonitor(s.flowMonitor)

		if _, err := s.monitor.StartServer(); err != nil {
			return nil, err
		}
	}

	return s, nil
}
