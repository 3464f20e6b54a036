package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sarchlab/flowsim/flow"
	"github.com/sarchlab/flowsim/flowexport"
	"github.com/sarchlab/flowsim/scenario"
	"github.com/sarchlab/flowsim/simulation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	*globalOptions

	monitor   bool
	port      int
	open      bool
	outputDir string
	logEvents bool
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{globalOptions: global}

	runCmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and write its flow statistics.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}

	runCmd.Flags().BoolVar(&opts.monitor, "monitor", false,
		"Serve the monitoring API while the simulation runs.")
	runCmd.Flags().IntVar(&opts.port, "port", 0,
		"Port of the monitoring API. Defaults to FLOWSIM_MONITOR_PORT or a "+
			"random port.")
	runCmd.Flags().BoolVar(&opts.open, "open", false,
		"Open the monitoring API in a browser.")
	runCmd.Flags().StringVar(&opts.outputDir, "output-dir", "",
		"Directory for the output files. Defaults to FLOWSIM_OUTPUT_DIR or "+
			"the current directory.")
	runCmd.Flags().BoolVar(&opts.logEvents, "log-events", false,
		"Log every simulation event at debug level.")

	return runCmd
}

func (o *runOptions) run(cmd *cobra.Command, path string) error {
	env, err := scenario.LoadEnv(o.envFiles()...)
	if err != nil {
		return err
	}

	logger, err := o.newLogger(cmd, env.LogLevel)
	if err != nil {
		return err
	}

	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%s is invalid:\n%w", path, err)
	}

	outDir := o.outputDir
	if outDir == "" {
		outDir = env.OutputDir
	}

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	s, err := o.buildSimulation(sc, env, outDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Terminate(); err != nil {
			logger.WithError(err).Warn("simulation teardown failed")
		}
	}()

	if err := sc.Apply(s); err != nil {
		return err
	}

	if eventsPath := sc.Output.EventsPath(outDir); eventsPath != "" {
		trace := flowexport.NewEventTraceWriter(eventsPath)
		if err := trace.Init(); err != nil {
			return err
		}
		defer trace.Close()

		s.GetFlowMonitor().AcceptHook(trace)
	}

	if o.open && s.GetMonitor() != nil {
		if err := s.GetMonitor().OpenInBrowser(); err != nil {
			logger.WithError(err).Warn("cannot open browser")
		}
	}

	if err := s.Run(); err != nil {
		return err
	}

	lost := s.CheckForLostPackets()
	logger.WithField("lost", lost).Debug("final loss check")

	return o.export(cmd, sc, s, outDir, logger)
}

func (o *runOptions) buildSimulation(
	sc *scenario.Scenario,
	env scenario.Env,
	outDir string,
	logger logrus.FieldLogger,
) (*simulation.Simulation, error) {
	builder := simulation.MakeBuilder().WithLogger(logger)

	if o.monitor || o.open {
		port := o.port
		if port == 0 {
			port = env.MonitorPort
		}
		if port != 0 {
			builder = builder.WithMonitorPort(port)
		}
	} else {
		builder = builder.WithoutMonitoring()
	}

	if sqlitePath := sc.Output.SQLitePath(outDir); sqlitePath != "" {
		builder = builder.WithOutputFileName(sqlitePath)
	}

	if sc.LossTimeout > 0 {
		builder = builder.WithMaxPerHopDelay(time.Duration(sc.LossTimeout))
	}

	if o.logEvents {
		builder = builder.WithEventLogging()
	}

	return builder.Build()
}

func (o *runOptions) export(
	cmd *cobra.Command,
	sc *scenario.Scenario,
	s *simulation.Simulation,
	outDir string,
	logger logrus.FieldLogger,
) error {
	if err := s.Export(sc.Output.Exporters(outDir, cmd.OutOrStdout())...); err != nil {
		return err
	}

	if sc.Output.SQLite != "" {
		if err := s.ExportToDataRecorder(); err != nil {
			return err
		}
	}

	sum := flow.Summarize(s.GetFlowMonitor().SortedFlowStats())
	logger.WithFields(logrus.Fields{
		"flows":    sum.Flows,
		"tx":       sum.TxPackets,
		"rx":       sum.RxPackets,
		"lost":     sum.LostPackets,
		"delivery": sum.DeliveryRatio,
	}).Info("results written")

	return nil
}
