package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment variables read by LoadEnv.
const (
	EnvMonitorPort = "FLOWSIM_MONITOR_PORT"
	EnvOutputDir   = "FLOWSIM_OUTPUT_DIR"
	EnvLogLevel    = "FLOWSIM_LOG_LEVEL"
)

// Env holds the defaults taken from the environment.
type Env struct {
	MonitorPort int
	OutputDir   string
	LogLevel    logrus.Level
}

// LoadEnv loads the given .env files, or ".env" when none is given, and reads
// the flowsim variables. Variables already set in the process environment
// win over the files. A missing default ".env" is not an error.
func LoadEnv(files ...string) (Env, error) {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil {
			continue
		}

		if !explicit && errors.Is(err, fs.ErrNotExist) {
			continue
		}

		return Env{}, fmt.Errorf("loading %s: %w", f, err)
	}

	env := Env{
		OutputDir: os.Getenv(EnvOutputDir),
		LogLevel:  logrus.InfoLevel,
	}

	if port := os.Getenv(EnvMonitorPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			return Env{}, fmt.Errorf("%s: invalid port %q", EnvMonitorPort, port)
		}

		env.MonitorPort = p
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		l, err := logrus.ParseLevel(level)
		if err != nil {
			return Env{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}

		env.LogLevel = l
	}

	return env, nil
}
