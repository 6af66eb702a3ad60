package commands

import (
	"os"

	"github.com/covertnetworks/relaypulse/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for relaypulse
var RootCmd = &cobra.Command{
	Use:              "relaypulse",
	Short:            "relay-network cover traffic engine",
	TraverseChildren: true,
}

// newLogger builds the process logger, with per-level file output when the
// log files can be opened.
func newLogger() *logrus.Logger {
	logger := logrus.New()

	pathMap := lfshook.PathMap{}

	_, err := os.OpenFile("relaypulse_info.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open relaypulse_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "relaypulse_info.log"
	}

	_, err = os.OpenFile("relaypulse_debug.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open relaypulse_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "relaypulse_debug.log"
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
