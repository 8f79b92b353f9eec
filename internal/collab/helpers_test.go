package collab

import (
	"github.com/codecoalition/collabd/internal/infrastructure/logging"
)

// testLogger discards everything; assertions look at state, not log output.
type testLogger struct{}

func newTestLogger() logging.Logger { return testLogger{} }

func (testLogger) Init() {}

func (testLogger) Debug(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any) {}
func (testLogger) Debugf(string, ...any)                                                         {}
func (testLogger) Info(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any)  {}
func (testLogger) Infof(string, ...any)                                                          {}
func (testLogger) Warn(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any)  {}
func (testLogger) Warnf(string, ...any)                                                          {}
func (testLogger) Error(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any) {}
func (testLogger) Errorf(string, ...any)                                                         {}
func (testLogger) Fatal(logging.Category, logging.SubCategory, string, map[logging.ExtraKey]any) {}
func (testLogger) Fatalf(string, ...any)                                                         {}
