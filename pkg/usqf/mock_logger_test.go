package usqf

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/omniledger/usqf/pkg/mlog"
)

// mockLogger is a hand-maintained gomock double for mlog.Logger, scoped to
// what composer_test.go needs to assert on (Warnf call counts when a filter
// is dropped). The non-assertion methods are no-ops rather than routed
// through the controller, since nothing in this package sets expectations
// on them.
type mockLogger struct {
	ctrl     *gomock.Controller
	recorder *mockLoggerRecorder
}

type mockLoggerRecorder struct{ mock *mockLogger }

func newMockLogger(ctrl *gomock.Controller) *mockLogger {
	m := &mockLogger{ctrl: ctrl}
	m.recorder = &mockLoggerRecorder{m}

	return m
}

func (m *mockLogger) EXPECT() *mockLoggerRecorder { return m.recorder }

func (m *mockLogger) Warnf(format string, args ...any) {
	m.ctrl.T.Helper()

	varArgs := make([]any, 0, len(args)+1)
	varArgs = append(varArgs, format)
	varArgs = append(varArgs, args...)
	m.ctrl.Call(m, "Warnf", varArgs...)
}

func (mr *mockLoggerRecorder) Warnf(format any, args ...any) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	varArgs := append([]any{format}, args...)

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Warnf",
		reflect.TypeOf((*mockLogger)(nil).Warnf), varArgs...)
}

func (m *mockLogger) Info(args ...any)                  {}
func (m *mockLogger) Infof(format string, args ...any)  {}
func (m *mockLogger) Infoln(args ...any)                {}
func (m *mockLogger) Error(args ...any)                 {}
func (m *mockLogger) Errorf(format string, args ...any) {}
func (m *mockLogger) Errorln(args ...any)               {}
func (m *mockLogger) Warn(args ...any)                  {}
func (m *mockLogger) Warnln(args ...any)                {}
func (m *mockLogger) Debug(args ...any)                 {}
func (m *mockLogger) Debugf(format string, args ...any) {}
func (m *mockLogger) Debugln(args ...any)               {}
func (m *mockLogger) Fatal(args ...any)                 {}
func (m *mockLogger) Fatalf(format string, args ...any) {}
func (m *mockLogger) Fatalln(args ...any)               {}
func (m *mockLogger) WithFields(fields ...any) mlog.Logger { return m }
func (m *mockLogger) Sync() error                          { return nil }
