package usecase

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Observer receives outcome measurements. The Prometheus collector in
// infrastructure/metrics implements it; nopObserver is used otherwise.
type Observer interface {
	ObserveQuery(dbType string, success bool, seconds float64)
	ObserveBackup(dbType string, status string, seconds float64, sizeBytes int64)
}

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, bool, float64)          {}
func (nopObserver) ObserveBackup(string, string, float64, int64) {}
