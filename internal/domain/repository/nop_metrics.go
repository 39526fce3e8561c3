package repository

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordFetch(string, string, string) {}
func (NopMetrics) RecordPushEvent(string) {}
func (NopMetrics) RecordReconnect(string) {}
func (NopMetrics) SetConnectionState(string, string) {}
func (NopMetrics) RecordFeedUpdate(string, string) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLastPrice(float64) {}
func (NopMetrics) RecordLatency(string, float64) {}
