package logger

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream     int64
	errorsSnapshot   int64
	warnsStream      int64
	warnsSnapshot    int64
	streamEvents     int64
	snapshotFetches  int64
	snapshotFailures int64
	channels         sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "realtime") {
		atomic.AddInt64(&warnsStream, 1)
	} else if strings.Contains(component, "snapshot") {
		atomic.AddInt64(&warnsSnapshot, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "realtime") {
		atomic.AddInt64(&errorsStream, 1)
	} else if strings.Contains(component, "snapshot") {
		atomic.AddInt64(&errorsSnapshot, 1)
	}
}

// IncrementStreamEvent records one change event read off the realtime
// stream along with its wire size.
func IncrementStreamEvent(size int) {
	atomic.AddInt64(&streamEvents, 1)
	recordChannel("realtime_ws", size)
}

// IncrementSnapshotFetch records one completed snapshot request and the
// number of rows it returned.
func IncrementSnapshotFetch(rows int) {
	atomic.AddInt64(&snapshotFetches, 1)
	recordChannel("snapshot_rest", rows)
}

// IncrementSnapshotFailure records a failed snapshot request.
func IncrementSnapshotFailure() {
	atomic.AddInt64(&snapshotFailures, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport periodically logs a condensed counter summary and mirrors the
// headline counters to CloudWatch. Intended for the "report" log level.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitReport(ctx, log)
			}
		}
	}()
}

func emitReport(ctx context.Context, log *Log) {
	events := atomic.SwapInt64(&streamEvents, 0)
	fetches := atomic.SwapInt64(&snapshotFetches, 0)
	failures := atomic.SwapInt64(&snapshotFailures, 0)
	errStream := atomic.SwapInt64(&errorsStream, 0)
	errSnap := atomic.SwapInt64(&errorsSnapshot, 0)
	warnStream := atomic.SwapInt64(&warnsStream, 0)
	warnSnap := atomic.SwapInt64(&warnsSnapshot, 0)

	fields := Fields{
		"stream_events":     events,
		"snapshot_fetches":  fetches,
		"snapshot_failures": failures,
		"errors_stream":     errStream,
		"errors_snapshot":   errSnap,
		"warns_stream":      warnStream,
		"warns_snapshot":    warnSnap,
	}

	channels.Range(func(key, value interface{}) bool {
		cs := value.(*channelStat)
		name := key.(string)
		fields[name+"_messages"] = atomic.SwapInt64(&cs.messages, 0)
		fields[name+"_bytes"] = atomic.SwapInt64(&cs.bytes, 0)
		return true
	})

	log.WithComponent("report").WithFields(fields).Info("periodic report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("EventsApplied"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(events))},
		{MetricName: aws.String("SnapshotFetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fetches))},
		{MetricName: aws.String("SnapshotFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(failures))},
	}
	publishMetrics(ctx, data)
}
