package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics contains all partition and segment metrics
type StorageMetrics struct {
	MessagesAppendedTotal *prometheus.CounterVec
	BytesAppendedTotal    *prometheus.CounterVec
	MessagesReadTotal     *prometheus.CounterVec
	AppendDuration        *prometheus.HistogramVec
	ReadDuration          *prometheus.HistogramVec
	CurrentOffset         *prometheus.GaugeVec
	OperationErrorsTotal  *prometheus.CounterVec
	SegmentsCreatedTotal  *prometheus.CounterVec
	Segments              *prometheus.GaugeVec
}

// NewStorageMetrics creates and registers storage metrics with the collector
func NewStorageMetrics(collector *Collector) *StorageMetrics {
	partitionLabels := []string{LabelStream, LabelTopic, LabelPartition}
	latencyBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}

	return &StorageMetrics{
		MessagesAppendedTotal: collector.RegisterCounter(
			MetricMessagesAppendedTotal,
			"Total number of messages appended to partitions",
			partitionLabels,
		),
		BytesAppendedTotal: collector.RegisterCounter(
			MetricBytesAppendedTotal,
			"Total payload bytes appended to partitions",
			partitionLabels,
		),
		MessagesReadTotal: collector.RegisterCounter(
			MetricMessagesReadTotal,
			"Total number of messages returned by partition reads",
			partitionLabels,
		),
		AppendDuration: collector.RegisterHistogram(
			MetricAppendDuration,
			"Partition append latency in seconds",
			partitionLabels,
			latencyBuckets,
		),
		ReadDuration: collector.RegisterHistogram(
			MetricReadDuration,
			"Partition read latency in seconds",
			partitionLabels,
			latencyBuckets,
		),
		CurrentOffset: collector.RegisterGauge(
			MetricPartitionCurrentOffset,
			"Offset of the last message appended to a partition",
			partitionLabels,
		),
		OperationErrorsTotal: collector.RegisterCounter(
			MetricOperationErrorsTotal,
			"Total number of failed partition operations",
			append(partitionLabels, LabelOperation),
		),
		SegmentsCreatedTotal: collector.RegisterCounter(
			MetricSegmentsCreatedTotal,
			"Total number of segments created",
			partitionLabels,
		),
		Segments: collector.RegisterGauge(
			MetricSegmentsTotal,
			"Number of segments currently held by a partition",
			partitionLabels,
		),
	}
}

func partitionLabelValues(streamID, topicID, partitionID uint32) []string {
	return []string{
		strconv.FormatUint(uint64(streamID), 10),
		strconv.FormatUint(uint64(topicID), 10),
		strconv.FormatUint(uint64(partitionID), 10),
	}
}

// RecordAppend records a successful append of count messages totalling bytes
func (m *StorageMetrics) RecordAppend(streamID, topicID, partitionID uint32, count int, bytes int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := partitionLabelValues(streamID, topicID, partitionID)
	m.MessagesAppendedTotal.WithLabelValues(labels...).Add(float64(count))
	m.BytesAppendedTotal.WithLabelValues(labels...).Add(float64(bytes))
	m.AppendDuration.WithLabelValues(labels...).Observe(duration.Seconds())
}

// RecordRead records a read that returned count messages
func (m *StorageMetrics) RecordRead(streamID, topicID, partitionID uint32, count int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := partitionLabelValues(streamID, topicID, partitionID)
	m.MessagesReadTotal.WithLabelValues(labels...).Add(float64(count))
	m.ReadDuration.WithLabelValues(labels...).Observe(duration.Seconds())
}

// RecordError records a failed partition operation
func (m *StorageMetrics) RecordError(streamID, topicID, partitionID uint32, operation string) {
	if m == nil {
		return
	}
	labels := append(partitionLabelValues(streamID, topicID, partitionID), operation)
	m.OperationErrorsTotal.WithLabelValues(labels...).Inc()
}

// RecordSegmentCreated records a new segment and the partition's segment count
func (m *StorageMetrics) RecordSegmentCreated(streamID, topicID, partitionID uint32, segments int) {
	if m == nil {
		return
	}
	labels := partitionLabelValues(streamID, topicID, partitionID)
	m.SegmentsCreatedTotal.WithLabelValues(labels...).Inc()
	m.Segments.WithLabelValues(labels...).Set(float64(segments))
}

// UpdatePartition sets the partition's current offset and segment count gauges
func (m *StorageMetrics) UpdatePartition(streamID, topicID, partitionID uint32, currentOffset uint64, segments int) {
	if m == nil {
		return
	}
	labels := partitionLabelValues(streamID, topicID, partitionID)
	m.CurrentOffset.WithLabelValues(labels...).Set(float64(currentOffset))
	m.Segments.WithLabelValues(labels...).Set(float64(segments))
}
