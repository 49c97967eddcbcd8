package metrics

// Metric name constants following Prometheus naming conventions
// Format: streamlog_{component}_{metric}_{unit}

// Partition metrics
const (
	MetricMessagesAppendedTotal  = "streamlog_partition_messages_appended_total"
	MetricBytesAppendedTotal     = "streamlog_partition_bytes_appended_total"
	MetricMessagesReadTotal      = "streamlog_partition_messages_read_total"
	MetricAppendDuration         = "streamlog_partition_append_duration_seconds"
	MetricReadDuration           = "streamlog_partition_read_duration_seconds"
	MetricPartitionCurrentOffset = "streamlog_partition_current_offset"
	MetricOperationErrorsTotal   = "streamlog_partition_operation_errors_total"
)

// Segment metrics
const (
	MetricSegmentsCreatedTotal = "streamlog_segments_created_total"
	MetricSegmentsTotal        = "streamlog_segments"
)

// Label name constants
const (
	LabelStream    = "stream"
	LabelTopic     = "topic"
	LabelPartition = "partition"
	LabelOperation = "operation"
)

// Operation label values
const (
	OperationAppend = "append"
	OperationRead   = "read"
	OperationRotate = "rotate"
)
