package consts

const (
	TopSlotsKey = "slots:top:"
)

const (
	AnalysisRunLock = "lock:analysis:run"
	QueueBuildLock  = "lock:queue:build"
)
