package api

import "Cadence/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	AnalysisHandler *handler.AnalysisHandler
	QueueHandler    *handler.QueueHandler
	SlotHandler     *handler.SlotHandler
	ContentHandler  *handler.ContentHandler
}
