package handler

import (
	"github.com/goydb/mrindex/internal/controller"
	"github.com/goydb/mrindex/pkg/logger"
)

type Base struct {
	Engine *controller.Engine
	Logger logger.Logger
}
