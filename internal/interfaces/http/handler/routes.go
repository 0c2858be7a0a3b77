package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/router"
)

// PrintRoutes creates the route group for printing endpoints. submitLimit is
// applied to POST /print only.
func PrintRoutes(handler *PrintHandler, submitLimit ...gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("print", "")

	group.GET("/printers", handler.ListPrinters)
	submit := append(append([]gin.HandlerFunc{}, submitLimit...), handler.Print)
	group.POST("/print", submit...)
	group.POST("/documents/inspect", handler.Inspect)

	return group
}

// SystemRoutes creates the route group for system endpoints
func SystemRoutes(handler *SystemHandler) *router.DomainGroup {
	group := router.NewDomainGroup("system", "/system")

	group.GET("/ping", handler.Ping)
	group.GET("/info", handler.GetSystemInfo)
	group.GET("/health", handler.Health)

	return group
}
