package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/internal/quotes/ws"
	"mdviewer.com/pkg/common"
)

// Quotes 三个入口共用同一个 provider
type Quotes struct {
	Provider provider.Provider
	WS       *ws.Server
}

func NewQuotes(p provider.Provider, wsSrv *ws.Server) *Quotes {
	return &Quotes{Provider: p, WS: wsSrv}
}

func (h *Quotes) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Historical POST /api/historical
func (h *Quotes) Historical(c *gin.Context) {
	req := model.NewHistoricalRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.Provider.GetHistorical(c.Request.Context(), req)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, resp)
}

// Live GET /ws/live?symbols=ES.FUT,NQ.FUT&schema=trades
func (h *Quotes) Live(c *gin.Context) {
	h.WS.ServeWS(c.Writer, c.Request)
}
