package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/gebeyahq/gebeya/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type initiatePaymentRequest struct {
	ProductID     string `json:"productId"`
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	Provider      string `json:"provider"`
}

func (s *Server) HandleInitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil || productID == 0 {
		AbortWithError(c, newValidationError("productId", "invalid_product_id", "invalid product id"))
		return
	}

	resp, err := s.paymentSvc.InitiatePayment(c.Request.Context(), paymentdomain.InitiationRequest{
		ProductID:     productID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Provider:      req.Provider,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleReconcileOrder(c *gin.Context) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || orderID == 0 {
		AbortWithError(c, newValidationError("id", "invalid_order_id", "invalid order id"))
		return
	}

	order, err := s.paymentSvc.ReconcileOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (s *Server) HandleRefundOrder(c *gin.Context) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || orderID == 0 {
		AbortWithError(c, newValidationError("id", "invalid_order_id", "invalid order id"))
		return
	}

	order, err := s.paymentSvc.RefundOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
