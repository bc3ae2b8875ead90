package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/pkg/db/pagination"
)

type issueSubscriptionRequest struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	PlanName string `json:"plan_name"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	SubscriptionRef  string `json:"subscription_ref"`
	ChargeRef        string `json:"charge_ref"`
	PaymentIntentRef string `json:"payment_intent_ref"`
}

type issueCreditRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Description string `json:"description"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	PaymentRef       string `json:"payment_ref"`
	ChargeRef        string `json:"charge_ref"`
	PaymentIntentRef string `json:"payment_intent_ref"`
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) IssueSubscriptionInvoice(c *gin.Context) {
	var req issueSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, ok := parseBodyUserID(c, req.UserID)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.IssueForSubscriptionPayment(c.Request.Context(), fiscaldomain.IssueSubscriptionParams{
		UserID:           userID,
		Email:            req.Email,
		PlanName:         req.PlanName,
		Amount:           req.Amount,
		CurrencyCode:     req.Currency,
		SubscriptionRef:  req.SubscriptionRef,
		ChargeRef:        req.ChargeRef,
		PaymentIntentRef: req.PaymentIntentRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) IssueCreditInvoice(c *gin.Context) {
	var req issueCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, ok := parseBodyUserID(c, req.UserID)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.IssueForCreditPurchase(c.Request.Context(), fiscaldomain.IssueCreditParams{
		UserID:           userID,
		Email:            req.Email,
		Description:      req.Description,
		Amount:           req.Amount,
		CurrencyCode:     req.Currency,
		PaymentRef:       req.PaymentRef,
		ChargeRef:        req.ChargeRef,
		PaymentIntentRef: req.PaymentIntentRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	userID, ok := parseBodyUserID(c, c.Query("user_id"))
	if !ok {
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoices, pageInfo, err := s.invoiceSvc.List(c.Request.Context(), userID, p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      invoices,
		"page_info": pageInfo,
	})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("reference"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) SyncInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.SyncStatus(c.Request.Context(), c.Param("reference"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	var req cancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Cancel(c.Request.Context(), c.Param("reference"), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func parseBodyUserID(c *gin.Context, raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
		return 0, false
	}
	return id, true
}
