package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/store"

	"github.com/gin-gonic/gin"
)

func (h *Handler) me(c *gin.Context) {
	p := principal(c)
	perms := make([]string, 0, len(p.Permissions))
	for _, perm := range service.AllPermissions {
		if p.Has(perm) {
			perms = append(perms, perm)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          p.UserID,
		"username":    p.Username,
		"role":        p.Role,
		"permissions": perms,
	})
}

func (h *Handler) listPermissions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": service.AllPermissions})
}

func (h *Handler) dashboard(c *gin.Context) {
	summary, err := h.svc.Recorder.Summary(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Products

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.List(c.Request.Context(), store.ProductFilter{
		Status: strings.ToUpper(c.Query("status")),
		Search: c.Query("search"),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	product, err := h.svc.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	product, err := h.svc.Catalog.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	product, err := h.svc.Catalog.Update(c.Request.Context(), principal(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Catalog.Delete(c.Request.Context(), principal(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type stockAdjustment struct {
	VariantID *int64 `json:"variant_id"`
	Delta     int    `json:"delta"`
}

func (h *Handler) adjustStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req stockAdjustment
	if !bindJSON(c, &req) {
		return
	}
	stock, err := h.svc.Catalog.AdjustStock(c.Request.Context(), principal(c), id, req.VariantID, req.Delta)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "variant_id": req.VariantID, "stock": stock})
}

// Resellers

func (h *Handler) listResellers(c *gin.Context) {
	resellers, err := h.svc.Resellers.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resellers": resellers})
}

func (h *Handler) getReseller(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reseller, err := h.svc.Resellers.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reseller)
}

func (h *Handler) createReseller(c *gin.Context) {
	var in service.ResellerInput
	if !bindJSON(c, &in) {
		return
	}
	reseller, err := h.svc.Resellers.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reseller)
}

func (h *Handler) updateReseller(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.ResellerInput
	if !bindJSON(c, &in) {
		return
	}
	reseller, err := h.svc.Resellers.Update(c.Request.Context(), principal(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reseller)
}

func (h *Handler) deleteReseller(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Resellers.Delete(c.Request.Context(), principal(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Roles and users

func (h *Handler) listRoles(c *gin.Context) {
	roles, err := h.svc.Access.ListRoles(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (h *Handler) createRole(c *gin.Context) {
	var in service.RoleInput
	if !bindJSON(c, &in) {
		return
	}
	role, err := h.svc.Access.CreateRole(c.Request.Context(), principal(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (h *Handler) updateRole(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.RoleInput
	if !bindJSON(c, &in) {
		return
	}
	role, err := h.svc.Access.UpdateRole(c.Request.Context(), principal(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h *Handler) deleteRole(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Access.DeleteRole(c.Request.Context(), principal(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.svc.Access.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) createUser(c *gin.Context) {
	var in service.UserInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.svc.Access.CreateUser(c.Request.Context(), principal(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.UserInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.svc.Access.UpdateUser(c.Request.Context(), principal(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Access.DeleteUser(c.Request.Context(), principal(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Settings and notifications

func (h *Handler) updateSettings(c *gin.Context) {
	var values map[string]string
	if !bindJSON(c, &values) {
		return
	}
	settings, err := h.svc.Settings.Update(c.Request.Context(), principal(c), values)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) listNotifications(c *gin.Context) {
	list, err := h.svc.Settings.Notifications(c.Request.Context(), principal(c),
		queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// Transactions

// transactionFilter reads status, reseller_id, order_id, from, to, limit
// and offset from the query string
func transactionFilter(c *gin.Context) (store.TransactionFilter, bool) {
	filter := store.TransactionFilter{
		Status: models.TransactionStatus(strings.ToUpper(c.Query("status"))),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}

	for key, dst := range map[string]**int64{"reseller_id": &filter.ResellerID, "order_id": &filter.OrderID} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid "+key, err)
			return filter, false
		}
		*dst = &v
	}

	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			badRequest(c, "invalid "+key, err)
			return filter, false
		}
		if key == "to" && len(raw) == len("2006-01-02") {
			// a bare date includes the whole day
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		*dst = &t
	}
	return filter, true
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) listTransactions(c *gin.Context) {
	filter, ok := transactionFilter(c)
	if !ok {
		return
	}
	list, err := h.svc.Recorder.List(c.Request.Context(), principal(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list})
}

func (h *Handler) getTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	txn, err := h.svc.Recorder.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction":   txn,
		"next_statuses": models.NextStatuses(txn.Status),
	})
}

type statusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *Handler) updateTransactionStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	to := models.TransactionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	txn, err := h.svc.Recorder.UpdateStatus(c.Request.Context(), principal(c), id, to, req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *Handler) updateTransactionDetails(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.DetailsInput
	if !bindJSON(c, &in) {
		return
	}
	txn, err := h.svc.Recorder.UpdateDetails(c.Request.Context(), principal(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *Handler) deleteTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Recorder.Delete(c.Request.Context(), principal(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
