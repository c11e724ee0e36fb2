package handlers

import (
	"net/http"

	"github.com/epigram-app/entitlement-service/internal/app/service/mailer"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/gin-gonic/gin"
)

type contactRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject"`
	Message string `json:"message" binding:"required"`
}

// @Summary      Send Contact Message
// @Description  Forwards a contact-form submission to the support inbox.
// @Tags         Contact
// @Accept       json
// @Produce      json
// @Param        request body handlers.contactRequest true "Contact message"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/contact [post]
func ApiContact(sender mailer.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		err := sender.SendContactMessage(c.Request.Context(), &mailer.ContactMessage{
			Name:    req.Name,
			Email:   req.Email,
			Subject: req.Subject,
			Message: req.Message,
		})
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterContactRoutes(r gin.IRouter, sender mailer.Sender) {
	r.POST("/contact", ApiContact(sender))
}
