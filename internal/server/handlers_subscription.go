package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// subscriptionCheckout hands the client off to the external billing page.
// Payment itself is not this service's concern; only the subscribed flag
// comes back through subscriptionConfirm.
func (a *App) subscriptionCheckout(c *gin.Context) {
	if _, ok := authUserFromContext(c); !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	checkoutURL := strings.TrimSpace(a.cfg.CheckoutURL)
	if checkoutURL == "" {
		writeError(c, http.StatusServiceUnavailable, "Checkout is not configured")
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkout_url": checkoutURL})
}

func (a *App) subscriptionConfirm(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := a.store.SetSubscribed(c.Request.Context(), user.ID); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to activate subscription")
		return
	}

	if err := a.mailer.Send(
		user.Email,
		"✅ NeuroGPT Pro Activated",
		"Thanks for subscribing to NeuroGPT Pro! Enjoy unlimited chat messages 🚀",
	); err != nil {
		// Activation already happened; a failed confirmation mail is not
		// worth failing the request over.
		log.Printf("subscription mail to %s failed: %v", user.Email, err)
	}

	c.JSON(http.StatusOK, gin.H{"subscribed": true})
}
