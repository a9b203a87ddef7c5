package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/triplecrown/team-fundraising/models"
	"github.com/triplecrown/team-fundraising/services"
	"github.com/triplecrown/team-fundraising/utils"
	"gorm.io/gorm"
)

type APIRoutes struct {
	db         *gorm.DB
	ledger     *services.Ledger
	aggregator *services.Aggregator
	processor  *services.PaymentProcessor
	httpClient *http.Client
	// WebSocket donation feed
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]string // conn -> connection id
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.Mutex
}

func NewAPIRoutes(db *gorm.DB, processor *services.PaymentProcessor) *APIRoutes {
	ar := &APIRoutes{
		db:         db,
		ledger:     services.NewLedger(db),
		aggregator: services.NewAggregator(db),
		processor:  processor,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the feed is public, same as the campaign page
			},
		},
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}

	go ar.runWebSocketServer()

	return ar
}

// SetupRoutes registers every endpoint.
func (ar *APIRoutes) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/campaigns", ar.CreateCampaign)
		api.GET("/campaigns/:id", ar.GetCampaign)
		api.GET("/campaigns/:id/recent", ar.GetRecentDonations)
		api.GET("/campaigns/:id/fundraisers", ar.GetCampaignFundraisers)

		api.POST("/fundraisers", ar.CreateFundraiser) // self-service signup
		api.GET("/fundraisers/:id", ar.GetFundraiser)

		api.POST("/donate", ar.CreateDonation)
		api.POST("/paypal/ipn", ar.HandlePayPalIPN) // provider notification callback

		api.GET("/donors", ar.GetDonors) // donor roll-up report
	}

	// QR code for a donation page link
	router.GET("/qrcode", ar.GenerateQRCode)

	// Live donation feed
	router.GET("/ws", ar.WebSocketHandler)
}

// CreateCampaign creates the top-level campaign.
func (ar *APIRoutes) CreateCampaign(c *gin.Context) {
	var req struct {
		Name                     string `json:"name" binding:"required,max=50"`
		Goal                     int    `json:"goal" binding:"gte=0"`
		CampaignMessage          string `json:"campaign_message" binding:"max=5000"`
		DefaultFundraiserMessage string `json:"default_fundraiser_message" binding:"max=5000"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign := models.Campaign{
		Name:                     req.Name,
		Goal:                     req.Goal,
		CampaignMessage:          req.CampaignMessage,
		DefaultFundraiserMessage: req.DefaultFundraiserMessage,
	}

	if err := ar.db.Create(&campaign).Error; err != nil {
		log.Printf("Failed to create campaign: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// GetCampaign returns a campaign with its freshly computed total raised.
func (ar *APIRoutes) GetCampaign(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	var campaign models.Campaign
	if err := ar.db.First(&campaign, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	totalRaised, err := ar.aggregator.CampaignTotalRaised(campaign.ID)
	if err != nil {
		log.Printf("Failed to compute campaign %d total: %v", campaign.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute total"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign":     campaign,
		"total_raised": totalRaised,
	})
}

// GetRecentDonations returns the campaign's donation feed, newest first.
func (ar *APIRoutes) GetRecentDonations(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	limitStr := c.DefaultQuery("limit", "10")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	donations, err := ar.aggregator.RecentDonations(id, limit)
	if err != nil {
		log.Printf("Failed to load recent donations for campaign %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load donations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donations": donations,
		"limit":     limit,
	})
}

// GetCampaignFundraisers lists a campaign's fundraisers with their totals.
func (ar *APIRoutes) GetCampaignFundraisers(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	fundraisers := []models.Fundraiser{}
	if err := ar.db.Where("campaign_id = ?", id).Order("name").Find(&fundraisers).Error; err != nil {
		log.Printf("Failed to list fundraisers for campaign %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list fundraisers"})
		return
	}

	results := make([]gin.H, 0, len(fundraisers))
	for _, fundraiser := range fundraisers {
		totalRaised, err := ar.aggregator.FundraiserTotalRaised(fundraiser.ID)
		if err != nil {
			log.Printf("Failed to compute fundraiser %d total: %v", fundraiser.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute totals"})
			return
		}
		results = append(results, gin.H{
			"fundraiser":   fundraiser,
			"total_raised": totalRaised,
		})
	}

	c.JSON(http.StatusOK, gin.H{"fundraisers": results})
}

// CreateFundraiser signs up a fundraiser under a campaign. An empty
// message is seeded from the campaign's default.
func (ar *APIRoutes) CreateFundraiser(c *gin.Context) {
	var req struct {
		CampaignID uint   `json:"campaign_id" binding:"required"`
		UserID     *uint  `json:"user_id"`
		Name       string `json:"name" binding:"required,max=50"`
		Goal       int    `json:"goal" binding:"gte=0"`
		Photo      string `json:"photo"`
		Message    string `json:"message" binding:"max=5000"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var campaign models.Campaign
	if err := ar.db.First(&campaign, req.CampaignID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	message := req.Message
	if message == "" {
		message = campaign.DefaultFundraiserMessage
	}

	fundraiser := models.Fundraiser{
		CampaignID: campaign.ID,
		UserID:     req.UserID,
		Name:       req.Name,
		Goal:       req.Goal,
		Photo:      req.Photo,
		Message:    message,
	}

	if err := ar.db.Create(&fundraiser).Error; err != nil {
		// the unique index on user_id enforces one fundraiser per user
		log.Printf("Failed to create fundraiser: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": "failed to create fundraiser"})
		return
	}

	c.JSON(http.StatusCreated, fundraiser)
}

// GetFundraiser returns a fundraiser with total raised and donation count.
func (ar *APIRoutes) GetFundraiser(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fundraiser id"})
		return
	}

	var fundraiser models.Fundraiser
	if err := ar.db.First(&fundraiser, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "fundraiser not found"})
		return
	}

	totalRaised, err := ar.aggregator.FundraiserTotalRaised(fundraiser.ID)
	if err != nil {
		log.Printf("Failed to compute fundraiser %d total: %v", fundraiser.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute total"})
		return
	}
	numDonations, err := ar.aggregator.FundraiserDonationCount(fundraiser.ID)
	if err != nil {
		log.Printf("Failed to count fundraiser %d donations: %v", fundraiser.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count donations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fundraiser":    fundraiser,
		"total_raised":  totalRaised,
		"num_donations": numDonations,
	})
}

// CreateDonation records a pledge in the created state and returns the
// form fields the donor's browser needs to pay through PayPal. The custom
// field carries the donation id back in the provider's notification.
func (ar *APIRoutes) CreateDonation(c *gin.Context) {
	var req struct {
		CampaignID   uint    `json:"campaign_id"`
		FundraiserID *uint   `json:"fundraiser_id"`
		Name         string  `json:"name" binding:"required,max=50"`
		Amount       float64 `json:"amount" binding:"required,gt=0"`
		Anonymous    bool    `json:"anonymous"`
		Email        string  `json:"email" binding:"required,email"`
		Message      string  `json:"message" binding:"max=280"`
		Address      string  `json:"address" binding:"max=100"`
		City         string  `json:"city" binding:"max=50"`
		Province     string  `json:"province" binding:"max=50"`
		Country      string  `json:"country" binding:"max=25"`
		PostalCode   string  `json:"postal_code" binding:"max=10"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FundraiserID == nil && req.CampaignID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a fundraiser or campaign is required"})
		return
	}

	donation := models.Donation{
		CampaignID:   req.CampaignID,
		FundraiserID: req.FundraiserID,
		Name:         req.Name,
		Amount:       req.Amount,
		Anonymous:    req.Anonymous,
		Email:        req.Email,
		Message:      req.Message,
		Address:      req.Address,
		City:         req.City,
		Province:     req.Province,
		Country:      req.Country,
		PostalCode:   req.PostalCode,
	}

	if err := ar.ledger.CreateDonation(&donation); err != nil {
		log.Printf("Failed to create donation: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to create donation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"donation": donation,
		"paypal": gin.H{
			"gateway":  ar.processor.GatewayURL(),
			"business": ar.processor.Config().Account,
			"amount":   fmt.Sprintf("%.2f", donation.Amount),
			"custom":   strconv.FormatUint(uint64(donation.ID), 10),
		},
	})
}

// HandlePayPalIPN receives the asynchronous payment notification. The
// message is optionally posted back to PayPal for verification, then
// handed to the reconciliation processor. The provider retries anything
// but a 200, so invalid notifications are acknowledged and dropped; only
// an unknown donation id is surfaced.
func (ar *APIRoutes) HandlePayPalIPN(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Failed to read IPN body: %v", err)
		c.String(http.StatusBadRequest, "error reading body")
		return
	}

	log.Printf("Received IPN: %s", string(body))

	values, err := url.ParseQuery(string(body))
	if err != nil {
		log.Printf("Failed to parse IPN body: %v", err)
		c.String(http.StatusBadRequest, "invalid body")
		return
	}

	if ar.processor.Config().Verify {
		if !ar.verifyWithPayPal(body) {
			log.Printf("IPN failed postback verification, discarding")
			c.String(http.StatusOK, "")
			return
		}
	}

	notification := services.Notification{
		PaymentStatus: values.Get("payment_status"),
		ReceiverEmail: values.Get("receiver_email"),
		Custom:        values.Get("custom"),
		Gross:         values.Get("mc_gross"),
		Currency:      values.Get("mc_currency"),
	}

	donation, err := ar.processor.HandleNotification(notification)
	if errors.Is(err, services.ErrDonationNotFound) {
		log.Printf("IPN for unknown donation: %v", err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("Failed to handle IPN: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error handling notification"})
		return
	}

	// push freshly paid donations to the live feed
	if donation != nil {
		ar.BroadcastPaidDonation(donation)
	}

	c.String(http.StatusOK, "")
}

// verifyWithPayPal echoes the notification back to PayPal with
// cmd=_notify-validate prepended; PayPal answers VERIFIED for messages it
// really sent.
func (ar *APIRoutes) verifyWithPayPal(body []byte) bool {
	payload := "cmd=_notify-validate&" + string(body)
	resp, err := ar.httpClient.Post(ar.processor.VerifyURL(),
		"application/x-www-form-urlencoded", strings.NewReader(payload))
	if err != nil {
		log.Printf("IPN postback failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Failed to read IPN postback response: %v", err)
		return false
	}
	return string(reply) == "VERIFIED"
}

// GetDonors returns the donor roll-up report: one row per (email, name)
// pair across all paid donations.
func (ar *APIRoutes) GetDonors(c *gin.Context) {
	donors, err := ar.aggregator.DonorRollup()
	if err != nil {
		log.Printf("Failed to compute donor roll-up: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute donor roll-up"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donors": donors,
		"total":  len(donors),
	})
}

// GenerateQRCode renders a QR code for a donation page link.
func (ar *APIRoutes) GenerateQRCode(c *gin.Context) {
	link := c.Query("url")
	if link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url parameter is required"})
		return
	}

	png, err := utils.GenerateQRCode(link)
	if err != nil {
		log.Printf("Failed to generate QR code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate QR code"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// runWebSocketServer owns the client set and fans broadcast messages out
// to every connected feed client.
func (ar *APIRoutes) runWebSocketServer() {
	log.Printf("WebSocket donation feed started")

	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-ar.register:
			connID := utils.GenerateConnID()
			ar.mutex.Lock()
			ar.clients[client] = connID
			clientCount := len(ar.clients)
			ar.mutex.Unlock()
			log.Printf("WebSocket client %s connected, %d total", connID, clientCount)

		case client := <-ar.unregister:
			ar.mutex.Lock()
			if connID, ok := ar.clients[client]; ok {
				delete(ar.clients, client)
				client.Close()
				log.Printf("WebSocket client %s disconnected, %d total", connID, len(ar.clients))
			}
			ar.mutex.Unlock()

		case message := <-ar.broadcast:
			ar.mutex.Lock()
			for client, connID := range ar.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					log.Printf("Failed to broadcast to client %s: %v", connID, err)
					client.Close()
					delete(ar.clients, client)
				}
			}
			ar.mutex.Unlock()

		case <-cleanupTicker.C:
			ar.cleanupInvalidConnections()
		}
	}
}

// cleanupInvalidConnections pings every client and drops the dead ones.
func (ar *APIRoutes) cleanupInvalidConnections() {
	ar.mutex.Lock()
	defer ar.mutex.Unlock()

	totalClients := len(ar.clients)
	invalidCount := 0

	for client := range ar.clients {
		if err := client.WriteMessage(websocket.PingMessage, nil); err != nil {
			client.Close()
			delete(ar.clients, client)
			invalidCount++
		}
	}

	if invalidCount > 0 {
		log.Printf("Cleaned up %d dead WebSocket connections. Total clients: %d -> %d",
			invalidCount, totalClients, len(ar.clients))
	}
}

// WebSocketHandler upgrades a feed client. Clients only listen; anything
// they send is discarded.
func (ar *APIRoutes) WebSocketHandler(c *gin.Context) {
	conn, err := ar.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	ar.register <- conn

	for {
		messageType, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if messageType == websocket.PingMessage {
			if err := conn.WriteMessage(websocket.PongMessage, nil); err != nil {
				break
			}
		}
	}

	ar.unregister <- conn
}

// BroadcastPaidDonation pushes a freshly confirmed donation to every feed
// client. Anonymous donors are masked before anything leaves the server.
func (ar *APIRoutes) BroadcastPaidDonation(donation *models.Donation) {
	name := donation.Name
	if donation.Anonymous {
		name = "Anonymous"
	}

	message := map[string]interface{}{
		"type": "new_donation",
		"donation": map[string]interface{}{
			"id":            donation.ID,
			"campaign_id":   donation.CampaignID,
			"fundraiser_id": donation.FundraiserID,
			"name":          name,
			"amount":        donation.Amount,
			"message":       donation.Message,
			"date":          donation.Date,
		},
		"timestamp": time.Now().Unix(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling donation broadcast: %v", err)
		return
	}

	ar.broadcast <- data
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
