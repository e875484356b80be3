package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Client pushes message notifications to the notification service
// (best-effort, never blocks the calling API path). If baseURL is empty,
// all calls are no-ops.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) send(ctx context.Context, userID, kind, text string) {
	if c.baseURL == "" {
		return
	}
	payload := map[string]interface{}{
		"user_id": userID,
		"type":    kind,
		"data":    map[string]string{"text": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications/send", bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: new request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("notify: request: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notify: status %d for user %s", resp.StatusCode, userID)
	}
}

// sendAsync fires the notification in its own goroutine so a slow
// notification service cannot hold up a user-facing action.
func (c *Client) sendAsync(userID, kind, text string) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.send(ctx, userID, kind, text)
	}()
}

// TicketEscalated notifies the technician queue owner about a new ticket.
func (c *Client) TicketEscalated(assigneeID, description string) {
	c.sendAsync(assigneeID, "ticket_escalated", description)
}

// TechnicianReplied notifies the conversation owner about a technician reply.
func (c *Client) TechnicianReplied(ownerID, text string) {
	c.sendAsync(ownerID, "technician_reply", text)
}
