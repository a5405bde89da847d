package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"agenticdebugger/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RegistrationClient republishes a secondary's record to the primary. The
// primary's address and key are re-read from the discovery descriptor on
// every heartbeat so a restarted primary is picked up.
type RegistrationClient struct {
	registry      *InstanceRegistry
	discoveryPath string
	fallback      models.DiscoveryInfo
	timeout       time.Duration

	sent     atomic.Int64
	failures atomic.Int64
	lastOK   atomic.Bool
}

// NewRegistrationClient creates a heartbeat client. fallback is used when no
// descriptor can be read.
func NewRegistrationClient(registry *InstanceRegistry, discoveryPath string, fallback models.DiscoveryInfo, timeout time.Duration) *RegistrationClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RegistrationClient{
		registry:      registry,
		discoveryPath: discoveryPath,
		fallback:      fallback,
		timeout:       timeout,
	}
}

func (c *RegistrationClient) target() models.DiscoveryInfo {
	info, err := ReadDiscovery(c.discoveryPath)
	if err != nil {
		return c.fallback
	}
	if info.BaseURL == "" {
		info.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", info.Port)
	}
	if info.KeyHeader == "" {
		info.KeyHeader = c.fallback.KeyHeader
	}
	return info
}

// Heartbeat posts the local record to the primary's /register endpoint
func (c *RegistrationClient) Heartbeat(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	self := c.registry.Self()
	primary := c.target()
	if primary.Port == self.Port {
		return errors.New("discovery descriptor points at this instance")
	}

	agent := fiber.Post(primary.BaseURL + "/register")
	agent.Set(primary.KeyHeader, primary.DefaultAPIKey)
	agent.JSON(self)
	agent.Timeout(c.timeout)
	c.sent.Add(1)
	if err := agent.Parse(); err != nil {
		return c.fail(fmt.Errorf("register with %s: %w", primary.BaseURL, err))
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return c.fail(fmt.Errorf("register with %s: %w", primary.BaseURL, errors.Join(errs...)))
	}
	if code != fiber.StatusOK && code != fiber.StatusCreated {
		return c.fail(fmt.Errorf("register with %s: status %d: %s", primary.BaseURL, code, truncate(body, 200)))
	}

	if !c.lastOK.Swap(true) {
		log.Printf("💓 [REGISTRY] Registered with primary at %s as %s", primary.BaseURL, self.ID)
	}
	return nil
}

func (c *RegistrationClient) fail(err error) error {
	c.failures.Add(1)
	if c.lastOK.Swap(false) {
		log.Printf("⚠️  [REGISTRY] Lost contact with primary: %v", err)
	}
	return err
}

// Stats returns heartbeats attempted and failed
func (c *RegistrationClient) Stats() (sent, failures int64) {
	return c.sent.Load(), c.failures.Load()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
