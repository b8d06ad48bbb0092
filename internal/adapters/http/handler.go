package http

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
)

const defaultLogTail = 200

type WorkerHandler struct {
	service ports.WorkerService
}

func NewWorkerHandler(service ports.WorkerService) *WorkerHandler {
	return &WorkerHandler{service: service}
}

// ProvisionRequest is the body of POST /api/containers/provision.
type ProvisionRequest struct {
	EmployeeID   string              `json:"employeeId"`
	UserID       string              `json:"userId"`
	TenantID     string              `json:"tenantId"`
	DisplayName  string              `json:"displayName"`
	Personality  string              `json:"personality"`
	Skill        string              `json:"skill"`
	WorkerConfig domain.WorkerConfig `json:"workerConfig"`
}

func (r ProvisionRequest) toDomain() domain.ProvisionRequest {
	return domain.ProvisionRequest{
		Identity:     domain.WorkerIdentity{EmployeeID: r.EmployeeID, UserID: r.UserID},
		TenantID:     r.TenantID,
		DisplayName:  r.DisplayName,
		Personality:  r.Personality,
		Skill:        r.Skill,
		WorkerConfig: r.WorkerConfig,
	}
}

func (h *WorkerHandler) Provision(c *fiber.Ctx) error {
	var req ProvisionRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(err)
	}

	info, err := h.service.Provision(c.Context(), req.toDomain())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"container": info})
}

func (h *WorkerHandler) Status(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	status, err := h.service.Status(c.Context(), key)
	if err != nil {
		return err
	}
	return c.JSON(status)
}

func (h *WorkerHandler) Restart(c *fiber.Ctx) error {
	var id domain.WorkerIdentity
	if err := c.BodyParser(&id); err != nil {
		return invalidBody(err)
	}

	status, err := h.service.Restart(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "status": status})
}

func (h *WorkerHandler) Stop(c *fiber.Ctx) error {
	var id domain.WorkerIdentity
	if err := c.BodyParser(&id); err != nil {
		return invalidBody(err)
	}

	status, err := h.service.Stop(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "status": status})
}

func (h *WorkerHandler) Remove(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.Remove(c.Context(), key); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *WorkerHandler) List(c *fiber.Ctx) error {
	workers, err := h.service.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(workers)
}

func (h *WorkerHandler) Logs(c *fiber.Ctx) error {
	tail := c.QueryInt("tail", defaultLogTail)
	if tail <= 0 {
		tail = defaultLogTail
	}

	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	logs, err := h.service.Logs(c.Context(), key, tail)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(logs)
}

// pathParam returns the percent-decoded value of a route parameter. Fiber
// hands parameters over as they appear on the wire.
func pathParam(c *fiber.Ctx, name string) (string, error) {
	v, err := url.PathUnescape(c.Params(name))
	if err != nil {
		return "", fmt.Errorf("%w: malformed %s: %v", domain.ErrInvalidArgument, name, err)
	}
	return v, nil
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidArgument, err)
}
