package http

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
)

// GatewayProxy forwards requests to a worker's gateway through its host port.
type GatewayProxy struct {
	service ports.WorkerService
	host    string
}

// NewGatewayProxy creates a proxy that dials workers on host.
func NewGatewayProxy(service ports.WorkerService, host string) *GatewayProxy {
	return &GatewayProxy{service: service, host: host}
}

// ProxyRequest handles /api/containers/gateway/:id/* and forwards the
// remainder of the path to the worker's gateway.
func (h *GatewayProxy) ProxyRequest(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	status, err := h.service.Status(c.Context(), key)
	if err != nil {
		return err
	}
	if !status.Exists || status.Status != domain.StatusRunning || status.GatewayPort == 0 {
		return fmt.Errorf("%w: worker %q is not running", domain.ErrNotFound, key)
	}

	remote := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(h.host, strconv.Itoa(status.GatewayPort)),
	}
	rest := "/" + c.Params("*")

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// The gateway sees a request addressed to itself, without the
	// orchestrator's prefix or secret.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Path = rest
		req.URL.RawPath = ""
		req.Header.Del(SecretHeader)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(fiber.Map{"error": "gateway unreachable: " + err.Error()})
	}

	return adaptor.HTTPHandler(proxy)(c)
}
