package http

import (
	"fmt"
	"mime/multipart"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
)

// uploadField is the preferred multipart field name for reference uploads.
const uploadField = "file"

type FileHandler struct {
	service ports.FileService
}

func NewFileHandler(service ports.FileService) *FileHandler {
	return &FileHandler{service: service}
}

func (h *FileHandler) List(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	return c.JSON(h.service.ListFiles(c.Context(), key))
}

func (h *FileHandler) Upload(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return fmt.Errorf("%w: expected a multipart upload: %v", domain.ErrInvalidArgument, err)
	}
	fh := pickFile(form)
	if fh == nil {
		return fmt.Errorf("%w: no file in upload", domain.ErrInvalidArgument)
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	name, err := h.service.Upload(c.Context(), key, fh.Filename, f)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "filename": name})
}

func (h *FileHandler) Delete(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	filename, err := pathParam(c, "filename")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Context(), key, filename); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *FileHandler) Memory(c *fiber.Ctx) error {
	key, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	return c.JSON(h.service.ReadMemory(c.Context(), key))
}

// pickFile returns the file under uploadField, or else the first file of the
// form in field name order.
func pickFile(form *multipart.Form) *multipart.FileHeader {
	if files := form.File[uploadField]; len(files) > 0 {
		return files[0]
	}
	fields := make([]string, 0, len(form.File))
	for k := range form.File {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, k := range fields {
		if files := form.File[k]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}
